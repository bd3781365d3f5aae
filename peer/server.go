package peer

import (
	"bufio"
	"context"
	"errors"
	"net"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/felipemeriga/artemis/chain"
	"github.com/felipemeriga/artemis/database"
	"github.com/felipemeriga/artemis/miner"
	"github.com/felipemeriga/artemis/txpool"
	"github.com/felipemeriga/artemis/types"
	"github.com/felipemeriga/artemis/wire"
)

// Broadcaster is the subset of the broadcast package's Broadcaster a Server
// needs, kept as an interface here to avoid an import cycle (the concrete
// broadcast.Broadcaster itself depends on peer.Set and peer.Dialer).
type Broadcaster interface {
	Transaction(ctx context.Context, tx *types.Transaction)
	NewBlock(ctx context.Context, block *types.Block)
}

// Server is the Peer Server actor of spec.md §4.5: it accepts inbound
// framed connections and dispatches REGISTER, TRANSACTION, NEW_BLOCK and
// GET_CHAIN. Each connection carries one command, dispatched by a switch
// in handleConn.
type Server struct {
	listenAddr  string
	selfAddress string
	chain       *chain.Chain
	pool        *txpool.Pool
	peers       *Set
	db          *database.DB
	interrupt   chan *types.Block
	broadcaster Broadcaster
	log         *logrus.Entry
}

// NewServer constructs a Peer Server bound to listenAddr.
func NewServer(listenAddr, selfAddress string, c *chain.Chain, pool *txpool.Pool, peers *Set, db *database.DB, interrupt chan *types.Block, broadcaster Broadcaster, log *logrus.Entry) *Server {
	return &Server{
		listenAddr:  listenAddr,
		selfAddress: selfAddress,
		chain:       c,
		pool:        pool,
		peers:       peers,
		db:          db,
		interrupt:   interrupt,
		broadcaster: broadcaster,
		log:         log.WithField("component", "peerserver"),
	}
}

// ListenAndServe binds listenAddr and serves connections until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return err
	}
	s.log.WithField("addr", s.listenAddr).Info("listening for peer connections")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.WithError(err).Warn("accept failed")
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	session := uuid.NewString()
	msg, err := wire.ReadMessage(bufio.NewReader(conn))
	if err != nil {
		if !errors.Is(err, wire.ErrStreamClosed) {
			s.log.WithFields(logrus.Fields{"session": session, "error": err}).Debug("malformed inbound frame")
		}
		return
	}

	log := s.log.WithFields(logrus.Fields{"session": session, "command": msg.Command, "remote": conn.RemoteAddr()})
	log.Debug("dispatching inbound frame")

	switch msg.Command {
	case wire.CommandRegister:
		s.handleRegister(conn, msg.Data)
	case wire.CommandTransaction:
		s.handleTransaction(ctx, msg.Data)
	case wire.CommandNewBlock:
		s.handleNewBlock(ctx, msg.Data)
	case wire.CommandGetChain:
		s.handleGetChain(conn)
	default:
		log.Warn("unknown command, ignored")
	}
}

func (s *Server) handleRegister(conn net.Conn, data string) {
	var payload wire.RegisterPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		s.log.WithError(err).Debug("malformed register payload")
		return
	}
	s.peers.Add(payload.Address)
	s.log.WithFields(logrus.Fields{"id": payload.ID, "address": payload.Address}).Info("peer registered")

	reply := wire.PeerSetPayload{Peers: s.peers.List()}
	if err := wire.WriteMessage(conn, wire.CommandRegister, reply); err != nil {
		s.log.WithError(err).Debug("failed to reply to register")
	}
}

func (s *Server) handleTransaction(ctx context.Context, data string) {
	var tx types.Transaction
	if err := json.Unmarshal([]byte(data), &tx); err != nil {
		s.log.WithError(err).Debug("malformed transaction payload")
		return
	}
	if tx.IsCoinbase() {
		s.log.Warn("dropped client-submitted coinbase transaction")
		return
	}
	if s.pool.TransactionExists(&tx) {
		return // loop-breaker: already known, drop silently
	}
	if err := tx.Verify(); err != nil {
		s.log.WithError(err).Debug("dropped transaction with invalid signature")
		return
	}
	s.pool.Add(&tx)
	s.broadcaster.Transaction(ctx, &tx)
}

func (s *Server) handleNewBlock(ctx context.Context, data string) {
	var block types.Block
	if err := json.Unmarshal([]byte(data), &block); err != nil {
		s.log.WithError(err).Debug("malformed block payload")
		return
	}
	tip := s.chain.Tip()
	if block.Index <= tip.Index || block.Hash == tip.Hash {
		return // stale or already-known, drop silently
	}
	if err := s.chain.IsValidNewBlock(&block); err != nil {
		s.log.WithError(err).Debug("dropped invalid block")
		return
	}
	if err := s.chain.Append(&block); err != nil {
		s.log.WithError(err).Debug("block lost race against a concurrent writer")
		return
	}
	miner.SendInterrupt(s.interrupt, &block)
	s.broadcaster.NewBlock(ctx, &block)
	go func() {
		if err := s.db.PutBlock(&block); err != nil {
			s.log.WithError(err).Error("failed to persist received block")
		}
	}()
}

func (s *Server) handleGetChain(conn net.Conn) {
	if err := wire.WriteChain(conn, s.chain.Blocks()); err != nil {
		s.log.WithError(err).Debug("failed to stream chain")
	}
}

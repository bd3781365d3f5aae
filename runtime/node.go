// Package runtime wires the five actors of spec.md §2 together with their
// shared resources and exposes the lifecycle and client-facing operations a
// thin RPC adapter would delegate to. Start/Stop ordering is adapted from
// eth/backend.go's Ethereum.Start()/Stop(): stop peer handling and the
// actors first, then the database, last.
package runtime

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/felipemeriga/artemis/broadcast"
	"github.com/felipemeriga/artemis/chain"
	"github.com/felipemeriga/artemis/config"
	"github.com/felipemeriga/artemis/database"
	"github.com/felipemeriga/artemis/discovery"
	"github.com/felipemeriga/artemis/miner"
	"github.com/felipemeriga/artemis/peer"
	syncactor "github.com/felipemeriga/artemis/sync"
	"github.com/felipemeriga/artemis/txpool"
	"github.com/felipemeriga/artemis/types"
	"github.com/felipemeriga/artemis/wallet"
)

// ErrInsufficientBalance is returned by SubmitTransaction when the sender's
// database-computed balance cannot cover amount+fee (spec.md §6 "submit
// transaction", S6).
var ErrInsufficientBalance = errors.New("runtime: insufficient balance")

// Node owns the shared resources of spec.md §2 and supervises the five
// long-lived actors through an errgroup.
type Node struct {
	cfg *config.Config

	chain  *chain.Chain
	pool   *txpool.Pool
	peers  *peer.Set
	db     *database.DB
	dialer *peer.Dialer

	interrupt chan *types.Block

	server       *peer.Server
	minerActor   *miner.Miner
	synchronizer *syncactor.Synchronizer
	discoverer   *discovery.Discoverer
	broadcaster  *broadcast.Broadcaster

	firstDiscoverDone *atomic.Bool
	firstSyncDone     *atomic.Bool

	log    *logrus.Entry
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New constructs a Node from cfg, opening its database. The five actors are
// wired but not yet running; call Start to launch them.
func New(cfg *config.Config, logger *logrus.Logger) (*Node, error) {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	entry := logger.WithField("node", cfg.NodeID)
	c := chain.New(cfg.Difficulty)
	pool := txpool.New()
	peers := peer.NewSet(cfg.TCPAddress)
	if cfg.BootstrapAddress != "" {
		peers.Add(cfg.BootstrapAddress)
	}
	dialer := peer.NewDialer()
	interrupt := make(chan *types.Block, 1)

	var firstDiscoverDone, firstSyncDone atomic.Bool
	bcast := broadcast.New(peers, dialer, entry)
	server := peer.NewServer(cfg.TCPAddress, cfg.TCPAddress, c, pool, peers, db, interrupt, bcast, entry)
	disc := discovery.New(cfg.NodeID, cfg.TCPAddress, peers, dialer, &firstDiscoverDone, entry)
	synchr := syncactor.New(c, peers, dialer, db, interrupt, &firstDiscoverDone, &firstSyncDone, entry)
	mnr := miner.New(c, pool, db, bcast, interrupt, cfg.MinerWalletAddress, cfg.MineWithoutTransactions, &firstDiscoverDone, &firstSyncDone, entry)

	return &Node{
		cfg:               cfg,
		chain:             c,
		pool:              pool,
		peers:             peers,
		db:                db,
		dialer:            dialer,
		interrupt:         interrupt,
		server:            server,
		minerActor:        mnr,
		synchronizer:      synchr,
		discoverer:        disc,
		broadcaster:       bcast,
		firstDiscoverDone: &firstDiscoverDone,
		firstSyncDone:     &firstSyncDone,
		log:               entry,
	}, nil
}

// Start launches the four actor goroutines (the Broadcaster has no loop of
// its own; it is invoked on demand by the others) and returns immediately.
func (n *Node) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	group, groupCtx := errgroup.WithContext(runCtx)
	n.group = group

	group.Go(func() error { return n.server.ListenAndServe(groupCtx) })
	group.Go(func() error { return n.discoverer.Run(groupCtx) })
	group.Go(func() error { return n.synchronizer.Run(groupCtx) })
	group.Go(func() error { return n.minerActor.Run(groupCtx) })

	n.log.Info("node started")
}

// Stop cancels all four actors, waits for them to return, and closes the
// database last.
func (n *Node) Stop() error {
	if n.cancel != nil {
		n.cancel()
	}
	if n.group != nil {
		if err := n.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			n.log.WithError(err).Warn("actor exited with error during shutdown")
		}
	}
	n.log.Info("node stopped")
	return n.db.Close()
}

// SubmitTransaction is the core call the (out-of-scope) client submission
// endpoint delegates to: verify, balance-check, pool.add, broadcast
// (spec.md §6 client RPC surface, §8 S6).
func (n *Node) SubmitTransaction(ctx context.Context, tx *types.Transaction) error {
	if tx.IsCoinbase() {
		return types.ErrCoinbaseFromClient
	}
	if err := tx.Verify(); err != nil {
		return err
	}
	balance, err := n.db.Balance(tx.Sender)
	if err != nil {
		return err
	}
	need := tx.Amount.Add(tx.Fee)
	if balance.Less(need) {
		return ErrInsufficientBalance
	}
	if n.pool.TransactionExists(tx) {
		return nil // idempotent: already known, S3
	}
	n.pool.Add(tx)
	n.broadcaster.Transaction(ctx, tx)
	return nil
}

// GetBlock looks up a block by hash (spec.md §6 "get block by hash").
func (n *Node) GetBlock(hash string) (*types.Block, error) { return n.db.GetBlock(hash) }

// GetTransaction looks up a transaction by hash (spec.md §6 "get
// transaction by hash").
func (n *Node) GetTransaction(hash string) (*types.Transaction, error) {
	return n.db.GetTransaction(hash)
}

// WalletTransactions returns address's recorded transaction hashes
// (spec.md §6 "get wallet transactions").
func (n *Node) WalletTransactions(address string) ([]string, error) {
	return n.db.WalletTransactions(address)
}

// WalletBalance computes address's current balance (spec.md §6 "get wallet
// balance").
func (n *Node) WalletBalance(address string) (types.Amount, error) {
	return n.db.Balance(address)
}

// Blocks returns every block in the local chain (spec.md §6 "get ...
// all blocks").
func (n *Node) Blocks() []*types.Block { return n.chain.Blocks() }

// CreateWallet generates a fresh keypair (spec.md §6 "create wallet").
func (n *Node) CreateWallet() (*wallet.Wallet, error) { return wallet.New() }

// Health reports static liveness (spec.md §6 "health").
func (n *Node) Health() string { return "OK" }

package broadcast

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/felipemeriga/artemis/chain"
	"github.com/felipemeriga/artemis/crypto"
	"github.com/felipemeriga/artemis/database"
	"github.com/felipemeriga/artemis/peer"
	"github.com/felipemeriga/artemis/txpool"
	"github.com/felipemeriga/artemis/types"
)

type noopBroadcaster struct{}

func (noopBroadcaster) Transaction(context.Context, *types.Transaction) {}
func (noopBroadcaster) NewBlock(context.Context, *types.Block)          {}

func silentLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func startReceivingPeerServer(t *testing.T, addr string) *txpool.Pool {
	t.Helper()
	c := chain.New(1)
	pool := txpool.New()
	peers := peer.NewSet(addr)
	db, err := database.Open(filepath.Join(t.TempDir(), "broadcast-test-db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	server := peer.NewServer(addr, addr, c, pool, peers, db, make(chan *types.Block, 1), noopBroadcaster{}, silentLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = server.ListenAndServe(ctx) }()
	time.Sleep(50 * time.Millisecond)
	return pool
}

func TestBroadcasterTransactionReachesPeers(t *testing.T) {
	remotePool := startReceivingPeerServer(t, "127.0.0.1:19931")

	peers := peer.NewSet("127.0.0.1:19999")
	peers.Add("127.0.0.1:19931")
	b := New(peers, peer.NewDialer(), silentLogger())

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := types.NewTransaction(key.Address(), "recipient", types.MustAmount(1), types.MustAmount(0.1), 1000)
	require.NoError(t, tx.Sign(key))

	b.Transaction(context.Background(), tx)

	require.Eventually(t, func() bool { return remotePool.TransactionExists(tx) }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcasterRemovesDeadPeer(t *testing.T) {
	peers := peer.NewSet("127.0.0.1:19998")
	peers.Add("127.0.0.1:2") // nothing listens here
	b := New(peers, peer.NewDialer(), silentLogger())

	block := types.NewBlock(1, 0, nil, "")
	b.NewBlock(context.Background(), block)

	require.Eventually(t, func() bool { return peers.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

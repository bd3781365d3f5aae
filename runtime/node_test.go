package runtime_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/felipemeriga/artemis/config"
	"github.com/felipemeriga/artemis/crypto"
	"github.com/felipemeriga/artemis/runtime"
	"github.com/felipemeriga/artemis/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestNode(t *testing.T, tcpAddr string) *runtime.Node {
	t.Helper()
	cfg := &config.Config{
		TCPAddress:         tcpAddr,
		NodeID:             "test-node",
		MinerWalletAddress: "miner-address",
		DatabasePath:       filepath.Join(t.TempDir(), "node-db"),
		Difficulty:         1,
	}
	node, err := runtime.New(cfg, testLogger())
	require.NoError(t, err)
	return node
}

func TestNodeStartStopLeavesNoGoroutines(t *testing.T) {
	node := newTestNode(t, "127.0.0.1:19871")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	node.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, node.Stop())
}

func TestHealthIsStaticOK(t *testing.T) {
	node := newTestNode(t, "127.0.0.1:19872")
	assert.Equal(t, "OK", node.Health())
}

// TestSubmitTransactionRejectsInsufficientBalance exercises S6: a sender
// with no recorded balance cannot submit a transaction with a positive
// amount; SubmitTransaction returns ErrInsufficientBalance.
func TestSubmitTransactionRejectsInsufficientBalance(t *testing.T) {
	node := newTestNode(t, "127.0.0.1:19873")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := types.NewTransaction(key.Address(), "recipient-address", types.MustAmount(10), types.MustAmount(0.1), 1000)
	require.NoError(t, tx.Sign(key))

	err = node.SubmitTransaction(context.Background(), tx)
	assert.ErrorIs(t, err, runtime.ErrInsufficientBalance)
}

func TestSubmitTransactionRejectsCoinbase(t *testing.T) {
	node := newTestNode(t, "127.0.0.1:19874")
	cb := types.NewCoinbase("someone", types.MustAmount(5))
	err := node.SubmitTransaction(context.Background(), cb)
	assert.ErrorIs(t, err, types.ErrCoinbaseFromClient)
}

func TestSubmitTransactionRejectsInvalidSignature(t *testing.T) {
	node := newTestNode(t, "127.0.0.1:19875")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := types.NewTransaction(key.Address(), "recipient-address", types.MustAmount(1), types.MustAmount(0), 1000)
	require.NoError(t, tx.Sign(key))
	tx.Amount = types.MustAmount(999) // tamper after signing

	err = node.SubmitTransaction(context.Background(), tx)
	assert.ErrorIs(t, err, types.ErrInvalidSignature)
}

func TestCreateWalletProducesUsableAddress(t *testing.T) {
	node := newTestNode(t, "127.0.0.1:19876")
	w, err := node.CreateWallet()
	require.NoError(t, err)
	assert.NotEmpty(t, w.Address)
}

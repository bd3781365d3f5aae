package miner

import (
	"context"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felipemeriga/artemis/chain"
	"github.com/felipemeriga/artemis/database"
	"github.com/felipemeriga/artemis/txpool"
	"github.com/felipemeriga/artemis/types"
)

type stubBroadcaster struct {
	blocks []*types.Block
}

func (s *stubBroadcaster) NewBlock(_ context.Context, b *types.Block) {
	s.blocks = append(s.blocks, b)
}

func newTestLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// TestMinerMinesGenesisBlock exercises S1: an empty pool, low difficulty,
// a single miner address. After the first successful mine, chain length is
// 2 and the sole transaction in block 1 is the coinbase reward.
func TestMinerMinesGenesisBlock(t *testing.T) {
	c := chain.New(1)
	pool := txpool.New()
	db, err := database.Open(filepath.Join(t.TempDir(), "miner-test-db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	bcast := &stubBroadcaster{}
	interrupt := make(chan *types.Block, 1)
	var discoverDone, syncDone atomic.Bool
	discoverDone.Store(true)
	syncDone.Store(true)

	m := New(c, pool, db, bcast, interrupt, "miner-address", true, &discoverDone, &syncDone, newTestLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for c.Len() < 2 && ctx.Err() == nil {
		m.attempt(ctx)
	}

	require.Equal(t, 2, c.Len())
	block := c.Tip()
	require.Len(t, block.Transactions, 1)
	cb := block.Transactions[0]
	assert.True(t, cb.IsCoinbase())
	assert.Equal(t, "miner-address", cb.Recipient)
	assert.InDelta(t, chain.BlockReward, cb.Amount.Float64(), 1e-9)
	require.Len(t, bcast.blocks, 1)
}

func TestSendInterruptIsLatestWinsNonBlocking(t *testing.T) {
	ch := make(chan *types.Block, 1)
	b1 := types.NewBlock(1, 0, nil, "")
	b2 := types.NewBlock(2, 0, nil, b1.Hash)

	SendInterrupt(ch, b1)
	SendInterrupt(ch, b2) // must not block even though the channel was full

	got := <-ch
	assert.Equal(t, b2.Hash, got.Hash)
}

func TestMinerAttemptPreemptsOnInterrupt(t *testing.T) {
	c := chain.New(20) // unreachably high difficulty within the test timeout
	pool := txpool.New()
	db, err := database.Open(filepath.Join(t.TempDir(), "miner-test-db-2"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	bcast := &stubBroadcaster{}
	interrupt := make(chan *types.Block, 1)
	var discoverDone, syncDone atomic.Bool
	discoverDone.Store(true)
	syncDone.Store(true)

	m := New(c, pool, db, bcast, interrupt, "miner-address", true, &discoverDone, &syncDone, newTestLogger())

	interruptBlock := types.NewBlock(1, 0, nil, c.Tip().Hash)
	done := make(chan struct{})
	go func() {
		ctx := context.Background()
		m.attempt(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	interrupt <- interruptBlock

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("attempt did not return after interrupt")
	}

	assert.Equal(t, 1, c.Len()) // candidate discarded, nothing appended
	assert.Empty(t, bcast.blocks)
}

// Package miner implements the PoW mining actor of spec.md §4.4: build a
// candidate from prioritized pool transactions plus a coinbase, search for a
// nonce meeting difficulty, commit atomically, broadcast, persist — all
// while remaining preemptible by a concurrently-arriving longer chain.
//
// Preemption uses a step function plus a non-blocking poll of the
// mining-interrupt channel and a cooperative scheduler yield between steps;
// no atomic cancel flag is involved.
package miner

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/felipemeriga/artemis/chain"
	"github.com/felipemeriga/artemis/database"
	"github.com/felipemeriga/artemis/txpool"
	"github.com/felipemeriga/artemis/types"
)

// MaxTransactionsPerBlock bounds how many pool entries one candidate block
// can carry (spec.md §6).
const MaxTransactionsPerBlock = 10

// FairnessDelay is the pause after a successful mine before the next
// attempt begins (spec.md §6, "~2s").
const FairnessDelay = 2 * time.Second

// idleRetryDelay is how long the miner sleeps when the pool is empty and
// mining without transactions is disabled.
const idleRetryDelay = 200 * time.Millisecond

// startupPollDelay is how often the miner re-checks the startup flags
// before its first attempt (spec.md §5 startup coordination).
const startupPollDelay = 100 * time.Millisecond

// Broadcaster is the subset of the broadcast package's Broadcaster the
// Miner needs to announce a freshly committed block.
type Broadcaster interface {
	NewBlock(ctx context.Context, block *types.Block)
}

// Miner is the mining actor. Config access (MinerAddress, MineWithoutTxs) is
// read-only after construction, so no lock guards it — following
// ironbeer-oasys-op-geth's miner.go confMu shape where the lock exists only
// because its config is mutable; ours is not.
type Miner struct {
	chain          *chain.Chain
	pool           *txpool.Pool
	db             *database.DB
	broadcaster    Broadcaster
	interrupt      chan *types.Block
	minerAddress   string
	mineWithoutTxs bool

	firstDiscoverDone *atomic.Bool
	firstSyncDone     *atomic.Bool

	log *logrus.Entry
}

// New constructs a Miner. firstDiscoverDone and firstSyncDone are shared
// with the Discoverer and Synchronizer actors respectively (spec.md §5
// startup coordination flags).
func New(c *chain.Chain, pool *txpool.Pool, db *database.DB, broadcaster Broadcaster, interrupt chan *types.Block, minerAddress string, mineWithoutTxs bool, firstDiscoverDone, firstSyncDone *atomic.Bool, log *logrus.Entry) *Miner {
	return &Miner{
		chain:             c,
		pool:              pool,
		db:                db,
		broadcaster:       broadcaster,
		interrupt:         interrupt,
		minerAddress:      minerAddress,
		mineWithoutTxs:    mineWithoutTxs,
		firstDiscoverDone: firstDiscoverDone,
		firstSyncDone:     firstSyncDone,
		log:               log.WithField("component", "miner"),
	}
}

// SendInterrupt delivers block on ch without ever blocking the sender,
// honoring the "latest wins" contract of spec.md §9: if the channel is
// already holding a stale interrupt, it is drained and replaced.
func SendInterrupt(ch chan *types.Block, block *types.Block) {
	select {
	case ch <- block:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- block:
	default:
	}
}

// Run executes attempts until ctx is cancelled.
func (m *Miner) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !m.firstDiscoverDone.Load() || !m.firstSyncDone.Load() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(startupPollDelay):
			}
			continue
		}
		m.attempt(ctx)
	}
}

// attempt runs one full build-mine-commit cycle (spec.md §4.4).
func (m *Miner) attempt(ctx context.Context) {
	data := m.pool.TakeForMining(MaxTransactionsPerBlock)
	if len(data) == 0 && !m.mineWithoutTxs {
		select {
		case <-ctx.Done():
		case <-time.After(idleRetryDelay):
		}
		return
	}

	candidate, fees, difficulty := m.chain.PrepareBlockForMining(data)
	if coinbase, ok := m.chain.GetMinerTransaction(m.minerAddress, fees); ok {
		candidate.Transactions = append(candidate.Transactions, coinbase)
		candidate.Hash = candidate.CalculateHash()
	}

	interruptedBy, mined := m.search(ctx, candidate, difficulty)
	if interruptedBy != nil {
		m.pool.ProcessMined(false, interruptedBy.Transactions)
		if err := m.db.PutBlock(interruptedBy); err != nil {
			m.log.WithError(err).Error("failed to persist interrupting block")
		}
		return
	}
	if !mined {
		return // context cancelled mid-search
	}

	if err := m.chain.Append(candidate); err != nil {
		// Commit-time re-validation failed: the tip moved while we were
		// mining. Restart-scope error per spec.md §7: discard candidate,
		// return its transactions to the pool.
		m.log.WithError(err).Debug("candidate lost race against a concurrent writer")
		m.pool.ProcessMined(false, nil)
		return
	}

	m.pool.ProcessMined(true, nil)
	m.broadcaster.NewBlock(ctx, candidate)
	if err := m.db.PutBlock(candidate); err != nil {
		m.log.WithError(err).Error("failed to persist mined block")
	}
	m.log.WithFields(logrus.Fields{"index": candidate.Index, "hash": candidate.Hash}).Info("mined block")

	select {
	case <-ctx.Done():
	case <-time.After(FairnessDelay):
	}
}

// search runs the nonce-search loop, polling the interrupt channel
// non-blocking between steps and yielding to the scheduler each time
// (spec.md §4.4 step 3, §5 "mandatory cooperative yield"). It returns a
// non-nil interrupting block on preemption, or (nil, true) on success.
func (m *Miner) search(ctx context.Context, candidate *types.Block, difficulty int) (*types.Block, bool) {
	for {
		if candidate.IsValid(difficulty) {
			return nil, true
		}
		select {
		case blk := <-m.interrupt:
			return blk, false
		default:
		}
		if ctx.Err() != nil {
			return nil, false
		}
		candidate.MineStep()
		runtime.Gosched()
	}
}

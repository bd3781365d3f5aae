// Package broadcast implements the Broadcaster actor of spec.md §4.7: given
// a transaction or a block, fan it out to every known peer except self,
// fire-and-forget, pruning peers whose session fails.
package broadcast

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/felipemeriga/artemis/peer"
	"github.com/felipemeriga/artemis/types"
)

// maxConcurrentDials bounds how many outbound broadcast dials run at once,
// so a large peer set cannot fan out an unbounded number of sockets in one
// broadcast call.
const maxConcurrentDials = 8

// Broadcaster fans transactions and blocks out to the peer set. It
// implements both peer.Broadcaster and miner.Broadcaster structurally.
type Broadcaster struct {
	peers  *peer.Set
	dialer *peer.Dialer
	sem    *semaphore.Weighted
	log    *logrus.Entry
}

// New constructs a Broadcaster over peers, dialing through dialer.
func New(peers *peer.Set, dialer *peer.Dialer, log *logrus.Entry) *Broadcaster {
	return &Broadcaster{
		peers:  peers,
		dialer: dialer,
		sem:    semaphore.NewWeighted(maxConcurrentDials),
		log:    log.WithField("component", "broadcaster"),
	}
}

// Transaction fans tx out to every known peer (spec.md §4.7 "command is
// TRANSACTION").
func (b *Broadcaster) Transaction(ctx context.Context, tx *types.Transaction) {
	b.fanOut(ctx, func(ctx context.Context, addr string) error {
		return peer.SendTransaction(ctx, b.dialer, addr, tx)
	})
}

// NewBlock fans block out to every known peer (spec.md §4.7 "command is
// NEW_BLOCK").
func (b *Broadcaster) NewBlock(ctx context.Context, block *types.Block) {
	b.fanOut(ctx, func(ctx context.Context, addr string) error {
		return peer.SendNewBlock(ctx, b.dialer, addr, block)
	})
}

// fanOut runs send against every peer address concurrently, bounded by sem.
// Broadcast is fire-and-forget: partial failure is acceptable and recorded
// (spec.md §4.7), so fanOut never returns an error to the caller.
func (b *Broadcaster) fanOut(ctx context.Context, send func(ctx context.Context, addr string) error) {
	for _, addr := range b.peers.List() {
		addr := addr
		if err := b.sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func() {
			defer b.sem.Release(1)
			if err := send(ctx, addr); err != nil {
				b.log.WithFields(logrus.Fields{"peer": addr, "error": err}).Warn("broadcast session failed, removing peer")
				b.peers.Remove(addr)
			}
		}()
	}
}

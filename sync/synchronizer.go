// Package sync implements the Synchronizer actor of spec.md §4.6: poll
// every peer's full chain, adopt the longest one that validates and is
// strictly longer than the local chain, and interrupt in-flight mining when
// it does.
package sync

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/felipemeriga/artemis/chain"
	"github.com/felipemeriga/artemis/database"
	"github.com/felipemeriga/artemis/miner"
	"github.com/felipemeriga/artemis/peer"
	"github.com/felipemeriga/artemis/types"
)

// Interval is the pause between sync passes (spec.md §6, "~120s").
const Interval = 120 * time.Second

const pollDelay = 200 * time.Millisecond

// Synchronizer is the sync actor.
type Synchronizer struct {
	chain     *chain.Chain
	peers     *peer.Set
	dialer    *peer.Dialer
	db        *database.DB
	interrupt chan *types.Block

	firstDiscoverDone *atomic.Bool
	firstSyncDone     *atomic.Bool

	log *logrus.Entry
}

// New constructs a Synchronizer. firstDiscoverDone gates its first pass;
// firstSyncDone is flipped after that pass and gates the Miner's first
// attempt (spec.md §5).
func New(c *chain.Chain, peers *peer.Set, dialer *peer.Dialer, db *database.DB, interrupt chan *types.Block, firstDiscoverDone, firstSyncDone *atomic.Bool, log *logrus.Entry) *Synchronizer {
	return &Synchronizer{
		chain:             c,
		peers:             peers,
		dialer:            dialer,
		db:                db,
		interrupt:         interrupt,
		firstDiscoverDone: firstDiscoverDone,
		firstSyncDone:     firstSyncDone,
		log:               log.WithField("component", "synchronizer"),
	}
}

// Run executes sync passes until ctx is cancelled.
func (s *Synchronizer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.firstDiscoverDone.Load() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollDelay):
			}
			continue
		}
		s.pass(ctx)
		s.firstSyncDone.Store(true)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Interval):
		}
	}
}

// pass polls every peer for its chain, keeps the longest one that validates
// and strictly exceeds the local length, and — on equal length — retains
// the local chain (spec.md §4.6 tie-break, §9).
func (s *Synchronizer) pass(ctx context.Context) {
	localLen := s.chain.Len()
	var longest []*types.Block

	for _, addr := range s.peers.List() {
		blocks, err := peer.RequestChain(ctx, s.dialer, addr)
		if err != nil {
			s.log.WithFields(logrus.Fields{"peer": addr, "error": err}).Warn("chain request failed, removing peer")
			s.peers.Remove(addr)
			continue
		}
		if !chain.IsValidChain(blocks) {
			s.log.WithField("peer", addr).Debug("peer returned an invalid chain")
			continue
		}
		if len(blocks) > localLen && (longest == nil || len(blocks) > len(longest)) {
			longest = blocks
		}
	}

	if longest == nil {
		return
	}
	if err := s.chain.ReplaceChain(longest); err != nil {
		s.log.WithError(err).Debug("chain replacement lost race against a concurrent writer")
		return
	}

	tip := longest[len(longest)-1]
	miner.SendInterrupt(s.interrupt, tip)
	s.log.WithFields(logrus.Fields{"length": len(longest)}).Info("adopted longer peer chain")

	for _, b := range longest {
		if err := s.db.PutBlock(b); err != nil {
			s.log.WithError(err).Error("failed to persist block from adopted chain")
		}
	}
}

// Package discovery implements the Discoverer actor of spec.md §4.7: after
// an initial delay, register with every known peer, union in whatever peer
// set comes back, and prune peers that fail to respond.
package discovery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/felipemeriga/artemis/peer"
)

// InitialDelay lets peer servers finish binding before the first discovery
// pass (spec.md §6, "~3s").
const InitialDelay = 3 * time.Second

// Interval is the pause between discovery passes (spec.md §6, "~60s").
const Interval = 60 * time.Second

const maxConcurrentDials = 8

// Discoverer is the discovery actor.
type Discoverer struct {
	selfID      string
	selfAddress string
	peers       *peer.Set
	dialer      *peer.Dialer
	sem         *semaphore.Weighted

	firstDiscoverDone *atomic.Bool

	log *logrus.Entry
}

// New constructs a Discoverer. firstDiscoverDone is shared with the
// Synchronizer, which must not begin before the first discovery pass
// completes (spec.md §5).
func New(selfID, selfAddress string, peers *peer.Set, dialer *peer.Dialer, firstDiscoverDone *atomic.Bool, log *logrus.Entry) *Discoverer {
	return &Discoverer{
		selfID:            selfID,
		selfAddress:       selfAddress,
		peers:             peers,
		dialer:            dialer,
		sem:               semaphore.NewWeighted(maxConcurrentDials),
		firstDiscoverDone: firstDiscoverDone,
		log:               log.WithField("component", "discoverer"),
	}
}

// Run executes discovery passes until ctx is cancelled.
func (d *Discoverer) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(InitialDelay):
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.pass(ctx)
		d.firstDiscoverDone.Store(true)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Interval):
		}
	}
}

// pass attempts REGISTER against every currently-known peer, unioning in
// whatever peer set is returned and pruning peers that do not respond
// (spec.md §4.7). It blocks until every spawned registration has returned,
// so callers can rely on a completed pass once it returns.
func (d *Discoverer) pass(ctx context.Context) {
	addrs := d.peers.List()
	var wg sync.WaitGroup
	for _, addr := range addrs {
		addr := addr
		if err := d.sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer d.sem.Release(1)
			discovered, err := peer.Register(ctx, d.dialer, addr, d.selfID, d.selfAddress)
			if err != nil {
				d.log.WithFields(logrus.Fields{"peer": addr, "error": err}).Warn("register failed, removing peer")
				d.peers.Remove(addr)
				return
			}
			d.peers.Union(discovered)
		}()
	}
	wg.Wait()
}

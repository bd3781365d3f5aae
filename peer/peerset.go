// Package peer implements the node's view of the network: the set of known
// peer addresses, the inbound dispatcher, and the outbound session helper
// shared by the Discoverer, Broadcaster and Synchronizer actors.
package peer

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// Set is the node's peer address set (spec.md §3), guarded by the exclusive
// mutex named in spec.md §5. Grounded directly on the teacher family's
// light/nodeset.go: a sync.RWMutex-guarded map exposing Put/Has/Remove/List,
// renamed here to the spec's plain address-set domain, backed by
// golang-set/v2's thread-unsafe set since the RWMutex already serializes
// access.
type Set struct {
	mu    sync.RWMutex
	self  string
	peers mapset.Set[string]
}

// NewSet constructs a peer set that will always exclude self, even if Add is
// called with it.
func NewSet(self string) *Set {
	return &Set{self: self, peers: mapset.NewThreadUnsafeSet[string]()}
}

// Add inserts address, unless it equals self.
func (s *Set) Add(address string) {
	if address == s.self {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers.Add(address)
}

// Union inserts every address in addresses, self excluded.
func (s *Set) Union(addresses []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range addresses {
		if a == s.self {
			continue
		}
		s.peers.Add(a)
	}
}

// Remove drops address from the set, e.g. after a failed dial.
func (s *Set) Remove(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers.Remove(address)
}

// Has reports whether address is currently known.
func (s *Set) Has(address string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peers.Contains(address)
}

// List returns a snapshot of every known peer address.
func (s *Set) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peers.ToSlice()
}

// Count returns the number of known peers.
func (s *Set) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peers.Cardinality()
}

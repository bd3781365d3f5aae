// Package txpool implements the transaction pool of spec.md §4.3: a
// max-heap priority queue over (fee desc, timestamp asc), an active-entry
// map, a tombstone set for lazily-deleted entries, and a pending map for
// transactions claimed by an in-flight mining attempt. The lazy-deletion
// scheme mirrors the teacher's own validation/bookkeeping split
// (core/txpool/validation.go separates pure checks from pool state) and is
// the standard answer to container/heap's lack of keyed removal.
package txpool

import (
	"container/heap"
	"sync"

	"github.com/felipemeriga/artemis/types"
)

// entry is one heap slot. Tombstoned entries are left in place and skipped
// by next(); they are never removed from the heap slice directly since
// container/heap has no efficient keyed-removal operation.
type entry struct {
	tx    *types.Transaction
	index int
}

// priorityHeap orders by fee descending, then timestamp ascending
// (spec.md §4.3), giving the highest-fee, oldest-submitted transaction
// highest priority.
type priorityHeap []*entry

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	fi, fj := h[i].tx.Fee, h[j].tx.Fee
	if !fi.Equal(fj) {
		return fj.Less(fi) // higher fee first
	}
	return h[i].tx.Timestamp < h[j].tx.Timestamp // older timestamp first
}

func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Pool is the node's transaction pool, guarded by a single exclusive mutex
// (spec.md §5: "TransactionPool ... exclusive mutex").
type Pool struct {
	mu        sync.Mutex
	heap      priorityHeap
	active    map[string]*types.Transaction
	tombstone map[string]struct{}
	pending   map[string]*types.Transaction
}

// New constructs an empty pool.
func New() *Pool {
	return &Pool{
		active:    make(map[string]*types.Transaction),
		tombstone: make(map[string]struct{}),
		pending:   make(map[string]*types.Transaction),
	}
}

// Add inserts tx into the pool. Idempotent on hash: a hash already present
// in the active or pending map is silently dropped (spec.md §4.3 add).
func (p *Pool) Add(tx *types.Transaction) {
	hash := tx.Hash()
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.active[hash]; ok {
		return
	}
	if _, ok := p.pending[hash]; ok {
		return
	}
	p.active[hash] = tx
	heap.Push(&p.heap, &entry{tx: tx})
}

// TransactionExists reports whether tx's hash is already known to the pool,
// active or pending (spec.md §4.3 transaction_exists).
func (p *Pool) TransactionExists(tx *types.Transaction) bool {
	hash := tx.Hash()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exists(hash)
}

func (p *Pool) exists(hash string) bool {
	if _, ok := p.active[hash]; ok {
		return true
	}
	_, ok := p.pending[hash]
	return ok
}

// next pops the highest-priority live entry, discarding any tombstoned
// entries that surface, and removes it from the active map. Callers must
// hold p.mu.
func (p *Pool) next() *types.Transaction {
	for p.heap.Len() > 0 {
		e := heap.Pop(&p.heap).(*entry)
		hash := e.tx.Hash()
		if _, dead := p.tombstone[hash]; dead {
			delete(p.tombstone, hash)
			continue
		}
		delete(p.active, hash)
		return e.tx
	}
	return nil
}

// Next pops the highest-priority live transaction, or nil if the pool is
// empty (spec.md §4.3 next).
func (p *Pool) Next() *types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next()
}

// TakeForMining returns up to k transactions via successive Next calls,
// moving each into the pending map (spec.md §4.3 take_for_mining).
func (p *Pool) TakeForMining(k int) []*types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*types.Transaction, 0, k)
	for i := 0; i < k; i++ {
		tx := p.next()
		if tx == nil {
			break
		}
		p.pending[tx.Hash()] = tx
		out = append(out, tx)
	}
	return out
}

// ProcessMined reconciles the pending map after a mining attempt ends
// (spec.md §4.3 process_mined).
//
// If locally is true, the node's own candidate succeeded: the pending map
// is simply cleared, since every transaction it held is now committed.
//
// If locally is false, a competing block (txs) arrived instead: each of its
// transaction hashes is removed from pending if present there, or — if it
// had already been returned to active by an earlier reconciliation — is
// moved from active to the tombstone set. Whatever remains in pending after
// that sweep was claimed by this node's abandoned attempt but is absent
// from the competing block, so it is restored to active.
func (p *Pool) ProcessMined(locally bool, txs []*types.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if locally {
		p.pending = make(map[string]*types.Transaction)
		return
	}

	for _, tx := range txs {
		hash := tx.Hash()
		if _, ok := p.pending[hash]; ok {
			delete(p.pending, hash)
			continue
		}
		if _, ok := p.active[hash]; ok {
			delete(p.active, hash)
			p.tombstone[hash] = struct{}{}
		}
	}

	for hash, tx := range p.pending {
		delete(p.pending, hash)
		p.active[hash] = tx
		heap.Push(&p.heap, &entry{tx: tx})
	}
}

// Len returns the number of active entries plus the number of pending
// entries. Tombstoned heap slots awaiting lazy removal are not counted.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active) + len(p.pending)
}

// Package chain implements the replicated append-only block list: the
// multi-reader/single-writer shared resource of spec.md §5, guarded the way
// the teacher guards its own variadic state
// (eth/backend.go: "lock sync.RWMutex // Protects the variadic fields").
package chain

import (
	"errors"
	"sync"
	"time"

	"github.com/felipemeriga/artemis/types"
)

// DefaultDifficulty is the number of leading hex zeros a block hash must
// carry (spec.md §3, §6).
const DefaultDifficulty = 5

// BlockReward is the coinbase reward constant granted per mined block
// (spec.md §6), before transaction fees are added in.
const BlockReward = 5.0

// MaxSupply is an advisory cap on total coinbase issuance (spec.md §6, §9).
// Enforcement is advisory only, per the reference behavior.
const MaxSupply = 21_000_000.0

var (
	// ErrEmptyChain is returned by operations that require at least a
	// genesis block.
	ErrEmptyChain = errors.New("chain: chain has no blocks")
	// ErrNotLonger is returned by ReplaceChain when the candidate is not
	// strictly longer than the current chain (spec.md §4.6 tie-break: keep
	// local on equal length).
	ErrNotLonger = errors.New("chain: candidate chain is not longer than the current chain")
	// ErrInvalidLinkage is returned when a block's previous_hash does not
	// match the chain's current tip.
	ErrInvalidLinkage = errors.New("chain: previous_hash does not match current tip")
	// ErrInvalidPoW is returned when a block's hash does not meet
	// difficulty or does not recompute correctly.
	ErrInvalidPoW = errors.New("chain: block hash is invalid or does not meet difficulty")
	// ErrInvalidTransaction is returned when a non-coinbase transaction in a
	// block fails signature verification.
	ErrInvalidTransaction = errors.New("chain: transaction failed verification")
	// ErrMultipleCoinbase is returned when a block carries more than one
	// coinbase transaction.
	ErrMultipleCoinbase = errors.New("chain: block carries more than one coinbase transaction")
)

// Chain is the shared, lock-guarded block list. Readers take RLock; the
// three writers named in spec.md §5 (Miner commit, Synchronizer replace,
// Peer Server NEW_BLOCK append) take Lock.
type Chain struct {
	mu         sync.RWMutex
	blocks     []*types.Block
	difficulty int
	issued     types.Amount // running total of coinbase issuance, advisory (spec.md §9)
}

// New constructs a chain seeded with a deterministic genesis block: index 0,
// no transactions, empty previous_hash, nonce 0.
func New(difficulty int) *Chain {
	genesis := types.NewBlock(0, 0, nil, "")
	return &Chain{
		blocks:     []*types.Block{genesis},
		difficulty: difficulty,
	}
}

// Difficulty returns the chain's configured PoW difficulty.
func (c *Chain) Difficulty() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.difficulty
}

// Tip returns the current head block. The chain always has at least
// genesis, so this never returns nil.
func (c *Chain) Tip() *types.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

// Len returns the number of blocks, genesis included.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Blocks returns a copy of the full block list, safe for the caller to
// range over without holding the chain's lock (used by GET_CHAIN streaming
// and persistence sweeps).
func (c *Chain) Blocks() []*types.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*types.Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// IssuedSupply returns the running total of coinbase rewards granted so
// far. Advisory only (spec.md §9): nothing currently blocks a concurrent
// commit from exceeding MaxSupply by one block's worth of reward.
func (c *Chain) IssuedSupply() types.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.issued
}

// IsValidNewBlock checks block against the current tip: linkage, PoW, and
// (for every non-coinbase transaction) signature verification (spec.md
// §4.1 is_valid_new_block). It takes the chain's read lock internally and
// does not mutate state.
func (c *Chain) IsValidNewBlock(block *types.Block) error {
	c.mu.RLock()
	tip := c.blocks[len(c.blocks)-1]
	difficulty := c.difficulty
	c.mu.RUnlock()
	return validateAgainst(tip, block, difficulty)
}

func validateAgainst(parent, block *types.Block, difficulty int) error {
	if block.PreviousHash != parent.Hash {
		return ErrInvalidLinkage
	}
	if !block.IsValid(difficulty) {
		return ErrInvalidPoW
	}
	seenCoinbase := false
	for _, tx := range block.Transactions {
		if tx.IsCoinbase() {
			if seenCoinbase {
				return ErrMultipleCoinbase
			}
			seenCoinbase = true
			continue
		}
		if err := tx.Verify(); err != nil {
			return ErrInvalidTransaction
		}
	}
	return nil
}

// Append validates block against the current tip and, if valid, appends it
// under the chain's write lock. This is the load-bearing re-check described
// in spec.md §4.4 step 5: the chain may have moved while a candidate was
// being mined, and the check must happen under the same lock as the append.
func (c *Chain) Append(block *types.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tip := c.blocks[len(c.blocks)-1]
	if err := validateAgainst(tip, block, c.difficulty); err != nil {
		return err
	}
	c.blocks = append(c.blocks, block)
	if cb, ok := block.Coinbase(); ok {
		c.issued = c.issued.Add(cb.Amount)
	}
	return nil
}

// IsValidChain checks that every adjacent pair in blocks is correctly
// linked and that every block's hash recomputes correctly. PoW is
// deliberately not re-checked here (spec.md §4.1 is_valid_chain, §9): the
// function is used during sync and trusts that honest peers validated PoW
// before accepting blocks into their own chain.
func IsValidChain(blocks []*types.Block) bool {
	if len(blocks) == 0 {
		return false
	}
	if blocks[0].Hash != blocks[0].CalculateHash() {
		return false
	}
	for i := 1; i < len(blocks); i++ {
		prev, cur := blocks[i-1], blocks[i]
		if cur.PreviousHash != prev.Hash {
			return false
		}
		if cur.Hash != cur.CalculateHash() {
			return false
		}
	}
	return true
}

// ReplaceChain wholesale-swaps the local chain for candidate if candidate is
// strictly longer (spec.md §4.6 longest-chain rule; equal length keeps the
// local chain, per spec.md §9's tie-break decision). Callers are expected to
// have already validated candidate with IsValidChain.
func (c *Chain) ReplaceChain(candidate []*types.Block) error {
	if len(candidate) == 0 {
		return ErrEmptyChain
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(candidate) <= len(c.blocks) {
		return ErrNotLonger
	}
	c.blocks = append([]*types.Block(nil), candidate...)
	c.issued = types.Amount{}
	for _, b := range c.blocks {
		if cb, ok := b.Coinbase(); ok {
			c.issued = c.issued.Add(cb.Amount)
		}
	}
	return nil
}

// PrepareBlockForMining builds a candidate block on top of the current tip:
// index = tip.index + 1, previous_hash = tip.hash, timestamp now, nonce 0,
// transactions = data (spec.md §4.1 prepare_block_for_mining). It returns
// the candidate, the sum of the data transactions' fees, and the chain's
// difficulty. The tip and difficulty are read together under one RLock; the
// lock is released before the candidate is built, so the chain may move
// afterwards, and Append's re-check then rejects the stale candidate.
func (c *Chain) PrepareBlockForMining(data []*types.Transaction) (*types.Block, types.Amount, int) {
	c.mu.RLock()
	tip := c.blocks[len(c.blocks)-1]
	difficulty := c.difficulty
	c.mu.RUnlock()

	var fees types.Amount
	for _, tx := range data {
		fees = fees.Add(tx.Fee)
	}
	candidate := types.NewBlock(tip.Index+1, time.Now().Unix(), data, tip.Hash)
	return candidate, fees, difficulty
}

// GetMinerTransaction returns the coinbase transaction granting
// BlockReward+fees to address, or false if the advisory supply cap has
// already been reached (spec.md §4.1 get_miner_transaction, §9).
func (c *Chain) GetMinerTransaction(address string, fees types.Amount) (*types.Transaction, bool) {
	reward := types.MustAmount(BlockReward).Add(fees)
	if c.IssuedSupply().Float64()+reward.Float64() > MaxSupply {
		return nil, false
	}
	return types.NewCoinbase(address, reward), true
}

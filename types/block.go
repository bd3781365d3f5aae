package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Block is a link in the chain (spec.md §3). Index 0 is reserved for
// genesis. Once hashed and appended it is never mutated again.
type Block struct {
	Index        uint64         `json:"index"`
	Timestamp    int64          `json:"timestamp"`
	Transactions []*Transaction `json:"transactions"`
	PreviousHash string         `json:"previous_hash"`
	Hash         string         `json:"hash"`
	Nonce        uint64         `json:"nonce"`
}

// NewBlock builds a candidate with nonce 0 and its hash computed for that
// nonce; callers mine it with MineStep / ensure validity with IsValid before
// treating it as final.
func NewBlock(index uint64, timestamp int64, txs []*Transaction, previousHash string) *Block {
	b := &Block{
		Index:        index,
		Timestamp:    timestamp,
		Transactions: txs,
		PreviousHash: previousHash,
	}
	b.Hash = b.CalculateHash()
	return b
}

// CalculateHash recomputes hex(SHA-256(index || timestamp || concat(tx_hash) ||
// previous_hash || nonce)), the deterministic digest of spec.md §3.
func (b *Block) CalculateHash() string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(b.Index, 10))
	sb.WriteString(strconv.FormatInt(b.Timestamp, 10))
	for _, tx := range b.Transactions {
		sb.WriteString(tx.Hash())
	}
	sb.WriteString(b.PreviousHash)
	sb.WriteString(strconv.FormatUint(b.Nonce, 10))

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// MineStep increments the nonce and recomputes the hash — one unit of PoW
// search, exposed as a single step so the miner's loop can interleave
// preemption checks between calls (spec.md §4.1, §4.4).
func (b *Block) MineStep() {
	b.Nonce++
	b.Hash = b.CalculateHash()
}

// MeetsDifficulty reports whether hash begins with difficulty hexadecimal
// zero characters.
func MeetsDifficulty(hash string, difficulty int) bool {
	if len(hash) < difficulty {
		return false
	}
	for i := 0; i < difficulty; i++ {
		if hash[i] != '0' {
			return false
		}
	}
	return true
}

// IsValid reports whether b's hash matches its recomputation and meets
// difficulty (spec.md §4.1).
func (b *Block) IsValid(difficulty int) bool {
	return b.Hash == b.CalculateHash() && MeetsDifficulty(b.Hash, difficulty)
}

// Coinbase returns the block's reward transaction — by convention the last
// entry, if present and actually a coinbase — and whether one exists.
func (b *Block) Coinbase() (*Transaction, bool) {
	if len(b.Transactions) == 0 {
		return nil, false
	}
	last := b.Transactions[len(b.Transactions)-1]
	if !last.IsCoinbase() {
		return nil, false
	}
	return last, true
}

// Package types defines the wire and storage shapes of the chain: the
// Transaction and Block records of spec.md §3, their deterministic hashing,
// and the invariants that bind a transaction to the wallet that signed it.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/felipemeriga/artemis/crypto"
)

// CoinbaseSender is the reserved sender literal a block's own miner uses for
// its reward transaction (spec.md §3, §6). Client submission paths must
// reject it outright.
const CoinbaseSender = "COINBASE"

var (
	// ErrCoinbaseFromClient is returned by validation performed outside the
	// miner's own block assembly when a submitted transaction claims to be
	// a coinbase.
	ErrCoinbaseFromClient = errors.New("types: COINBASE sender is reserved for block rewards")
	// ErrCoinbaseFee is returned when a coinbase transaction carries a
	// non-zero fee, violating spec.md §3's invariant.
	ErrCoinbaseFee = errors.New("types: coinbase transaction must have zero fee")
	// ErrCoinbaseSignature is returned when a coinbase transaction carries a
	// signature; coinbases are unsigned by definition.
	ErrCoinbaseSignature = errors.New("types: coinbase transaction must not carry a signature")
	// ErrInvalidSignature is returned when a non-coinbase transaction's
	// signature does not recover to its declared sender.
	ErrInvalidSignature = errors.New("types: signature does not recover to sender")
)

// Transaction is a signed value transfer, or (when Sender is
// CoinbaseSender) a block's mining reward (spec.md §3).
type Transaction struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    Amount `json:"amount"`
	Fee       Amount `json:"fee"`
	Timestamp int64  `json:"timestamp"`
	Signature []byte `json:"signature,omitempty"`
}

// NewTransaction constructs an unsigned transaction body. Call Sign before
// broadcasting it, unless it is the block's own coinbase.
func NewTransaction(sender, recipient string, amount, fee Amount, timestamp int64) *Transaction {
	return &Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Fee:       fee,
		Timestamp: timestamp,
	}
}

// NewCoinbase builds the reward transaction a block's miner grants itself,
// paying amount to address with zero fee and no signature. The caller
// supplies the amount; chain.GetMinerTransaction passes the block reward
// plus the sum of the block's transaction fees.
func NewCoinbase(address string, amount Amount) *Transaction {
	return &Transaction{
		Sender:    CoinbaseSender,
		Recipient: address,
		Amount:    amount,
		Fee:       Amount{},
		Timestamp: 0,
	}
}

// IsCoinbase reports whether tx is a block reward transaction.
func (tx *Transaction) IsCoinbase() bool {
	return tx.Sender == CoinbaseSender
}

// canonicalBytes returns the exact byte sequence that is hashed and signed:
// "sender:recipient:amount:fee:timestamp" (spec.md §3). The signature is
// deliberately excluded so the hash is stable across signing.
func (tx *Transaction) canonicalBytes() []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:%s:%s",
		tx.Sender, tx.Recipient, tx.Amount.String(), tx.Fee.String(),
		strconv.FormatInt(tx.Timestamp, 10)))
}

// Digest returns SHA-256 of the canonical byte sequence — the value that is
// both hashed (for Hash) and signed (for Sign/Verify).
func (tx *Transaction) Digest() [32]byte {
	return sha256.Sum256(tx.canonicalBytes())
}

// Hash returns hex(SHA-256(canonical bytes)), the transaction's identity in
// the pool, the chain, and the database (spec.md §3).
func (tx *Transaction) Hash() string {
	d := tx.Digest()
	return hex.EncodeToString(d[:])
}

// Sign signs tx with key and stores the resulting 65-byte recoverable
// signature. It is an error to sign a coinbase transaction; those are
// produced only by a block's own miner and never carry a signature.
func (tx *Transaction) Sign(key *crypto.PrivateKey) error {
	if tx.IsCoinbase() {
		return ErrCoinbaseSignature
	}
	digest := tx.Digest()
	sig, err := key.Sign(digest[:])
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}

// Verify checks tx's signature against its declared Sender. Coinbase
// transactions need no signature: at this layer they verify whenever they
// carry a zero fee and no signature. Where a coinbase may appear in a block
// is checked by the chain package, not here.
func (tx *Transaction) Verify() error {
	if tx.IsCoinbase() {
		if !tx.Fee.Equal(Amount{}) {
			return ErrCoinbaseFee
		}
		if len(tx.Signature) != 0 {
			return ErrCoinbaseSignature
		}
		return nil
	}
	digest := tx.Digest()
	recovered, err := crypto.Recover(digest[:], tx.Signature)
	if err != nil {
		return err
	}
	if recovered != tx.Sender {
		return ErrInvalidSignature
	}
	return nil
}

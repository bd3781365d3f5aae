// Package database implements the node's opaque durable key-value store
// (spec.md §6), backed by cockroachdb/pebble, the teacher's direct
// dependency. The core treats it as nothing more than a durable map; key
// layout and the balance-scan convention come straight from spec.md §6.
package database

import (
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/cockroachdb/pebble"

	"github.com/felipemeriga/artemis/types"
)

// ErrNotFound is returned when a lookup key is absent.
var ErrNotFound = errors.New("database: key not found")

// DB is the node's durable key-value map. All access goes through the
// exclusive mutex named in spec.md §5 ("Database handle: exclusive
// mutex") even though pebble itself is safe for concurrent use — the core's
// contract is a single serialized writer, matching the rest of the node's
// shared resources.
type DB struct {
	mu sync.Mutex
	pb *pebble.DB
}

// Open opens (creating if necessary) a pebble store at dir.
func Open(dir string) (*DB, error) {
	pb, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("database: open %q: %w", dir, err)
	}
	return &DB{pb: pb}, nil
}

// Close flushes and closes the underlying store.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.pb.Close()
}

func blockKey(hash string) []byte { return []byte("block:" + hash) }
func addrKey(address string) []byte { return []byte("addr_" + address) }

// PutBlock persists a block under "block:<block_hash>" and, alongside it,
// every one of its transactions under "<tx_hash>", appending each
// transaction's hash to both sender's and recipient's "addr_<address>"
// index (spec.md §6 durable state layout).
func (db *DB) PutBlock(block *types.Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	batch := db.pb.NewIndexedBatch()
	defer batch.Close()

	blockBytes, err := json.Marshal(block)
	if err != nil {
		return err
	}
	if err := batch.Set(blockKey(block.Hash), blockBytes, nil); err != nil {
		return err
	}

	for _, tx := range block.Transactions {
		txBytes, err := json.Marshal(tx)
		if err != nil {
			return err
		}
		if err := batch.Set([]byte(tx.Hash()), txBytes, nil); err != nil {
			return err
		}
		if err := db.appendAddrIndexLocked(batch, tx.Recipient, tx.Hash()); err != nil {
			return err
		}
		if !tx.IsCoinbase() && tx.Sender != tx.Recipient {
			if err := db.appendAddrIndexLocked(batch, tx.Sender, tx.Hash()); err != nil {
				return err
			}
		}
	}
	return batch.Commit(pebble.Sync)
}

// appendAddrIndexLocked appends txHash to address's index list, reading the
// list through batch so earlier appends in the same batch are kept. Caller
// must hold db.mu.
func (db *DB) appendAddrIndexLocked(batch *pebble.Batch, address, txHash string) error {
	existing, err := db.readAddrIndexLocked(batch, address)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	existing = append(existing, txHash)
	data, err := json.Marshal(existing)
	if err != nil {
		return err
	}
	return batch.Set(addrKey(address), data, nil)
}

func (db *DB) readAddrIndexLocked(r pebble.Reader, address string) ([]string, error) {
	value, closer, err := r.Get(addrKey(address))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var hashes []string
	if err := json.Unmarshal(value, &hashes); err != nil {
		return nil, err
	}
	return hashes, nil
}

// GetBlock looks up a block by hash.
func (db *DB) GetBlock(hash string) (*types.Block, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	value, closer, err := db.pb.Get(blockKey(hash))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var block types.Block
	if err := json.Unmarshal(value, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// GetTransaction looks up a transaction by hash.
func (db *DB) GetTransaction(hash string) (*types.Transaction, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	value, closer, err := db.pb.Get([]byte(hash))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var tx types.Transaction
	if err := json.Unmarshal(value, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// WalletTransactions returns every transaction hash recorded against
// address's index (spec.md §6 "get wallet transactions" client endpoint).
func (db *DB) WalletTransactions(address string) ([]string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	hashes, err := db.readAddrIndexLocked(db.pb, address)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return hashes, err
}

// Balance recomputes address's balance by scanning its address index:
// balance = Σ(recipient==a ? amount : 0) − Σ(sender==a ? amount+fee : 0)
// (spec.md §6).
func (db *DB) Balance(address string) (types.Amount, error) {
	hashes, err := db.WalletTransactions(address)
	if err != nil {
		return types.Amount{}, err
	}
	var balance float64
	for _, hash := range hashes {
		tx, err := db.GetTransaction(hash)
		if err != nil {
			return types.Amount{}, err
		}
		if tx.Recipient == address {
			balance += tx.Amount.Float64()
		}
		if tx.Sender == address {
			balance -= tx.Amount.Float64() + tx.Fee.Float64()
		}
	}
	return types.NewAmount(balance)
}

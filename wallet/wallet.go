// Package wallet implements the "create wallet" client RPC endpoint of
// spec.md §6: generate a secp256k1 keypair and derive its address. The
// HTTP adapter that exposes this is out of scope; this package is the core
// call it delegates to.
package wallet

import (
	"encoding/hex"

	"github.com/felipemeriga/artemis/crypto"
)

// Wallet pairs a private key with its derived address.
type Wallet struct {
	PrivateKey *crypto.PrivateKey
	Address    string
}

// New generates a fresh secp256k1 keypair and derives its address.
func New() (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &Wallet{PrivateKey: key, Address: key.Address()}, nil
}

// PrivateKeyHex returns the hex-encoded raw private scalar, the form a
// client would persist to reuse the wallet across process restarts.
func (w *Wallet) PrivateKeyHex() string {
	return hex.EncodeToString(w.PrivateKey.Bytes())
}

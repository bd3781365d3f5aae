// Package crypto implements the signing and verification contract that ties
// transactions to wallet addresses: ECDSA over secp256k1 with recoverable
// signatures, the same curve and recovery scheme the teacher's own
// transaction signer (core/types/transaction_signing_rollup.go) uses for
// Ethereum transactions.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SignatureLength is the size in bytes of a serialized recoverable
// signature: 64 bytes of compact (r, s) plus a 1-byte recovery id.
const SignatureLength = 65

var (
	// ErrInvalidSignatureLength is returned when a signature is not exactly
	// SignatureLength bytes.
	ErrInvalidSignatureLength = errors.New("crypto: signature must be 65 bytes")
	// ErrInvalidRecoveryID is returned when the trailing recovery-id byte of
	// a signature is out of the valid [0,3] range.
	ErrInvalidRecoveryID = errors.New("crypto: invalid recovery id")
)

// PrivateKey wraps a secp256k1 scalar and exposes the operations a wallet
// needs: signing and deriving its own address.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 keypair.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// Address returns hex(SHA-256(serialized public key)), the node's sole
// notion of identity (spec.md §4.2).
func (p *PrivateKey) Address() string {
	return addressFromPubKey(p.key.PubKey())
}

// Bytes returns the raw 32-byte private scalar.
func (p *PrivateKey) Bytes() []byte {
	return p.key.Serialize()
}

// Sign produces a 65-byte recoverable signature over digest, which the
// caller must have already computed as SHA-256 of the canonical transaction
// byte sequence (spec.md §4.2).
func (p *PrivateKey) Sign(digest []byte) ([]byte, error) {
	sig := ecdsa.SignCompact(p.key, digest, false)
	// secp256k1/v4 returns [recovery_id | 64-byte r||s]; the wire format
	// described in spec.md §3 is [64-byte r||s | recovery_id], matching the
	// "64 compact ECDSA + 1 recovery id" layout used by Ethereum-style
	// signatures.
	out := make([]byte, SignatureLength)
	copy(out, sig[1:])
	out[64] = sig[0] - 27 // SignCompact biases the recovery id by 27
	return out, nil
}

// Recover recovers the address of the signer of digest given a 65-byte
// signature, or an error if the signature is malformed.
func Recover(digest, signature []byte) (string, error) {
	if len(signature) != SignatureLength {
		return "", ErrInvalidSignatureLength
	}
	recoveryID := signature[64]
	if recoveryID > 3 {
		return "", ErrInvalidRecoveryID
	}
	compact := make([]byte, SignatureLength)
	compact[0] = recoveryID + 27
	copy(compact[1:], signature[:64])

	pubKey, _, err := ecdsa.RecoverCompact(compact, digest)
	if err != nil {
		return "", err
	}
	return addressFromPubKey(pubKey), nil
}

func addressFromPubKey(pubKey *secp256k1.PublicKey) string {
	sum := sha256.Sum256(pubKey.SerializeCompressed())
	return hex.EncodeToString(sum[:])
}

// Package identity provides the account identities used by tweetdb: 32-byte
// ed25519 public keys, 64-byte signatures and the keypairs that produce them.
//
// Keys and signatures render as base58 text, the same form wallets and
// explorers show, so an id printed by the CLI can be pasted into a query.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"
)

const (
	// PublicKeySize is the size of an account identity in bytes
	PublicKeySize = ed25519.PublicKeySize
	// SignatureSize is the size of a detached signature in bytes
	SignatureSize = ed25519.SignatureSize
)

// PublicKey identifies an account (a record or an owner)
type PublicKey [PublicKeySize]byte

// ParsePublicKey decodes a base58 public key
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("invalid public key %q: %w", s, err)
	}
	if len(raw) != PublicKeySize {
		return pk, fmt.Errorf("invalid public key %q: decoded to %d bytes, want %d", s, len(raw), PublicKeySize)
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustParsePublicKey is ParsePublicKey for constants and tests
func MustParsePublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 form of the key
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// Bytes returns a copy of the raw key bytes
func (pk PublicKey) Bytes() []byte {
	b := make([]byte, PublicKeySize)
	copy(b, pk[:])
	return b
}

// IsZero reports whether the key is all zero bytes
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// MarshalText implements encoding.TextMarshaler
func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (pk *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

// Signature is a detached ed25519 signature
type Signature [SignatureSize]byte

// ParseSignature decodes a base58 signature
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	raw, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("invalid signature: %w", err)
	}
	if len(raw) != SignatureSize {
		return sig, fmt.Errorf("invalid signature: decoded to %d bytes, want %d", len(raw), SignatureSize)
	}
	copy(sig[:], raw)
	return sig, nil
}

// String returns the base58 form of the signature
func (s Signature) String() string {
	return base58.Encode(s[:])
}

// MarshalText implements encoding.TextMarshaler
func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Signature) UnmarshalText(text []byte) error {
	parsed, err := ParseSignature(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Verify checks sig over message against the public key
func Verify(pk PublicKey, message []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pk[:]), message, sig[:])
}

// Keypair holds an ed25519 private key and can sign on behalf of its public key
type Keypair struct {
	private ed25519.PrivateKey
}

// GenerateKeypair creates a new random keypair
func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return &Keypair{private: priv}, nil
}

// KeypairFromSeed derives a keypair from a 32-byte seed
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Keypair{private: ed25519.NewKeyFromSeed(seed)}, nil
}

// KeypairFromBytes wraps a 64-byte ed25519 private key
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	priv := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	copy(priv, b)

	// The trailing half must be the public key derived from the seed.
	derived := ed25519.NewKeyFromSeed(priv.Seed())
	if !derived.Equal(priv) {
		return nil, fmt.Errorf("private key does not match its embedded public key")
	}
	return &Keypair{private: priv}, nil
}

// PublicKey returns the identity this keypair signs for
func (kp *Keypair) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], kp.private.Public().(ed25519.PublicKey))
	return pk
}

// Sign produces a detached signature over message
func (kp *Keypair) Sign(message []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(kp.private, message))
	return sig
}

// LoadKeypair reads a keypair file: a JSON array of the 64 private key bytes
func LoadKeypair(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair file: %w", err)
	}

	var raw []byte
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("failed to parse keypair file: %w", err)
	}
	raw = make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("failed to parse keypair file: byte %d out of range: %d", i, v)
		}
		raw[i] = byte(v)
	}

	return KeypairFromBytes(raw)
}

// SaveKeypair writes the keypair in the format LoadKeypair reads, readable by the owner only
func SaveKeypair(path string, kp *Keypair) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create keypair directory: %w", err)
	}

	ints := make([]int, len(kp.private))
	for i, b := range kp.private {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return fmt.Errorf("failed to marshal keypair: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write keypair file: %w", err)
	}
	return nil
}

package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// PrivateKey wraps an ed25519 signing key.
type PrivateKey struct {
	ed25519.PrivateKey
}

// GeneratePrivateKey creates a fresh random keypair.
func GeneratePrivateKey() (*PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{priv}, nil
}

// PrivateKeyFromSeed rebuilds a keypair from its 32-byte seed.
func PrivateKeyFromSeed(seed []byte) (*PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &PrivateKey{ed25519.NewKeyFromSeed(seed)}, nil
}

// Seed returns the 32-byte seed the key was derived from.
func (k *PrivateKey) Seed() []byte {
	return k.PrivateKey.Seed()
}

// Identity returns the public identity controlled by the key.
func (k *PrivateKey) Identity() Identity {
	var id Identity
	copy(id[:], k.PrivateKey.Public().(ed25519.PublicKey))
	return id
}

// Sign produces an ed25519 signature over msg.
func (k *PrivateKey) Sign(msg []byte) []byte {
	return ed25519.Sign(k.PrivateKey, msg)
}

// Verify checks an ed25519 signature produced by the key behind id. Derived
// identities have no key and never verify.
func Verify(id Identity, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(id[:]), msg, sig)
}

package crypto

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/minio/sha256-simd"
)

const (
	// MaxSeeds bounds the number of seeds accepted by a derivation.
	MaxSeeds = 16
	// MaxSeedLength bounds the size of each individual seed.
	MaxSeedLength = 32
)

var derivedAddressMarker = []byte("ProgramDerivedAddress")

var (
	// ErrOnCurve is returned when a seed combination hashes to a valid ed25519
	// point, i.e. to an address that could have a private key.
	ErrOnCurve = errors.New("derived address lies on the ed25519 curve")
	// ErrNoViableNonce is returned when no nonce in 0..255 yields an
	// off-curve address.
	ErrNoViableNonce = errors.New("unable to find a viable derivation nonce")
	errTooManySeeds  = fmt.Errorf("at most %d seeds allowed", MaxSeeds)
)

// CreateDerivedAddress hashes the seeds together with the owning program and
// returns the resulting address if it has no corresponding private key. Only
// the program identified by program can act as signer for the address.
func CreateDerivedAddress(seeds [][]byte, program Identity) (Identity, error) {
	if len(seeds) > MaxSeeds {
		return Identity{}, errTooManySeeds
	}
	h := sha256.New()
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Identity{}, fmt.Errorf("seed %d exceeds %d bytes", i, MaxSeedLength)
		}
		h.Write(seed)
	}
	h.Write(program[:])
	h.Write(derivedAddressMarker)

	var addr Identity
	copy(addr[:], h.Sum(nil))
	if IsOnCurve(addr) {
		return Identity{}, ErrOnCurve
	}
	return addr, nil
}

// FindDerivedAddress searches the nonce space from 255 downwards and returns
// the first off-curve address together with the nonce that produced it. The
// nonce is appended as the final seed.
func FindDerivedAddress(seeds [][]byte, program Identity) (Identity, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Identity{}, 0, errTooManySeeds
	}
	withNonce := make([][]byte, len(seeds)+1)
	copy(withNonce, seeds)
	for nonce := 255; nonce >= 0; nonce-- {
		withNonce[len(seeds)] = []byte{byte(nonce)}
		addr, err := CreateDerivedAddress(withNonce, program)
		if errors.Is(err, ErrOnCurve) {
			continue
		}
		if err != nil {
			return Identity{}, 0, err
		}
		return addr, uint8(nonce), nil
	}
	return Identity{}, 0, ErrNoViableNonce
}

// IsOnCurve reports whether the identity decodes as an ed25519 point.
func IsOnCurve(id Identity) bool {
	_, err := new(edwards25519.Point).SetBytes(id[:])
	return err == nil
}

package crypto

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

// IdentitySize is the length in bytes of an account identity.
const IdentitySize = 32

// Identity is a 32-byte account address. For key-controlled accounts it is the
// ed25519 public key; for derived accounts it is an off-curve hash with no
// corresponding private key.
type Identity [IdentitySize]byte

// IdentityFromBytes copies b into an Identity.
func IdentityFromBytes(b []byte) (Identity, error) {
	var id Identity
	if len(b) != IdentitySize {
		return id, fmt.Errorf("identity must be %d bytes, got %d", IdentitySize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// ParseIdentity decodes the base58 text form of an identity.
func ParseIdentity(s string) (Identity, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Identity{}, fmt.Errorf("identity must not be empty")
	}
	decoded := base58.Decode(trimmed)
	if len(decoded) == 0 {
		return Identity{}, fmt.Errorf("invalid base58 identity %q", s)
	}
	return IdentityFromBytes(decoded)
}

// MustParseIdentity is like ParseIdentity but panics on malformed input. It is
// intended for program identifiers declared as package constants.
func MustParseIdentity(s string) Identity {
	id, err := ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id Identity) String() string {
	return base58.Encode(id[:])
}

// Bytes returns a copy of the raw identity bytes.
func (id Identity) Bytes() []byte {
	return append([]byte(nil), id[:]...)
}

// IsZero reports whether the identity is the all-zero default value.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// Equal reports whether two identities are identical.
func (id Identity) Equal(other Identity) bool {
	return bytes.Equal(id[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

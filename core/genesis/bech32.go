package genesis

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"

	"nftescrow/crypto"
)

// Bech32HRP is the human readable part of bech32 encoded identities.
const Bech32HRP = "nft"

// ParseAccount decodes an identity written either in base58 or as a bech32
// string with the nft prefix.
func ParseAccount(addr string) (crypto.Identity, error) {
	trimmed := strings.TrimSpace(addr)
	if strings.HasPrefix(strings.ToLower(trimmed), Bech32HRP+"1") {
		return ParseBech32Account(trimmed)
	}
	return crypto.ParseIdentity(trimmed)
}

// ParseBech32Account decodes a bech32 encoded identity.
func ParseBech32Account(addr string) (crypto.Identity, error) {
	var out crypto.Identity
	hrp, data, err := bech32.Decode(addr)
	if err != nil {
		return out, fmt.Errorf("decode bech32 account: %w", err)
	}
	if hrp != Bech32HRP {
		return out, fmt.Errorf("decode bech32 account: unsupported hrp %q", hrp)
	}
	decoded, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return out, fmt.Errorf("decode bech32 account: %w", err)
	}
	if len(decoded) != len(out) {
		return out, fmt.Errorf("decode bech32 account: invalid address length %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

// EncodeBech32Account renders id with the nft prefix.
func EncodeBech32Account(id crypto.Identity) (string, error) {
	conv, err := bech32.ConvertBits(id[:], 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(Bech32HRP, conv)
}

package token

import (
	"encoding/binary"
	"fmt"

	"nftescrow/crypto"
)

const (
	kindAsset   byte = 1
	kindHolding byte = 2

	// AssetSize is the encoded size of an asset account.
	AssetSize = 1 + 8 + 1 + crypto.IdentitySize
	// HoldingSize is the encoded size of a holding account.
	HoldingSize = 1 + crypto.IdentitySize + crypto.IdentitySize + 8
)

// Asset describes a non-fungible asset. Every asset is issued with a supply
// of exactly one unit and no decimals.
type Asset struct {
	Supply   uint64
	Decimals uint8
	Issuer   crypto.Identity
}

// Holding records how many units of Asset the Owner controls. Owner is the
// authority for transfers out of the holding.
type Holding struct {
	Asset  crypto.Identity
	Owner  crypto.Identity
	Amount uint64
}

// Encode serialises the asset into its fixed account layout.
func (a *Asset) Encode() []byte {
	buf := make([]byte, AssetSize)
	buf[0] = kindAsset
	binary.LittleEndian.PutUint64(buf[1:9], a.Supply)
	buf[9] = a.Decimals
	copy(buf[10:], a.Issuer[:])
	return buf
}

// DecodeAsset parses asset account data.
func DecodeAsset(data []byte) (*Asset, error) {
	if len(data) != AssetSize || data[0] != kindAsset {
		return nil, ErrNotAsset
	}
	a := &Asset{
		Supply:   binary.LittleEndian.Uint64(data[1:9]),
		Decimals: data[9],
	}
	copy(a.Issuer[:], data[10:])
	return a, nil
}

// Encode serialises the holding into its fixed account layout.
func (h *Holding) Encode() []byte {
	buf := make([]byte, HoldingSize)
	buf[0] = kindHolding
	copy(buf[1:33], h.Asset[:])
	copy(buf[33:65], h.Owner[:])
	binary.LittleEndian.PutUint64(buf[65:], h.Amount)
	return buf
}

// DecodeHolding parses holding account data.
func DecodeHolding(data []byte) (*Holding, error) {
	if len(data) != HoldingSize || data[0] != kindHolding {
		return nil, ErrNotHolding
	}
	h := &Holding{Amount: binary.LittleEndian.Uint64(data[65:])}
	copy(h.Asset[:], data[1:33])
	copy(h.Owner[:], data[33:65])
	return h, nil
}

func (h *Holding) String() string {
	return fmt.Sprintf("holding{asset=%s owner=%s amount=%d}", h.Asset, h.Owner, h.Amount)
}

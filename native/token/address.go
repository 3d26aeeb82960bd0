package token

import "nftescrow/crypto"

// ProgramID identifies the token program.
var ProgramID = crypto.MustParseIdentity("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

// HoldingSeeds returns the derivation seeds of the associated holding for
// owner and asset, without the nonce.
func HoldingSeeds(owner, asset crypto.Identity) [][]byte {
	return [][]byte{owner.Bytes(), ProgramID.Bytes(), asset.Bytes()}
}

// AssociatedHoldingAddress returns the canonical holding address for owner
// and asset together with its derivation nonce. Owners may themselves be
// derived addresses.
func AssociatedHoldingAddress(owner, asset crypto.Identity) (crypto.Identity, uint8, error) {
	return crypto.FindDerivedAddress(HoldingSeeds(owner, asset), ProgramID)
}

func holdingSignerSeeds(owner, asset crypto.Identity, nonce uint8) [][]byte {
	return append(HoldingSeeds(owner, asset), []byte{nonce})
}

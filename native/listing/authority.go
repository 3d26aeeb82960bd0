package listing

import "nftescrow/crypto"

// SeedPrefix is the domain tag mixed into every listing address.
var SeedPrefix = []byte("listing")

// ProgramID identifies the listing program.
var ProgramID = crypto.MustParseIdentity("Fg6PaFpoGXkYsidMpWxTWqkHF1Ei3V9MeK3fU7LGeXJ")

// ListingSeeds returns the derivation seeds for a seller/asset pair without
// the nonce.
func ListingSeeds(seller, asset crypto.Identity) [][]byte {
	return [][]byte{SeedPrefix, seller.Bytes(), asset.Bytes()}
}

// ListingSignerSeeds returns the full seed list, nonce included, that
// reproduces the listing address and lets the program sign for it.
func ListingSignerSeeds(seller, asset crypto.Identity, nonce uint8) [][]byte {
	return append(ListingSeeds(seller, asset), []byte{nonce})
}

// DeriveListingAddress searches for the listing address of seller and asset
// under program. The first viable nonce is returned alongside the address.
func DeriveListingAddress(program, seller, asset crypto.Identity) (crypto.Identity, uint8, error) {
	addr, nonce, err := crypto.FindDerivedAddress(ListingSeeds(seller, asset), program)
	if err != nil {
		return crypto.Identity{}, 0, wrap(ErrDerivation, err)
	}
	return addr, nonce, nil
}

// ListingAddress recomputes the address for a stored nonce. A wrong nonce
// either fails or yields a different address.
func ListingAddress(program, seller, asset crypto.Identity, nonce uint8) (crypto.Identity, error) {
	addr, err := crypto.CreateDerivedAddress(ListingSignerSeeds(seller, asset, nonce), program)
	if err != nil {
		return crypto.Identity{}, wrap(ErrDerivation, err)
	}
	return addr, nil
}

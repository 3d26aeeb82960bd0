package listing

import (
	"encoding/binary"

	"nftescrow/core/types"
	"nftescrow/crypto"
	"nftescrow/native/token"
)

// Addresses bundles every address involved in a seller/asset listing.
type Addresses struct {
	Listing       crypto.Identity
	Nonce         uint8
	Escrow        crypto.Identity
	SellerHolding crypto.Identity
}

// ResolveAddresses derives the listing, escrow and seller holding addresses
// for seller and asset.
func ResolveAddresses(seller, asset crypto.Identity) (Addresses, error) {
	listingAddr, nonce, err := DeriveListingAddress(ProgramID, seller, asset)
	if err != nil {
		return Addresses{}, err
	}
	escrow, _, err := token.AssociatedHoldingAddress(listingAddr, asset)
	if err != nil {
		return Addresses{}, err
	}
	sellerHolding, _, err := token.AssociatedHoldingAddress(seller, asset)
	if err != nil {
		return Addresses{}, err
	}
	return Addresses{Listing: listingAddr, Nonce: nonce, Escrow: escrow, SellerHolding: sellerHolding}, nil
}

// CreateListingInstruction builds the create_listing instruction. The escrow
// holding must already exist; see CreateListingInstructions.
func CreateListingInstruction(seller, asset crypto.Identity, price uint64) (types.Instruction, error) {
	addrs, err := ResolveAddresses(seller, asset)
	if err != nil {
		return types.Instruction{}, err
	}
	data := make([]byte, 16)
	copy(data, createListingTag[:])
	binary.LittleEndian.PutUint64(data[8:], price)
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			{Address: seller, IsSigner: true, IsWritable: true},
			{Address: addrs.Listing, IsWritable: true},
			{Address: asset},
			{Address: addrs.SellerHolding, IsWritable: true},
			{Address: addrs.Escrow, IsWritable: true},
			{Address: token.ProgramID},
			{Address: token.SystemProgramID},
			{Address: RentSysvarID},
		},
		Data: data,
	}, nil
}

// CreateListingInstructions returns the escrow holding creation followed by
// create_listing, ready to be submitted as one transaction.
func CreateListingInstructions(seller, asset crypto.Identity, price uint64) ([]types.Instruction, error) {
	addrs, err := ResolveAddresses(seller, asset)
	if err != nil {
		return nil, err
	}
	escrow, err := token.CreateHoldingInstruction(seller, addrs.Listing, asset)
	if err != nil {
		return nil, err
	}
	create, err := CreateListingInstruction(seller, asset, price)
	if err != nil {
		return nil, err
	}
	return []types.Instruction{escrow, create}, nil
}

// PurchaseInstruction builds the purchase instruction for buyer.
func PurchaseInstruction(buyer, seller, asset crypto.Identity) (types.Instruction, error) {
	addrs, err := ResolveAddresses(seller, asset)
	if err != nil {
		return types.Instruction{}, err
	}
	buyerHolding, _, err := token.AssociatedHoldingAddress(buyer, asset)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			{Address: buyer, IsSigner: true, IsWritable: true},
			{Address: seller, IsWritable: true},
			{Address: addrs.Listing, IsWritable: true},
			{Address: asset},
			{Address: addrs.Escrow, IsWritable: true},
			{Address: buyerHolding, IsWritable: true},
			{Address: token.ProgramID},
			{Address: token.SystemProgramID},
		},
		Data: append([]byte(nil), purchaseTag[:]...),
	}, nil
}

// CancelInstruction builds the cancel instruction for seller.
func CancelInstruction(seller, asset crypto.Identity) (types.Instruction, error) {
	addrs, err := ResolveAddresses(seller, asset)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			{Address: seller, IsSigner: true, IsWritable: true},
			{Address: addrs.Listing, IsWritable: true},
			{Address: asset},
			{Address: addrs.Escrow, IsWritable: true},
			{Address: addrs.SellerHolding, IsWritable: true},
			{Address: token.ProgramID},
		},
		Data: append([]byte(nil), cancelTag[:]...),
	}, nil
}

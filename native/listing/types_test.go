package listing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nftescrow/crypto"
)

func TestListingCodecLayout(t *testing.T) {
	var seller, asset crypto.Identity
	seller[0], asset[31] = 0x11, 0x22
	l := &Listing{Active: true, Seller: seller, Asset: asset, Price: 1_000, Nonce: 254}

	encoded := l.Encode()
	require.Equal(t, 82, ListingSize)
	require.Len(t, encoded, ListingSize)
	require.Equal(t, recordTag[:], encoded[:8])
	require.Equal(t, byte(1), encoded[8])
	require.Equal(t, byte(0x11), encoded[9])
	require.Equal(t, byte(0x22), encoded[72])
	require.Equal(t, []byte{0xe8, 0x03, 0, 0, 0, 0, 0, 0}, encoded[73:81])
	require.Equal(t, byte(254), encoded[81])

	decoded, err := DecodeListing(encoded)
	require.NoError(t, err)
	require.Equal(t, l, decoded)
}

func TestDecodeListingRejectsForeignData(t *testing.T) {
	valid := (&Listing{Active: true, Price: 1}).Encode()
	_, err := DecodeListing(valid[:ListingSize-1])
	require.Error(t, err)
	_, err = DecodeListing(append(append([]byte(nil), valid...), 0))
	require.Error(t, err)

	data := (&Listing{Active: true, Price: 1}).Encode()
	data[0] ^= 0xff
	_, err = DecodeListing(data)
	require.Error(t, err)

	data = (&Listing{}).Encode()
	data[8] = 2
	_, err = DecodeListing(data)
	require.Error(t, err)
}

func TestDeriveListingAddressDeterministic(t *testing.T) {
	seller, asset := newIdentity(t), newIdentity(t)
	first, nonce, err := DeriveListingAddress(ProgramID, seller, asset)
	require.NoError(t, err)
	second, nonce2, err := DeriveListingAddress(ProgramID, seller, asset)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, nonce, nonce2)
	require.False(t, crypto.IsOnCurve(first))

	again, err := ListingAddress(ProgramID, seller, asset, nonce)
	require.NoError(t, err)
	require.Equal(t, first, again)

	other, _, err := DeriveListingAddress(ProgramID, asset, seller)
	require.NoError(t, err)
	require.NotEqual(t, first, other)
}

func TestWrongNonceNeverReproducesAddress(t *testing.T) {
	seller, asset := newIdentity(t), newIdentity(t)
	addr, nonce, err := DeriveListingAddress(ProgramID, seller, asset)
	require.NoError(t, err)
	for n := 0; n < 256; n++ {
		if uint8(n) == nonce {
			continue
		}
		candidate, err := ListingAddress(ProgramID, seller, asset, uint8(n))
		if err != nil {
			require.ErrorIs(t, err, ErrDerivation)
			continue
		}
		require.NotEqual(t, addr, candidate)
	}
}

func TestErrorCodes(t *testing.T) {
	require.Equal(t, Code(6000), ErrAddressMismatch.Code)
	require.Equal(t, Code(6003), ErrInvalidPrice.Code)
	require.Equal(t, Code(6010), ErrInsufficientFunds.Code)
	require.Equal(t, Code(6011), ErrArithmeticOverflow.Code)

	wrapped := wrap(ErrDerivation, crypto.ErrNoViableNonce)
	require.ErrorIs(t, wrapped, ErrDerivation)
	require.ErrorIs(t, wrapped, crypto.ErrNoViableNonce)
	code, ok := CodeOf(wrapped)
	require.True(t, ok)
	require.Equal(t, CodeDerivation, code)
	require.Equal(t, "DerivationFailed", NameOf(wrapped))

	_, ok = CodeOf(errMalformedRecord)
	require.False(t, ok)
}

func TestInstructionDecoding(t *testing.T) {
	seller, asset, buyer := newIdentity(t), newIdentity(t), newIdentity(t)
	create, err := CreateListingInstruction(seller, asset, 42)
	require.NoError(t, err)
	require.Equal(t, OpCreateListing, InstructionName(create.Data))
	require.Len(t, create.Accounts, 8)
	require.True(t, create.Accounts[0].IsSigner)

	purchase, err := PurchaseInstruction(buyer, seller, asset)
	require.NoError(t, err)
	require.Equal(t, OpPurchase, InstructionName(purchase.Data))
	require.False(t, purchase.Accounts[1].IsSigner)

	cancel, err := CancelInstruction(seller, asset)
	require.NoError(t, err)
	require.Equal(t, OpCancel, InstructionName(cancel.Data))
	require.Equal(t, OpUnknown, InstructionName([]byte{1, 2, 3}))

	p := NewProgram(nil)
	err = p.Process(newMockHost(), create.Accounts[:3], create.Data)
	require.ErrorIs(t, err, ErrInvalidInstruction)
	err = p.Process(newMockHost(), create.Accounts, create.Data[:8])
	require.ErrorIs(t, err, ErrInvalidInstruction)
}

func TestProgramDispatchesCreate(t *testing.T) {
	f := newFixture(t)
	f.host.signers[f.seller] = true
	ix, err := CreateListingInstruction(f.seller, f.asset, 7)
	require.NoError(t, err)
	require.NoError(t, NewProgram(f.engine).Process(f.host, ix.Accounts, ix.Data))
	record, err := DecodeListing(f.host.accounts[f.addrs.Listing].Data)
	require.NoError(t, err)
	require.Equal(t, uint64(7), record.Price)
}

package listing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"nftescrow/core/events"
	"nftescrow/core/types"
	"nftescrow/crypto"
	"nftescrow/native/token"
)

const testRentDeposit = 1_000

type mockHost struct {
	program  crypto.Identity
	accounts map[crypto.Identity]*types.Account
	signers  map[crypto.Identity]bool
	emitted  []events.Event
	tokens   *token.Program
}

func newMockHost() *mockHost {
	return &mockHost{
		program:  ProgramID,
		accounts: make(map[crypto.Identity]*types.Account),
		signers:  make(map[crypto.Identity]bool),
		tokens:   token.NewProgram(),
	}
}

func (m *mockHost) ProgramID() crypto.Identity { return m.program }

func (m *mockHost) IsSigner(id crypto.Identity) bool { return m.signers[id] }

func (m *mockHost) Account(id crypto.Identity) (*types.Account, error) {
	return m.accounts[id].Clone(), nil
}

func (m *mockHost) SetLamports(id crypto.Identity, lamports uint64) error {
	acc := m.accounts[id]
	if acc == nil {
		acc = &types.Account{}
		m.accounts[id] = acc
	}
	acc.Lamports = lamports
	return nil
}

func (m *mockHost) CreateAccount(payer, address crypto.Identity, space int, owner crypto.Identity, seeds [][]byte) error {
	if seeds != nil {
		derived, err := crypto.CreateDerivedAddress(seeds, m.program)
		if err != nil {
			return err
		}
		if derived != address {
			return errors.New("mock: seeds do not derive address")
		}
	}
	funder := m.accounts[payer]
	if funder == nil || funder.Lamports < testRentDeposit {
		return errors.New("mock: payer cannot fund account")
	}
	funder.Lamports -= testRentDeposit
	m.accounts[address] = &types.Account{Lamports: testRentDeposit, Owner: owner, Data: make([]byte, space)}
	return nil
}

func (m *mockHost) WriteData(id crypto.Identity, data []byte) error {
	acc := m.accounts[id]
	if acc == nil {
		return errors.New("mock: missing account")
	}
	acc.Data = append([]byte(nil), data...)
	return nil
}

func (m *mockHost) CloseAccount(id, destination crypto.Identity) error {
	acc := m.accounts[id]
	if acc == nil {
		return errors.New("mock: missing account")
	}
	var balance uint64
	if dest := m.accounts[destination]; dest != nil {
		balance = dest.Lamports
	}
	if err := m.SetLamports(destination, balance+acc.Lamports); err != nil {
		return err
	}
	delete(m.accounts, id)
	return nil
}

func (m *mockHost) Invoke(ix types.Instruction, signerSeeds ...[][]byte) error {
	inner := &tokenView{mockHost: m, derived: make(map[crypto.Identity]bool)}
	for _, seeds := range signerSeeds {
		addr, err := crypto.CreateDerivedAddress(seeds, m.program)
		if err != nil {
			return err
		}
		inner.derived[addr] = true
	}
	return m.tokens.Process(inner, ix.Accounts, ix.Data)
}

func (m *mockHost) Emit(evt events.Event) { m.emitted = append(m.emitted, evt) }

// tokenView is the host the token program sees during a nested call.
type tokenView struct {
	*mockHost
	derived map[crypto.Identity]bool
}

func (v *tokenView) IsSigner(id crypto.Identity) bool {
	return v.mockHost.IsSigner(id) || v.derived[id]
}

func (v *tokenView) CreateAccount(payer, address crypto.Identity, space int, owner crypto.Identity, seeds [][]byte) error {
	return errors.New("mock: not supported")
}

type fixture struct {
	host          *mockHost
	engine        *Engine
	seller        crypto.Identity
	buyer         crypto.Identity
	asset         crypto.Identity
	addrs         Addresses
	buyerHolding  crypto.Identity
	sellerBalance uint64
}

func newIdentity(t *testing.T) crypto.Identity {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key.Identity()
}

func putHolding(host *mockHost, addr, asset, owner crypto.Identity, amount uint64) {
	h := &token.Holding{Asset: asset, Owner: owner, Amount: amount}
	host.accounts[addr] = &types.Account{Lamports: testRentDeposit, Owner: token.ProgramID, Data: h.Encode()}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		host:          newMockHost(),
		engine:        NewEngine(),
		seller:        newIdentity(t),
		buyer:         newIdentity(t),
		asset:         newIdentity(t),
		sellerBalance: 50_000,
	}
	addrs, err := ResolveAddresses(f.seller, f.asset)
	require.NoError(t, err)
	f.addrs = addrs
	f.buyerHolding, _, err = token.AssociatedHoldingAddress(f.buyer, f.asset)
	require.NoError(t, err)

	asset := &token.Asset{Supply: 1, Issuer: f.seller}
	f.host.accounts[f.asset] = &types.Account{Lamports: testRentDeposit, Owner: token.ProgramID, Data: asset.Encode()}
	f.host.accounts[f.seller] = &types.Account{Lamports: f.sellerBalance}
	f.host.accounts[f.buyer] = &types.Account{Lamports: 1_500}
	putHolding(f.host, addrs.SellerHolding, f.asset, f.seller, 1)
	putHolding(f.host, addrs.Escrow, f.asset, addrs.Listing, 0)
	putHolding(f.host, f.buyerHolding, f.asset, f.buyer, 0)
	return f
}

func (f *fixture) createAccounts() CreateAccounts {
	return CreateAccounts{
		Seller:        f.seller,
		Listing:       f.addrs.Listing,
		Asset:         f.asset,
		SellerHolding: f.addrs.SellerHolding,
		Escrow:        f.addrs.Escrow,
	}
}

func (f *fixture) purchaseAccounts() PurchaseAccounts {
	return PurchaseAccounts{
		Buyer:        f.buyer,
		Seller:       f.seller,
		Listing:      f.addrs.Listing,
		Asset:        f.asset,
		Escrow:       f.addrs.Escrow,
		BuyerHolding: f.buyerHolding,
	}
}

func (f *fixture) cancelAccounts() CancelAccounts {
	return CancelAccounts{
		Seller:        f.seller,
		Listing:       f.addrs.Listing,
		Asset:         f.asset,
		Escrow:        f.addrs.Escrow,
		SellerHolding: f.addrs.SellerHolding,
	}
}

func (f *fixture) create(t *testing.T, price uint64) {
	t.Helper()
	f.host.signers[f.seller] = true
	require.NoError(t, f.engine.CreateListing(f.host, f.createAccounts(), price))
	delete(f.host.signers, f.seller)
}

func (f *fixture) holding(t *testing.T, addr crypto.Identity) *token.Holding {
	t.Helper()
	h, err := token.LoadHolding(f.host.Account(addr))
	require.NoError(t, err)
	return h
}

func TestCreateListingEscrowsAsset(t *testing.T) {
	f := newFixture(t)
	f.create(t, 1_000)

	acc := f.host.accounts[f.addrs.Listing]
	require.NotNil(t, acc)
	require.Equal(t, ProgramID, acc.Owner)
	record, err := DecodeListing(acc.Data)
	require.NoError(t, err)
	require.Equal(t, &Listing{Active: true, Seller: f.seller, Asset: f.asset, Price: 1_000, Nonce: f.addrs.Nonce}, record)

	require.Zero(t, f.holding(t, f.addrs.SellerHolding).Amount)
	require.Equal(t, uint64(1), f.holding(t, f.addrs.Escrow).Amount)
	require.Equal(t, f.sellerBalance-testRentDeposit, f.host.accounts[f.seller].Lamports)

	require.Len(t, f.host.emitted, 1)
	evt := f.host.emitted[0].Event()
	require.Equal(t, EventTypeListingCreated, evt.Type)
	require.Equal(t, "1000", evt.Attributes["price"])
	require.Equal(t, f.addrs.Listing.String(), evt.Attributes["listing"])
}

func TestCreateListingRejectsZeroPrice(t *testing.T) {
	f := newFixture(t)
	f.host.signers[f.seller] = true
	err := f.engine.CreateListing(f.host, f.createAccounts(), 0)
	require.ErrorIs(t, err, ErrInvalidPrice)
	require.Nil(t, f.host.accounts[f.addrs.Listing])
	require.Equal(t, uint64(1), f.holding(t, f.addrs.SellerHolding).Amount)
}

func TestCreateListingTwiceFails(t *testing.T) {
	f := newFixture(t)
	f.create(t, 1_000)
	before := f.host.accounts[f.addrs.Listing].Clone()

	f.host.signers[f.seller] = true
	err := f.engine.CreateListing(f.host, f.createAccounts(), 2_000)
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	require.Equal(t, before, f.host.accounts[f.addrs.Listing])
}

func TestCreateListingPreconditions(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(t *testing.T, f *fixture, accts *CreateAccounts)
		want   *Error
	}{
		{
			name: "spoofed listing address",
			mutate: func(t *testing.T, f *fixture, accts *CreateAccounts) {
				accts.Listing = newIdentity(t)
			},
			want: ErrAddressMismatch,
		},
		{
			name: "seller holding owned by someone else",
			mutate: func(t *testing.T, f *fixture, accts *CreateAccounts) {
				putHolding(f.host, f.addrs.SellerHolding, f.asset, f.buyer, 1)
			},
			want: ErrOwnerMismatch,
		},
		{
			name: "escrow controlled by the seller",
			mutate: func(t *testing.T, f *fixture, accts *CreateAccounts) {
				putHolding(f.host, f.addrs.Escrow, f.asset, f.seller, 0)
			},
			want: ErrAuthorityMismatch,
		},
		{
			name: "escrow already funded",
			mutate: func(t *testing.T, f *fixture, accts *CreateAccounts) {
				putHolding(f.host, f.addrs.Escrow, f.asset, f.addrs.Listing, 1)
			},
			want: ErrEscrowMustBeEmpty,
		},
		{
			name: "seller has no unit",
			mutate: func(t *testing.T, f *fixture, accts *CreateAccounts) {
				putHolding(f.host, f.addrs.SellerHolding, f.asset, f.seller, 0)
			},
			want: ErrInsufficientTokenBalance,
		},
		{
			name: "escrow for another asset",
			mutate: func(t *testing.T, f *fixture, accts *CreateAccounts) {
				putHolding(f.host, f.addrs.Escrow, newIdentity(t), f.addrs.Listing, 0)
			},
			want: ErrAssetMismatch,
		},
		{
			name: "seller did not sign",
			mutate: func(t *testing.T, f *fixture, accts *CreateAccounts) {
				delete(f.host.signers, f.seller)
			},
			want: ErrUnauthorized,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.host.signers[f.seller] = true
			accts := f.createAccounts()
			tc.mutate(t, f, &accts)
			err := f.engine.CreateListing(f.host, accts, 1_000)
			require.ErrorIs(t, err, tc.want)
			code, ok := CodeOf(err)
			require.True(t, ok)
			require.Equal(t, tc.want.Code, code)
			require.Nil(t, f.host.accounts[f.addrs.Listing])
			require.Empty(t, f.host.emitted)
		})
	}
}

func TestPurchaseSettlesSale(t *testing.T) {
	f := newFixture(t)
	f.create(t, 1_000)
	sellerBefore := f.host.accounts[f.seller].Lamports

	f.host.signers[f.buyer] = true
	require.NoError(t, f.engine.Purchase(f.host, f.purchaseAccounts()))

	require.Equal(t, uint64(500), f.host.accounts[f.buyer].Lamports)
	// price plus the reclaimed escrow and listing deposits
	require.Equal(t, sellerBefore+1_000+2*testRentDeposit, f.host.accounts[f.seller].Lamports)
	require.Equal(t, uint64(1), f.holding(t, f.buyerHolding).Amount)
	require.Nil(t, f.host.accounts[f.addrs.Listing])
	require.Nil(t, f.host.accounts[f.addrs.Escrow])

	last := f.host.emitted[len(f.host.emitted)-1].Event()
	require.Equal(t, EventTypeListingPurchased, last.Type)
	require.Equal(t, f.buyer.String(), last.Attributes["buyer"])
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.create(t, 2_000)
	f.host.signers[f.buyer] = true

	err := f.engine.Purchase(f.host, f.purchaseAccounts())
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.Equal(t, uint64(1_500), f.host.accounts[f.buyer].Lamports)
	require.Equal(t, uint64(1), f.holding(t, f.addrs.Escrow).Amount)
	require.NotNil(t, f.host.accounts[f.addrs.Listing])
}

func TestPurchasePreconditions(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(t *testing.T, f *fixture, accts *PurchaseAccounts)
		want   *Error
	}{
		{
			name: "wrong seller",
			mutate: func(t *testing.T, f *fixture, accts *PurchaseAccounts) {
				accts.Seller = newIdentity(t)
			},
			want: ErrOwnerMismatch,
		},
		{
			name: "wrong asset",
			mutate: func(t *testing.T, f *fixture, accts *PurchaseAccounts) {
				accts.Asset = newIdentity(t)
			},
			want: ErrAssetMismatch,
		},
		{
			name: "buyer holding owned by seller",
			mutate: func(t *testing.T, f *fixture, accts *PurchaseAccounts) {
				putHolding(f.host, f.buyerHolding, f.asset, f.seller, 0)
			},
			want: ErrOwnerMismatch,
		},
		{
			name: "escrow emptied",
			mutate: func(t *testing.T, f *fixture, accts *PurchaseAccounts) {
				putHolding(f.host, f.addrs.Escrow, f.asset, f.addrs.Listing, 0)
			},
			want: ErrInsufficientTokenBalance,
		},
		{
			name: "substituted escrow",
			mutate: func(t *testing.T, f *fixture, accts *PurchaseAccounts) {
				fake := newIdentity(t)
				putHolding(f.host, fake, f.asset, f.buyer, 1)
				accts.Escrow = fake
			},
			want: ErrAuthorityMismatch,
		},
		{
			name: "buyer did not sign",
			mutate: func(t *testing.T, f *fixture, accts *PurchaseAccounts) {
				delete(f.host.signers, f.buyer)
			},
			want: ErrUnauthorized,
		},
		{
			name: "listing absent",
			mutate: func(t *testing.T, f *fixture, accts *PurchaseAccounts) {
				delete(f.host.accounts, f.addrs.Listing)
			},
			want: ErrNotInitialized,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.create(t, 1_000)
			f.host.signers[f.buyer] = true
			accts := f.purchaseAccounts()
			tc.mutate(t, f, &accts)
			require.ErrorIs(t, f.engine.Purchase(f.host, accts), tc.want)
			require.Equal(t, uint64(1_500), f.host.accounts[f.buyer].Lamports)
		})
	}
}

func TestPurchaseWithTamperedNonceFails(t *testing.T) {
	f := newFixture(t)
	f.create(t, 1_000)

	acc := f.host.accounts[f.addrs.Listing]
	record, err := DecodeListing(acc.Data)
	require.NoError(t, err)
	record.Nonce--
	acc.Data = record.Encode()

	f.host.signers[f.buyer] = true
	err = f.engine.Purchase(f.host, f.purchaseAccounts())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrAddressMismatch) || errors.Is(err, ErrDerivation))
	require.Equal(t, uint64(1), f.holding(t, f.addrs.Escrow).Amount)
}

func TestCancelReturnsAsset(t *testing.T) {
	f := newFixture(t)
	f.create(t, 1_000)

	f.host.signers[f.seller] = true
	require.NoError(t, f.engine.Cancel(f.host, f.cancelAccounts()))

	require.Equal(t, uint64(1), f.holding(t, f.addrs.SellerHolding).Amount)
	require.Nil(t, f.host.accounts[f.addrs.Listing])
	require.Nil(t, f.host.accounts[f.addrs.Escrow])
	require.Equal(t, f.sellerBalance+testRentDeposit, f.host.accounts[f.seller].Lamports)
	require.Equal(t, EventTypeListingCancelled, f.host.emitted[len(f.host.emitted)-1].EventType())
}

func TestCancelByOtherIdentityIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	f.create(t, 1_000)

	f.host.signers[f.buyer] = true
	accts := f.cancelAccounts()
	accts.Seller = f.buyer
	require.ErrorIs(t, f.engine.Cancel(f.host, accts), ErrUnauthorized)

	accts = f.cancelAccounts()
	require.ErrorIs(t, f.engine.Cancel(f.host, accts), ErrUnauthorized)

	require.Equal(t, uint64(1), f.holding(t, f.addrs.Escrow).Amount)
	require.NotNil(t, f.host.accounts[f.addrs.Listing])
}

func TestCreateCancelCreateRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.create(t, 1_000)
	f.host.signers[f.seller] = true
	require.NoError(t, f.engine.Cancel(f.host, f.cancelAccounts()))

	putHolding(f.host, f.addrs.Escrow, f.asset, f.addrs.Listing, 0)
	require.NoError(t, f.engine.CreateListing(f.host, f.createAccounts(), 3_000))
	record, err := DecodeListing(f.host.accounts[f.addrs.Listing].Data)
	require.NoError(t, err)
	require.Equal(t, uint64(3_000), record.Price)
	require.True(t, record.Active)
}

func TestCheckedArithmetic(t *testing.T) {
	_, err := checkedAdd(^uint64(0), 1)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
	_, err = checkedSub(1, 2)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
	v, err := checkedSub(1_500, 1_000)
	require.NoError(t, err)
	require.Equal(t, uint64(500), v)
}

func TestTransferLamportsOverflow(t *testing.T) {
	host := newMockHost()
	from, to := newIdentity(t), newIdentity(t)
	host.accounts[from] = &types.Account{Lamports: 10}
	host.accounts[to] = &types.Account{Lamports: ^uint64(0)}
	require.ErrorIs(t, transferLamports(host, from, to, 5), ErrArithmeticOverflow)
	require.Equal(t, uint64(10), host.accounts[from].Lamports)
}

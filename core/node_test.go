package core

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	coreerrors "nftescrow/core/errors"
	"nftescrow/core/events"
	"nftescrow/core/genesis"
	"nftescrow/core/types"
	"nftescrow/crypto"
	"nftescrow/native/bank"
	nativecommon "nftescrow/native/common"
	"nftescrow/native/listing"
	"nftescrow/native/token"
	"nftescrow/storage"
)

var testRent = types.Rent{LamportsPerByteYear: 1, ExemptionYears: 1}

var (
	holdingDeposit = testRent.MinimumBalance(token.HoldingSize)
	listingDeposit = testRent.MinimumBalance(listing.ListingSize)
)

type harness struct {
	t      *testing.T
	db     storage.Database
	node   *Node
	seller *crypto.PrivateKey
	buyer  *crypto.PrivateKey
	asset  crypto.Identity
	nonce  uint64
	sink   *events.Buffer
}

func testKey(t *testing.T, b byte) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.PrivateKeyFromSeed(bytes.Repeat([]byte{b}, 32))
	require.NoError(t, err)
	return key
}

func testGenesis(t *testing.T, seller, buyer, asset crypto.Identity, buyerLamports uint64) *genesis.GenesisSpec {
	t.Helper()
	doc := fmt.Sprintf(`genesisTime: "2024-01-01T00:00:00Z"
accounts:
  - address: %s
    lamports: 50000
  - address: %s
    lamports: %d
assets:
  - asset: %s
    owner: %s
`, seller, buyer, buyerLamports, asset, seller)
	spec, err := genesis.ParseGenesisSpec([]byte(doc))
	require.NoError(t, err)
	return spec
}

func newHarnessWith(t *testing.T, db storage.Database, buyerLamports uint64, cfg NodeConfig) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		db:     db,
		seller: testKey(t, 1),
		buyer:  testKey(t, 2),
		asset:  testKey(t, 3).Identity(),
		sink:   &events.Buffer{},
	}
	cfg.Rent = testRent
	cfg.Genesis = testGenesis(t, h.seller.Identity(), h.buyer.Identity(), h.asset, buyerLamports)
	node, err := NewNode(db, cfg)
	require.NoError(t, err)
	node.SetEmitter(h.sink)
	h.node = node
	return h
}

// newHarness funds the buyer with 1500 lamports on top of the deposit for
// their holding.
func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, storage.NewMemDB(), 1500+holdingDeposit, NodeConfig{})
}

func (h *harness) submit(signers []*crypto.PrivateKey, ixs ...types.Instruction) (*types.Receipt, error) {
	h.nonce++
	tx := &types.Transaction{Nonce: h.nonce, Instructions: ixs}
	for _, key := range signers {
		require.NoError(h.t, tx.Sign(key))
	}
	return h.node.SubmitTransaction(context.Background(), tx)
}

func (h *harness) lamports(id crypto.Identity) uint64 {
	acc, err := h.node.Account(id)
	if err != nil {
		require.ErrorIs(h.t, err, ErrAccountNotFound)
		return 0
	}
	return acc.Lamports
}

func (h *harness) holdingAmount(owner crypto.Identity) uint64 {
	_, holding, err := h.node.Holding(owner, h.asset)
	require.NoError(h.t, err)
	return holding.Amount
}

func (h *harness) createListing(price uint64) (*types.Receipt, error) {
	ixs, err := listing.CreateListingInstructions(h.seller.Identity(), h.asset, price)
	require.NoError(h.t, err)
	return h.submit([]*crypto.PrivateKey{h.seller}, ixs...)
}

func (h *harness) purchaseInstructions() []types.Instruction {
	buyer := h.buyer.Identity()
	holding, err := token.CreateHoldingInstruction(buyer, buyer, h.asset)
	require.NoError(h.t, err)
	purchase, err := listing.PurchaseInstruction(buyer, h.seller.Identity(), h.asset)
	require.NoError(h.t, err)
	return []types.Instruction{holding, purchase}
}

func TestCreateAndPurchaseSettlesBothSides(t *testing.T) {
	h := newHarness(t)
	seller := h.seller.Identity()
	buyer := h.buyer.Identity()
	addrs, err := listing.ResolveAddresses(seller, h.asset)
	require.NoError(t, err)

	receipt, err := h.createListing(1000)
	require.NoError(t, err)
	require.Equal(t, uint64(1), receipt.Height)
	require.Len(t, receipt.Events, 1)
	require.Equal(t, listing.EventTypeListingCreated, receipt.Events[0].Type)

	record, err := h.node.Listing(addrs.Listing)
	require.NoError(t, err)
	require.True(t, record.Active)
	require.Equal(t, seller, record.Seller)
	require.Equal(t, h.asset, record.Asset)
	require.Equal(t, uint64(1000), record.Price)
	require.Equal(t, addrs.Nonce, record.Nonce)

	require.Equal(t, uint64(0), h.holdingAmount(seller))
	_, escrow, err := h.node.Holding(addrs.Listing, h.asset)
	require.NoError(t, err)
	require.Equal(t, uint64(1), escrow.Amount)
	require.Equal(t, addrs.Listing, escrow.Owner)
	require.Equal(t, 50000-holdingDeposit-listingDeposit, h.lamports(seller))

	receipt, err = h.submit([]*crypto.PrivateKey{h.buyer}, h.purchaseInstructions()...)
	require.NoError(t, err)
	require.Equal(t, listing.EventTypeListingPurchased, receipt.Events[0].Type)
	require.Equal(t, buyer.String(), receipt.Events[0].Attributes["buyer"])

	require.Equal(t, uint64(500), h.lamports(buyer))
	require.Equal(t, uint64(51000), h.lamports(seller))
	require.Equal(t, uint64(1), h.holdingAmount(buyer))
	require.Equal(t, uint64(0), h.holdingAmount(seller))

	_, err = h.node.Account(addrs.Listing)
	require.ErrorIs(t, err, ErrAccountNotFound)
	_, err = h.node.Account(addrs.Escrow)
	require.ErrorIs(t, err, ErrAccountNotFound)

	published := h.sink.Drain()
	require.Len(t, published, 2)
	require.Equal(t, listing.EventTypeListingPurchased, published[1].EventType())

	stored, err := h.node.Receipt(mustHash(t, receipt.TxHash))
	require.NoError(t, err)
	require.Equal(t, receipt.StateRoot, stored.StateRoot)
	require.Equal(t, uint64(2), h.node.Head().Height)
}

func TestCreateListingRejectsZeroPrice(t *testing.T) {
	h := newHarness(t)
	before := h.node.Head()

	_, err := h.createListing(0)
	require.ErrorIs(t, err, listing.ErrInvalidPrice)
	code, ok := listing.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, listing.CodeInvalidPrice, code)

	require.Equal(t, before, h.node.Head())
	require.Equal(t, uint64(1), h.holdingAmount(h.seller.Identity()))
	require.Empty(t, h.sink.Drain())
}

func TestCreateListingTwiceFails(t *testing.T) {
	h := newHarness(t)
	_, err := h.createListing(1000)
	require.NoError(t, err)

	ix, err := listing.CreateListingInstruction(h.seller.Identity(), h.asset, 2000)
	require.NoError(t, err)
	_, err = h.submit([]*crypto.PrivateKey{h.seller}, ix)
	require.ErrorIs(t, err, listing.ErrAlreadyInitialized)

	addrs, err := listing.ResolveAddresses(h.seller.Identity(), h.asset)
	require.NoError(t, err)
	record, err := h.node.Listing(addrs.Listing)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), record.Price)
}

func TestPurchaseWithoutFundsChangesNothing(t *testing.T) {
	h := newHarnessWith(t, storage.NewMemDB(), 999+holdingDeposit, NodeConfig{})
	_, err := h.createListing(1000)
	require.NoError(t, err)
	before := h.node.Head()

	_, err = h.submit([]*crypto.PrivateKey{h.buyer}, h.purchaseInstructions()...)
	require.ErrorIs(t, err, listing.ErrInsufficientFunds)

	require.Equal(t, before, h.node.Head())
	require.Equal(t, 999+holdingDeposit, h.lamports(h.buyer.Identity()))
	_, _, err = h.node.Holding(h.buyer.Identity(), h.asset)
	require.ErrorIs(t, err, ErrAccountNotFound, "holding created earlier in the transaction must be rolled back")

	addrs, err := listing.ResolveAddresses(h.seller.Identity(), h.asset)
	require.NoError(t, err)
	record, err := h.node.Listing(addrs.Listing)
	require.NoError(t, err)
	require.True(t, record.Active)
}

func TestCancelByOtherSignerIsUnauthorized(t *testing.T) {
	h := newHarness(t)
	_, err := h.createListing(1000)
	require.NoError(t, err)

	ix, err := listing.CancelInstruction(h.seller.Identity(), h.asset)
	require.NoError(t, err)
	ix.Accounts[0] = types.AccountMeta{Address: h.buyer.Identity(), IsSigner: true, IsWritable: true}
	_, err = h.submit([]*crypto.PrivateKey{h.buyer}, ix)
	require.ErrorIs(t, err, listing.ErrUnauthorized)

	ix, err = listing.CancelInstruction(h.seller.Identity(), h.asset)
	require.NoError(t, err)
	_, err = h.submit([]*crypto.PrivateKey{h.buyer}, ix)
	require.ErrorIs(t, err, types.ErrMissingSignature)
}

func TestCancelThenRelist(t *testing.T) {
	h := newHarness(t)
	seller := h.seller.Identity()
	_, err := h.createListing(1000)
	require.NoError(t, err)

	ix, err := listing.CancelInstruction(seller, h.asset)
	require.NoError(t, err)
	receipt, err := h.submit([]*crypto.PrivateKey{h.seller}, ix)
	require.NoError(t, err)
	require.Equal(t, listing.EventTypeListingCancelled, receipt.Events[0].Type)
	require.Equal(t, uint64(1), h.holdingAmount(seller))
	require.Equal(t, uint64(50000), h.lamports(seller))

	_, err = h.createListing(1200)
	require.NoError(t, err)
	addrs, err := listing.ResolveAddresses(seller, h.asset)
	require.NoError(t, err)
	record, err := h.node.Listing(addrs.Listing)
	require.NoError(t, err)
	require.Equal(t, uint64(1200), record.Price)
}

func TestSelfPurchaseReturnsAsset(t *testing.T) {
	h := newHarness(t)
	seller := h.seller.Identity()
	_, err := h.createListing(1000)
	require.NoError(t, err)

	ix, err := listing.PurchaseInstruction(seller, seller, h.asset)
	require.NoError(t, err)
	_, err = h.submit([]*crypto.PrivateKey{h.seller}, ix)
	require.NoError(t, err)
	require.Equal(t, uint64(50000), h.lamports(seller))
	require.Equal(t, uint64(1), h.holdingAmount(seller))
}

func TestCreateListingRejectsNonCanonicalAddress(t *testing.T) {
	h := newHarness(t)
	seller := h.seller.Identity()
	addrs, err := listing.ResolveAddresses(seller, h.asset)
	require.NoError(t, err)

	var other crypto.Identity
	found := false
	for nonce := int(addrs.Nonce) - 1; nonce >= 0; nonce-- {
		if other, err = listing.ListingAddress(listing.ProgramID, seller, h.asset, uint8(nonce)); err == nil {
			found = true
			break
		}
	}
	require.True(t, found)

	ix, err := listing.CreateListingInstruction(seller, h.asset, 1000)
	require.NoError(t, err)
	ix.Accounts[1].Address = other
	_, err = h.submit([]*crypto.PrivateKey{h.seller}, ix)
	require.ErrorIs(t, err, listing.ErrAddressMismatch)
}

func TestReplayIsRejected(t *testing.T) {
	h := newHarness(t)
	ixs, err := listing.CreateListingInstructions(h.seller.Identity(), h.asset, 1000)
	require.NoError(t, err)
	tx := &types.Transaction{Nonce: 7, Instructions: ixs}
	require.NoError(t, tx.Sign(h.seller))

	_, err = h.node.SubmitTransaction(context.Background(), tx)
	require.NoError(t, err)
	_, err = h.node.SubmitTransaction(context.Background(), tx)
	require.ErrorIs(t, err, coreerrors.ErrDuplicateTransaction)
}

func TestBankTransferAndDebitRules(t *testing.T) {
	h := newHarness(t)
	seller := h.seller.Identity()
	buyer := h.buyer.Identity()

	_, err := h.submit([]*crypto.PrivateKey{h.seller}, bank.TransferInstruction(seller, buyer, 250))
	require.NoError(t, err)
	require.Equal(t, uint64(49750), h.lamports(seller))

	// A debit of an account that neither signed nor belongs to the program.
	ix := bank.TransferInstruction(buyer, seller, 10)
	ix.Accounts[0].IsSigner = false
	_, err = h.submit([]*crypto.PrivateKey{h.seller}, ix)
	require.ErrorIs(t, err, bank.ErrMissingSignature)
}

func TestPausedProgramRejectsInstructions(t *testing.T) {
	h := newHarnessWith(t, storage.NewMemDB(), 1500, NodeConfig{Pauses: nativecommon.NewPauseSet([]string{"Listing"})})
	_, err := h.createListing(1000)
	require.ErrorIs(t, err, coreerrors.ErrProgramPaused)
	require.Equal(t, uint64(1), h.holdingAmount(h.seller.Identity()))
}

func TestUnknownProgram(t *testing.T) {
	h := newHarness(t)
	ix := types.Instruction{
		ProgramID: testKey(t, 9).Identity(),
		Accounts:  []types.AccountMeta{{Address: h.seller.Identity(), IsSigner: true, IsWritable: true}},
	}
	_, err := h.submit([]*crypto.PrivateKey{h.seller}, ix)
	require.ErrorIs(t, err, coreerrors.ErrUnknownProgram)
}

func TestNodeResumesFromDisk(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	h := newHarnessWith(t, db, 1500, NodeConfig{})
	_, err = h.createListing(1000)
	require.NoError(t, err)
	head := h.node.Head()
	db.Close()

	reopened, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()
	node, err := NewNode(reopened, NodeConfig{Rent: testRent})
	require.NoError(t, err)
	require.Equal(t, head, node.Head())

	addrs, err := listing.ResolveAddresses(h.seller.Identity(), h.asset)
	require.NoError(t, err)
	record, err := node.Listing(addrs.Listing)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), record.Price)
}

func mustHash(t *testing.T, value string) [32]byte {
	t.Helper()
	hash, err := bank.ParseTxHash(value)
	require.NoError(t, err)
	return hash
}

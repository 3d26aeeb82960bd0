package listing

import (
	"errors"
	"log/slog"

	"github.com/holiman/uint256"

	"nftescrow/core/events"
	"nftescrow/core/types"
	"nftescrow/crypto"
	"nftescrow/native/token"
)

// NFTAmount is the number of units escrowed by every listing.
const NFTAmount uint64 = 1

var errNilHost = errors.New("listing engine: host not configured")

// Host is the request context handed to every operation. It carries the
// verified signers and the accounts supplied to the instruction; the engine
// never touches state outside of it. Every effect is staged by the host and
// committed or discarded as a whole by the surrounding transaction.
type Host interface {
	ProgramID() crypto.Identity
	IsSigner(id crypto.Identity) bool
	Account(id crypto.Identity) (*types.Account, error)
	SetLamports(id crypto.Identity, lamports uint64) error
	CreateAccount(payer, address crypto.Identity, space int, owner crypto.Identity, signerSeeds [][]byte) error
	WriteData(id crypto.Identity, data []byte) error
	CloseAccount(id, destination crypto.Identity) error
	Invoke(ix types.Instruction, signerSeeds ...[][]byte) error
	Emit(events.Event)
}

// CreateAccounts names the accounts supplied to CreateListing.
type CreateAccounts struct {
	Seller        crypto.Identity
	Listing       crypto.Identity
	Asset         crypto.Identity
	SellerHolding crypto.Identity
	Escrow        crypto.Identity
}

// PurchaseAccounts names the accounts supplied to Purchase.
type PurchaseAccounts struct {
	Buyer        crypto.Identity
	Seller       crypto.Identity
	Listing      crypto.Identity
	Asset        crypto.Identity
	Escrow       crypto.Identity
	BuyerHolding crypto.Identity
}

// CancelAccounts names the accounts supplied to Cancel.
type CancelAccounts struct {
	Seller        crypto.Identity
	Listing       crypto.Identity
	Asset         crypto.Identity
	Escrow        crypto.Identity
	SellerHolding crypto.Identity
}

// Engine implements the listing state machine. A listing moves from absent to
// active through CreateListing and back to absent through Purchase or Cancel.
// All preconditions are checked before the first transfer; the listing record
// is only written once every transfer of the operation has returned.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a listing engine logging through slog's default logger.
func NewEngine() *Engine {
	return &Engine{logger: slog.Default()}
}

// SetLogger overrides the engine logger. Passing nil restores the default.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// CreateListing escrows the seller's unit of asset and opens a listing at
// the derived address for price lamports.
func (e *Engine) CreateListing(host Host, accts CreateAccounts, price uint64) error {
	if host == nil {
		return errNilHost
	}
	if price == 0 {
		return ErrInvalidPrice
	}
	if !host.IsSigner(accts.Seller) {
		return ErrUnauthorized
	}
	program := host.ProgramID()
	expected, nonce, err := DeriveListingAddress(program, accts.Seller, accts.Asset)
	if err != nil {
		return err
	}
	if expected != accts.Listing {
		return ErrAddressMismatch
	}
	existing, err := host.Account(accts.Listing)
	if err != nil {
		return err
	}
	if existing.IsAllocated() {
		return ErrAlreadyInitialized
	}
	if _, err := token.LoadAsset(host.Account(accts.Asset)); err != nil {
		return wrap(ErrAssetMismatch, err)
	}
	sellerHolding, err := token.LoadHolding(host.Account(accts.SellerHolding))
	if err != nil {
		return wrap(ErrOwnerMismatch, err)
	}
	escrow, err := token.LoadHolding(host.Account(accts.Escrow))
	if err != nil {
		return wrap(ErrAuthorityMismatch, err)
	}
	if sellerHolding.Asset != accts.Asset || escrow.Asset != accts.Asset {
		return ErrAssetMismatch
	}
	if sellerHolding.Owner != accts.Seller {
		return ErrOwnerMismatch
	}
	if escrow.Owner != accts.Listing {
		return ErrAuthorityMismatch
	}
	if escrow.Amount != 0 {
		return ErrEscrowMustBeEmpty
	}
	if sellerHolding.Amount < NFTAmount {
		return ErrInsufficientTokenBalance
	}

	// The seller still owns the unit, so their own signature authorises it.
	if err := host.Invoke(token.TransferInstruction(accts.SellerHolding, accts.Escrow, accts.Seller, NFTAmount)); err != nil {
		return err
	}

	record := &Listing{Active: true, Seller: accts.Seller, Asset: accts.Asset, Price: price, Nonce: nonce}
	seeds := ListingSignerSeeds(accts.Seller, accts.Asset, nonce)
	if err := host.CreateAccount(accts.Seller, accts.Listing, ListingSize, program, seeds); err != nil {
		return err
	}
	if err := host.WriteData(accts.Listing, record.Encode()); err != nil {
		return err
	}

	host.Emit(listingEvent{evt: NewCreatedEvent(accts.Listing, record)})
	e.logger.Info("listing created",
		"listing", accts.Listing.String(),
		"seller", accts.Seller.String(),
		"asset", accts.Asset.String(),
		"price", price)
	return nil
}

// Purchase pays the listing price from buyer to seller, releases the escrowed
// unit to the buyer and destroys the listing. Lamports move before the asset.
func (e *Engine) Purchase(host Host, accts PurchaseAccounts) error {
	if host == nil {
		return errNilHost
	}
	record, err := e.loadActive(host, accts.Listing)
	if err != nil {
		return err
	}
	if record.Seller != accts.Seller {
		return ErrOwnerMismatch
	}
	if record.Asset != accts.Asset {
		return ErrAssetMismatch
	}
	if err := verifyAddress(host.ProgramID(), record, accts.Listing); err != nil {
		return err
	}
	if !host.IsSigner(accts.Buyer) {
		return ErrUnauthorized
	}
	escrow, err := e.loadEscrow(host, accts.Escrow, accts.Listing, record.Asset)
	if err != nil {
		return err
	}
	buyerHolding, err := token.LoadHolding(host.Account(accts.BuyerHolding))
	if err != nil {
		return wrap(ErrOwnerMismatch, err)
	}
	if buyerHolding.Owner != accts.Buyer {
		return ErrOwnerMismatch
	}
	if buyerHolding.Asset != record.Asset {
		return ErrAssetMismatch
	}
	buyer, err := host.Account(accts.Buyer)
	if err != nil {
		return err
	}
	if buyer == nil || buyer.Lamports < record.Price {
		return ErrInsufficientFunds
	}
	if escrow.Amount < NFTAmount {
		return ErrInsufficientTokenBalance
	}

	if err := transferLamports(host, accts.Buyer, accts.Seller, record.Price); err != nil {
		return err
	}
	seeds := ListingSignerSeeds(record.Seller, record.Asset, record.Nonce)
	if err := host.Invoke(token.TransferInstruction(accts.Escrow, accts.BuyerHolding, accts.Listing, NFTAmount), seeds); err != nil {
		return err
	}
	if err := host.Invoke(token.CloseInstruction(accts.Escrow, accts.Seller, accts.Listing), seeds); err != nil {
		return err
	}
	if err := host.CloseAccount(accts.Listing, accts.Seller); err != nil {
		return err
	}

	host.Emit(listingEvent{evt: NewPurchasedEvent(accts.Listing, record, accts.Buyer)})
	e.logger.Info("listing purchased",
		"listing", accts.Listing.String(),
		"buyer", accts.Buyer.String(),
		"seller", record.Seller.String(),
		"price", record.Price)
	return nil
}

// Cancel returns the escrowed unit to the seller and destroys the listing.
// Only the recorded seller may cancel.
func (e *Engine) Cancel(host Host, accts CancelAccounts) error {
	if host == nil {
		return errNilHost
	}
	record, err := e.loadActive(host, accts.Listing)
	if err != nil {
		return err
	}
	if record.Seller != accts.Seller || !host.IsSigner(accts.Seller) {
		return ErrUnauthorized
	}
	if record.Asset != accts.Asset {
		return ErrAssetMismatch
	}
	if err := verifyAddress(host.ProgramID(), record, accts.Listing); err != nil {
		return err
	}
	escrow, err := e.loadEscrow(host, accts.Escrow, accts.Listing, record.Asset)
	if err != nil {
		return err
	}
	sellerHolding, err := token.LoadHolding(host.Account(accts.SellerHolding))
	if err != nil {
		return wrap(ErrOwnerMismatch, err)
	}
	if sellerHolding.Owner != accts.Seller {
		return ErrOwnerMismatch
	}
	if sellerHolding.Asset != record.Asset {
		return ErrAssetMismatch
	}
	if escrow.Amount < NFTAmount {
		return ErrInsufficientTokenBalance
	}

	seeds := ListingSignerSeeds(record.Seller, record.Asset, record.Nonce)
	if err := host.Invoke(token.TransferInstruction(accts.Escrow, accts.SellerHolding, accts.Listing, NFTAmount), seeds); err != nil {
		return err
	}
	if err := host.Invoke(token.CloseInstruction(accts.Escrow, accts.Seller, accts.Listing), seeds); err != nil {
		return err
	}
	if err := host.CloseAccount(accts.Listing, accts.Seller); err != nil {
		return err
	}

	host.Emit(listingEvent{evt: NewCancelledEvent(accts.Listing, record)})
	e.logger.Info("listing cancelled",
		"listing", accts.Listing.String(),
		"seller", record.Seller.String())
	return nil
}

func (e *Engine) loadActive(host Host, address crypto.Identity) (*Listing, error) {
	acc, err := host.Account(address)
	if err != nil {
		return nil, err
	}
	if !acc.IsAllocated() || acc.Owner != host.ProgramID() {
		return nil, ErrNotInitialized
	}
	record, err := DecodeListing(acc.Data)
	if err != nil {
		return nil, wrap(ErrNotInitialized, err)
	}
	if !record.Active {
		return nil, ErrNotInitialized
	}
	return record, nil
}

func (e *Engine) loadEscrow(host Host, escrowAddr, listingAddr, asset crypto.Identity) (*token.Holding, error) {
	escrow, err := token.LoadHolding(host.Account(escrowAddr))
	if err != nil {
		return nil, wrap(ErrAuthorityMismatch, err)
	}
	if escrow.Owner != listingAddr {
		return nil, ErrAuthorityMismatch
	}
	if escrow.Asset != asset {
		return nil, ErrAssetMismatch
	}
	return escrow, nil
}

func verifyAddress(program crypto.Identity, record *Listing, address crypto.Identity) error {
	expected, err := ListingAddress(program, record.Seller, record.Asset, record.Nonce)
	if err != nil {
		return err
	}
	if expected != address {
		return ErrAddressMismatch
	}
	return nil
}

// transferLamports moves amount from one account to another. Sufficiency is
// rechecked against the current balance and both legs use checked
// arithmetic.
func transferLamports(host Host, from, to crypto.Identity, amount uint64) error {
	if from == to {
		acc, err := host.Account(from)
		if err != nil {
			return err
		}
		if acc == nil || acc.Lamports < amount {
			return ErrInsufficientFunds
		}
		return nil
	}
	src, err := host.Account(from)
	if err != nil {
		return err
	}
	dst, err := host.Account(to)
	if err != nil {
		return err
	}
	var srcBalance, dstBalance uint64
	if src != nil {
		srcBalance = src.Lamports
	}
	if dst != nil {
		dstBalance = dst.Lamports
	}
	if srcBalance < amount {
		return ErrInsufficientFunds
	}
	debited, err := checkedSub(srcBalance, amount)
	if err != nil {
		return err
	}
	credited, err := checkedAdd(dstBalance, amount)
	if err != nil {
		return err
	}
	if err := host.SetLamports(from, debited); err != nil {
		return err
	}
	return host.SetLamports(to, credited)
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return sum.Uint64(), nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, underflow := new(uint256.Int).SubOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if underflow {
		return 0, ErrArithmeticOverflow
	}
	return diff.Uint64(), nil
}

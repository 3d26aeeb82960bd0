package listing

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"nftescrow/core/types"
	"nftescrow/crypto"
	"nftescrow/native/token"
)

var (
	createListingTag = discriminator("global:create_listing")
	purchaseTag      = discriminator("global:purchase")
	cancelTag        = discriminator("global:cancel")

	// RentSysvarID names the rent oracle account supplied to create_listing.
	RentSysvarID = crypto.MustParseIdentity("SysvarRent111111111111111111111111111111111")

	ErrInvalidInstruction = errors.New("listing: invalid instruction")
)

// Instruction names reported by InstructionName.
const (
	OpCreateListing = "create_listing"
	OpPurchase      = "purchase"
	OpCancel        = "cancel"
	OpUnknown       = "unknown"
)

// InstructionName returns the operation encoded in instruction data.
func InstructionName(data []byte) string {
	if len(data) < 8 {
		return OpUnknown
	}
	switch {
	case bytes.Equal(data[:8], createListingTag[:]):
		return OpCreateListing
	case bytes.Equal(data[:8], purchaseTag[:]):
		return OpPurchase
	case bytes.Equal(data[:8], cancelTag[:]):
		return OpCancel
	default:
		return OpUnknown
	}
}

// Program decodes listing instructions and dispatches them to the engine.
type Program struct {
	engine *Engine
}

// NewProgram wraps engine. A nil engine gets a default one.
func NewProgram(engine *Engine) *Program {
	if engine == nil {
		engine = NewEngine()
	}
	return &Program{engine: engine}
}

// ID returns the default listing program identity.
func (p *Program) ID() crypto.Identity { return ProgramID }

// Engine exposes the underlying state machine.
func (p *Program) Engine() *Engine { return p.engine }

// Process executes a single listing instruction against host.
func (p *Program) Process(host Host, accounts []types.AccountMeta, data []byte) error {
	switch InstructionName(data) {
	case OpCreateListing:
		if len(data) != 16 {
			return fmt.Errorf("%w: create_listing expects a u64 price", ErrInvalidInstruction)
		}
		if err := requireAccounts(accounts, 8); err != nil {
			return err
		}
		if err := requireProgramSlots(accounts, map[int]crypto.Identity{5: token.ProgramID, 6: token.SystemProgramID, 7: RentSysvarID}); err != nil {
			return err
		}
		price := binary.LittleEndian.Uint64(data[8:16])
		return p.engine.CreateListing(host, CreateAccounts{
			Seller:        accounts[0].Address,
			Listing:       accounts[1].Address,
			Asset:         accounts[2].Address,
			SellerHolding: accounts[3].Address,
			Escrow:        accounts[4].Address,
		}, price)
	case OpPurchase:
		if err := requireAccounts(accounts, 7); err != nil {
			return err
		}
		if err := requireProgramSlots(accounts, map[int]crypto.Identity{6: token.ProgramID}); err != nil {
			return err
		}
		return p.engine.Purchase(host, PurchaseAccounts{
			Buyer:        accounts[0].Address,
			Seller:       accounts[1].Address,
			Listing:      accounts[2].Address,
			Asset:        accounts[3].Address,
			Escrow:       accounts[4].Address,
			BuyerHolding: accounts[5].Address,
		})
	case OpCancel:
		if err := requireAccounts(accounts, 6); err != nil {
			return err
		}
		if err := requireProgramSlots(accounts, map[int]crypto.Identity{5: token.ProgramID}); err != nil {
			return err
		}
		return p.engine.Cancel(host, CancelAccounts{
			Seller:        accounts[0].Address,
			Listing:       accounts[1].Address,
			Asset:         accounts[2].Address,
			Escrow:        accounts[3].Address,
			SellerHolding: accounts[4].Address,
		})
	default:
		return fmt.Errorf("%w: unknown discriminator", ErrInvalidInstruction)
	}
}

func requireAccounts(accounts []types.AccountMeta, n int) error {
	if len(accounts) < n {
		return fmt.Errorf("%w: expected %d accounts, got %d", ErrInvalidInstruction, n, len(accounts))
	}
	return nil
}

func requireProgramSlots(accounts []types.AccountMeta, slots map[int]crypto.Identity) error {
	for idx, want := range slots {
		if accounts[idx].Address != want {
			return fmt.Errorf("%w: account %d must be %s", ErrInvalidInstruction, idx, want)
		}
	}
	return nil
}

package token

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	"nftescrow/core/types"
	"nftescrow/crypto"
)

// Host is the slice of the runtime the token program needs. Accounts are only
// reachable when supplied to the executing instruction.
type Host interface {
	IsSigner(id crypto.Identity) bool
	Account(id crypto.Identity) (*types.Account, error)
	CreateAccount(payer, address crypto.Identity, space int, owner crypto.Identity, signerSeeds [][]byte) error
	WriteData(id crypto.Identity, data []byte) error
	CloseAccount(id, destination crypto.Identity) error
}

// Program executes token instructions.
type Program struct {
	logger *slog.Logger
}

// NewProgram returns a token program logging through slog's default logger.
func NewProgram() *Program {
	return &Program{logger: slog.Default()}
}

// SetLogger overrides the program logger. Passing nil restores the default.
func (p *Program) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	p.logger = logger
}

// ID returns the program identity.
func (p *Program) ID() crypto.Identity { return ProgramID }

// Process decodes and executes a single token instruction.
func (p *Program) Process(host Host, accounts []types.AccountMeta, data []byte) error {
	if len(data) == 0 {
		return ErrInvalidInstruction
	}
	switch data[0] {
	case InstructionIssueAsset:
		if len(accounts) < 4 {
			return fmt.Errorf("%w: issue requires 4 accounts", ErrInvalidInstruction)
		}
		return p.issueAsset(host, accounts[0].Address, accounts[1].Address, accounts[2].Address, accounts[3].Address)
	case InstructionCreateHolding:
		if len(accounts) < 4 {
			return fmt.Errorf("%w: create holding requires 4 accounts", ErrInvalidInstruction)
		}
		return p.createHolding(host, accounts[0].Address, accounts[1].Address, accounts[2].Address, accounts[3].Address)
	case InstructionTransfer:
		if len(accounts) < 3 || len(data) != 9 {
			return fmt.Errorf("%w: malformed transfer", ErrInvalidInstruction)
		}
		amount := binary.LittleEndian.Uint64(data[1:])
		return p.transfer(host, accounts[0].Address, accounts[1].Address, accounts[2].Address, amount)
	case InstructionClose:
		if len(accounts) < 3 {
			return fmt.Errorf("%w: close requires 3 accounts", ErrInvalidInstruction)
		}
		return p.close(host, accounts[0].Address, accounts[1].Address, accounts[2].Address)
	default:
		return fmt.Errorf("%w: unknown tag %d", ErrInvalidInstruction, data[0])
	}
}

func (p *Program) issueAsset(host Host, payer, asset, owner, holding crypto.Identity) error {
	existing, err := host.Account(asset)
	if err != nil {
		return err
	}
	if existing.IsAllocated() {
		return fmt.Errorf("%w: asset %s", ErrAccountExists, asset)
	}
	if !host.IsSigner(asset) {
		return ErrMissingAuthority
	}
	if err := host.CreateAccount(payer, asset, AssetSize, ProgramID, nil); err != nil {
		return err
	}
	record := &Asset{Supply: 1, Decimals: 0, Issuer: payer}
	if err := host.WriteData(asset, record.Encode()); err != nil {
		return err
	}
	if err := p.createHolding(host, payer, holding, owner, asset); err != nil {
		return err
	}
	minted := &Holding{Asset: asset, Owner: owner, Amount: 1}
	if err := host.WriteData(holding, minted.Encode()); err != nil {
		return err
	}
	p.logger.Info("asset issued", "asset", asset.String(), "owner", owner.String())
	return nil
}

func (p *Program) createHolding(host Host, payer, holding, owner, asset crypto.Identity) error {
	expected, nonce, err := AssociatedHoldingAddress(owner, asset)
	if err != nil {
		return err
	}
	if expected != holding {
		return ErrInvalidHolding
	}
	if _, err := LoadAsset(host.Account(asset)); err != nil {
		return err
	}
	existing, err := host.Account(holding)
	if err != nil {
		return err
	}
	if existing.IsAllocated() {
		return fmt.Errorf("%w: holding %s", ErrAccountExists, holding)
	}
	if err := host.CreateAccount(payer, holding, HoldingSize, ProgramID, holdingSignerSeeds(owner, asset, nonce)); err != nil {
		return err
	}
	empty := &Holding{Asset: asset, Owner: owner}
	return host.WriteData(holding, empty.Encode())
}

func (p *Program) transfer(host Host, from, to, authority crypto.Identity, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return ErrSelfTransfer
	}
	src, err := LoadHolding(host.Account(from))
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	dst, err := LoadHolding(host.Account(to))
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if src.Asset != dst.Asset {
		return ErrAssetMismatch
	}
	if src.Owner != authority {
		return ErrOwnerMismatch
	}
	if !host.IsSigner(authority) {
		return ErrMissingAuthority
	}
	if src.Amount < amount {
		return ErrInsufficientBalance
	}
	credited, err := checkedAdd(dst.Amount, amount)
	if err != nil {
		return err
	}
	src.Amount -= amount
	dst.Amount = credited
	if err := host.WriteData(from, src.Encode()); err != nil {
		return err
	}
	if err := host.WriteData(to, dst.Encode()); err != nil {
		return err
	}
	p.logger.Debug("token transfer", "asset", src.Asset.String(), "from", from.String(), "to", to.String(), "amount", amount)
	return nil
}

func (p *Program) close(host Host, account, destination, authority crypto.Identity) error {
	holding, err := LoadHolding(host.Account(account))
	if err != nil {
		return err
	}
	if holding.Owner != authority {
		return ErrOwnerMismatch
	}
	if !host.IsSigner(authority) {
		return ErrMissingAuthority
	}
	if holding.Amount != 0 {
		return ErrNonZeroBalance
	}
	return host.CloseAccount(account, destination)
}

// LoadHolding decodes a token-owned holding account. It accepts the result of
// a Host.Account call directly.
func LoadHolding(acc *types.Account, err error) (*Holding, error) {
	if err != nil {
		return nil, err
	}
	if !acc.IsAllocated() {
		return nil, ErrAccountMissing
	}
	if acc.Owner != ProgramID {
		return nil, ErrNotHolding
	}
	return DecodeHolding(acc.Data)
}

// LoadAsset decodes a token-owned asset account. It accepts the result of a
// Host.Account call directly.
func LoadAsset(acc *types.Account, err error) (*Asset, error) {
	if err != nil {
		return nil, err
	}
	if !acc.IsAllocated() {
		return nil, ErrAccountMissing
	}
	if acc.Owner != ProgramID {
		return nil, ErrNotAsset
	}
	return DecodeAsset(acc.Data)
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, ErrOverflow
	}
	return sum.Uint64(), nil
}

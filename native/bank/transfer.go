package bank

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"nftescrow/core/types"
	"nftescrow/crypto"
)

const txHashHexLength = 64

// ProgramID identifies the bank program. It doubles as the owner of plain
// wallet accounts and as the account allocator.
var ProgramID = crypto.Identity{}

// InstructionTransfer is the only instruction tag the bank understands.
const InstructionTransfer byte = 2

var (
	ErrInvalidInstruction = errors.New("bank: invalid instruction")
	ErrMissingSignature   = errors.New("bank: sender must sign")
	ErrInsufficientFunds  = errors.New("bank: insufficient lamports")
	ErrOverflow           = errors.New("bank: arithmetic overflow")
	ErrNotWallet          = errors.New("bank: sender carries program data")
)

// Host is the part of the runtime the bank needs.
type Host interface {
	IsSigner(id crypto.Identity) bool
	Account(id crypto.Identity) (*types.Account, error)
	SetLamports(id crypto.Identity, lamports uint64) error
}

// ParseTxHash normalises and validates a transaction hash expressed as a hex
// string. The returned array always contains the raw 32-byte hash.
func ParseTxHash(ref string) ([32]byte, error) {
	var hash [32]byte
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return hash, fmt.Errorf("bank: tx hash required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != txHashHexLength {
		return hash, fmt.Errorf("bank: tx hash must be 32 bytes (got %d hex chars)", len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return hash, fmt.Errorf("bank: decode tx hash: %w", err)
	}
	copy(hash[:], decoded)
	return hash, nil
}

// TransferInstruction moves lamports between two accounts. from must sign.
func TransferInstruction(from, to crypto.Identity, lamports uint64) types.Instruction {
	data := make([]byte, 9)
	data[0] = InstructionTransfer
	binary.LittleEndian.PutUint64(data[1:], lamports)
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			{Address: from, IsSigner: true, IsWritable: true},
			{Address: to, IsWritable: true},
		},
		Data: data,
	}
}

// Program executes bank instructions.
type Program struct{}

// Process decodes and executes a bank instruction.
func (Program) Process(host Host, accounts []types.AccountMeta, data []byte) error {
	if len(data) != 9 || data[0] != InstructionTransfer || len(accounts) < 2 {
		return ErrInvalidInstruction
	}
	return Transfer(host, accounts[0].Address, accounts[1].Address, binary.LittleEndian.Uint64(data[1:]))
}

// Transfer debits from and credits to with checked arithmetic.
func Transfer(host Host, from, to crypto.Identity, lamports uint64) error {
	if !host.IsSigner(from) {
		return ErrMissingSignature
	}
	src, err := host.Account(from)
	if err != nil {
		return err
	}
	if src == nil || src.Lamports < lamports {
		return ErrInsufficientFunds
	}
	if src.IsAllocated() {
		return ErrNotWallet
	}
	if from == to || lamports == 0 {
		return nil
	}
	dst, err := host.Account(to)
	if err != nil {
		return err
	}
	var balance uint64
	if dst != nil {
		balance = dst.Lamports
	}
	credited, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(balance), uint256.NewInt(lamports))
	if overflow || !credited.IsUint64() {
		return ErrOverflow
	}
	if err := host.SetLamports(from, src.Lamports-lamports); err != nil {
		return err
	}
	return host.SetLamports(to, credited.Uint64())
}

package token

import (
	"encoding/binary"

	"nftescrow/core/types"
	"nftescrow/crypto"
	"nftescrow/native/bank"
)

// Instruction tags understood by the token program.
const (
	InstructionIssueAsset    byte = 1
	InstructionCreateHolding byte = 2
	InstructionTransfer      byte = 3
	InstructionClose         byte = 4
)

// SystemProgramID identifies the account allocator.
var SystemProgramID = bank.ProgramID

// IssueAssetInstruction creates the asset account, the owner's associated
// holding, and credits the single unit to it. The asset address must sign.
func IssueAssetInstruction(payer, asset, owner crypto.Identity) (types.Instruction, error) {
	holding, _, err := AssociatedHoldingAddress(owner, asset)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			{Address: payer, IsSigner: true, IsWritable: true},
			{Address: asset, IsSigner: true, IsWritable: true},
			{Address: owner},
			{Address: holding, IsWritable: true},
			{Address: SystemProgramID},
		},
		Data: []byte{InstructionIssueAsset},
	}, nil
}

// CreateHoldingInstruction creates the associated holding for owner and
// asset funded by payer.
func CreateHoldingInstruction(payer, owner, asset crypto.Identity) (types.Instruction, error) {
	holding, _, err := AssociatedHoldingAddress(owner, asset)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			{Address: payer, IsSigner: true, IsWritable: true},
			{Address: holding, IsWritable: true},
			{Address: owner},
			{Address: asset},
			{Address: SystemProgramID},
		},
		Data: []byte{InstructionCreateHolding},
	}, nil
}

// TransferInstruction moves amount units between two holdings of the same
// asset. authority must be the owner of from.
func TransferInstruction(from, to, authority crypto.Identity, amount uint64) types.Instruction {
	data := make([]byte, 9)
	data[0] = InstructionTransfer
	binary.LittleEndian.PutUint64(data[1:], amount)
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			{Address: from, IsWritable: true},
			{Address: to, IsWritable: true},
			{Address: authority, IsSigner: true},
		},
		Data: data,
	}
}

// CloseInstruction deletes an empty holding and sends its lamports to
// destination.
func CloseInstruction(account, destination, authority crypto.Identity) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			{Address: account, IsWritable: true},
			{Address: destination, IsWritable: true},
			{Address: authority, IsSigner: true},
		},
		Data: []byte{InstructionClose},
	}
}

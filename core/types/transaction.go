package types

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"

	"nftescrow/crypto"
)

// AccountMeta names one account supplied to an instruction.
type AccountMeta struct {
	Address    crypto.Identity `json:"address"`
	IsSigner   bool            `json:"isSigner"`
	IsWritable bool            `json:"isWritable"`
}

// Instruction invokes a single program with an ordered account list.
type Instruction struct {
	ProgramID crypto.Identity `json:"programId"`
	Accounts  []AccountMeta   `json:"accounts"`
	Data      []byte          `json:"data"`
}

// Signature binds a signer identity to an ed25519 signature over the
// transaction hash.
type Signature struct {
	Signer crypto.Identity `json:"signer"`
	Sig    []byte          `json:"sig"`
}

// Transaction is an atomic batch of instructions. Either every instruction
// succeeds and all effects commit, or none of them do.
type Transaction struct {
	Nonce        uint64        `json:"nonce"`
	Instructions []Instruction `json:"instructions"`
	Signatures   []Signature   `json:"signatures"`
}

var (
	ErrNoInstructions   = errors.New("transaction: no instructions")
	ErrMissingSignature = errors.New("transaction: missing required signature")
	ErrBadSignature     = errors.New("transaction: signature verification failed")
)

type signingPayload struct {
	Nonce        uint64
	Instructions []Instruction
}

// Hash returns the BLAKE3 digest of the RLP-encoded nonce and instructions.
// Signatures are not part of the hash.
func (tx *Transaction) Hash() ([32]byte, error) {
	encoded, err := rlp.EncodeToBytes(signingPayload{Nonce: tx.Nonce, Instructions: tx.Instructions})
	if err != nil {
		return [32]byte{}, fmt.Errorf("transaction: encode: %w", err)
	}
	return blake3.Sum256(encoded), nil
}

// RequiredSigners lists, in first-seen order, every account an instruction
// marks as signer.
func (tx *Transaction) RequiredSigners() []crypto.Identity {
	seen := make(map[crypto.Identity]struct{})
	var out []crypto.Identity
	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			if !meta.IsSigner {
				continue
			}
			if _, ok := seen[meta.Address]; ok {
				continue
			}
			seen[meta.Address] = struct{}{}
			out = append(out, meta.Address)
		}
	}
	return out
}

// Sign appends a signature by key, replacing an earlier one from the same
// signer.
func (tx *Transaction) Sign(key *crypto.PrivateKey) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig := Signature{Signer: key.Identity(), Sig: key.Sign(hash[:])}
	for i := range tx.Signatures {
		if tx.Signatures[i].Signer == sig.Signer {
			tx.Signatures[i] = sig
			return nil
		}
	}
	tx.Signatures = append(tx.Signatures, sig)
	return nil
}

// VerifySignatures checks every attached signature and returns the set of
// verified signers. Every required signer must be present.
func (tx *Transaction) VerifySignatures() (map[crypto.Identity]bool, error) {
	if len(tx.Instructions) == 0 {
		return nil, ErrNoInstructions
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	signers := make(map[crypto.Identity]bool, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		if !crypto.Verify(sig.Signer, hash[:], sig.Sig) {
			return nil, fmt.Errorf("%w: %s", ErrBadSignature, sig.Signer)
		}
		signers[sig.Signer] = true
	}
	for _, required := range tx.RequiredSigners() {
		if !signers[required] {
			return nil, fmt.Errorf("%w: %s", ErrMissingSignature, required)
		}
	}
	return signers, nil
}

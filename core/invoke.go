package core

import (
	"fmt"

	"github.com/holiman/uint256"

	"nftescrow/core/events"
	coreerrors "nftescrow/core/errors"
	"nftescrow/core/types"
	"nftescrow/crypto"
)

const maxInvokeDepth = 4

// invokeContext is the request object handed to a program for one
// instruction. It exposes only the accounts named by the instruction and the
// signers that are valid in this frame, and stages every write in the
// transaction overlay.
type invokeContext struct {
	proc    *StateProcessor
	ov      *overlay
	events  events.Emitter
	program crypto.Identity
	metas   map[crypto.Identity]types.AccountMeta
	signers map[crypto.Identity]bool
	depth   int
}

func newInvokeContext(proc *StateProcessor, ov *overlay, emitter events.Emitter, ix types.Instruction, signers map[crypto.Identity]bool, depth int) *invokeContext {
	metas := mergeMetas(ix.Accounts)
	frameSigners := make(map[crypto.Identity]bool)
	for id, meta := range metas {
		if meta.IsSigner && signers[id] {
			frameSigners[id] = true
		}
	}
	return &invokeContext{
		proc:    proc,
		ov:      ov,
		events:  emitter,
		program: ix.ProgramID,
		metas:   metas,
		signers: frameSigners,
		depth:   depth,
	}
}

// mergeMetas folds duplicate account entries, keeping the widest privileges.
func mergeMetas(list []types.AccountMeta) map[crypto.Identity]types.AccountMeta {
	out := make(map[crypto.Identity]types.AccountMeta, len(list))
	for _, meta := range list {
		prev, ok := out[meta.Address]
		if ok {
			meta.IsSigner = meta.IsSigner || prev.IsSigner
			meta.IsWritable = meta.IsWritable || prev.IsWritable
		}
		out[meta.Address] = meta
	}
	return out
}

func (c *invokeContext) ProgramID() crypto.Identity { return c.program }

func (c *invokeContext) IsSigner(id crypto.Identity) bool { return c.signers[id] }

func (c *invokeContext) Account(id crypto.Identity) (*types.Account, error) {
	if _, ok := c.metas[id]; !ok {
		return nil, fmt.Errorf("%w: %s", coreerrors.ErrAccountNotSupplied, id)
	}
	acc, err := c.ov.get(id)
	if err != nil {
		return nil, err
	}
	return acc.Clone(), nil
}

func (c *invokeContext) writable(id crypto.Identity) (*types.Account, error) {
	meta, ok := c.metas[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", coreerrors.ErrAccountNotSupplied, id)
	}
	if !meta.IsWritable {
		return nil, fmt.Errorf("%w: %s", coreerrors.ErrReadonlyAccount, id)
	}
	acc, err := c.ov.get(id)
	if err != nil {
		return nil, err
	}
	return acc.Clone(), nil
}

func (c *invokeContext) store(id crypto.Identity, acc *types.Account) {
	if acc.IsEmpty() {
		c.ov.remove(id)
		return
	}
	c.ov.put(id, acc)
}

func (c *invokeContext) SetLamports(id crypto.Identity, lamports uint64) error {
	acc, err := c.writable(id)
	if err != nil {
		return err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	if lamports < acc.Lamports && !c.signers[id] && acc.Owner != c.program {
		return fmt.Errorf("%w: %s", coreerrors.ErrUnauthorizedDebit, id)
	}
	acc.Lamports = lamports
	c.store(id, acc)
	return nil
}

func (c *invokeContext) CreateAccount(payer, address crypto.Identity, space int, owner crypto.Identity, signerSeeds [][]byte) error {
	if payer == address {
		return fmt.Errorf("%w: payer cannot fund itself", coreerrors.ErrAccountInUse)
	}
	funder, err := c.writable(payer)
	if err != nil {
		return err
	}
	target, err := c.writable(address)
	if err != nil {
		return err
	}
	if target.IsAllocated() {
		return fmt.Errorf("%w: %s", coreerrors.ErrAccountInUse, address)
	}
	if !c.signers[address] {
		if signerSeeds == nil {
			return fmt.Errorf("%w: %s", coreerrors.ErrMissingSigner, address)
		}
		derived, err := crypto.CreateDerivedAddress(signerSeeds, c.program)
		if err != nil || derived != address {
			return fmt.Errorf("%w: %s", coreerrors.ErrMissingSigner, address)
		}
	}
	if !c.signers[payer] {
		return fmt.Errorf("%w: payer %s", coreerrors.ErrUnauthorizedDebit, payer)
	}
	deposit := c.proc.rent.MinimumBalance(space)
	if funder == nil || funder.Lamports < deposit {
		return coreerrors.ErrInsufficientRent
	}
	var existing uint64
	if target != nil {
		existing = target.Lamports
	}
	balance, err := checkedAdd(existing, deposit)
	if err != nil {
		return err
	}
	funder.Lamports -= deposit
	c.store(payer, funder)
	c.store(address, &types.Account{Lamports: balance, Owner: owner, Data: make([]byte, space)})
	return nil
}

func (c *invokeContext) WriteData(id crypto.Identity, data []byte) error {
	acc, err := c.writable(id)
	if err != nil {
		return err
	}
	if acc == nil || acc.Owner != c.program {
		return fmt.Errorf("%w: %s", coreerrors.ErrNotOwner, id)
	}
	if len(data) != len(acc.Data) {
		return fmt.Errorf("%w: have %d, want %d", coreerrors.ErrDataSize, len(data), len(acc.Data))
	}
	acc.Data = append([]byte(nil), data...)
	c.store(id, acc)
	return nil
}

func (c *invokeContext) CloseAccount(id, destination crypto.Identity) error {
	if id == destination {
		return fmt.Errorf("%w: cannot close into itself", coreerrors.ErrAccountInUse)
	}
	acc, err := c.writable(id)
	if err != nil {
		return err
	}
	if acc == nil || acc.Owner != c.program {
		return fmt.Errorf("%w: %s", coreerrors.ErrNotOwner, id)
	}
	dest, err := c.writable(destination)
	if err != nil {
		return err
	}
	if dest == nil {
		dest = &types.Account{}
	}
	balance, err := checkedAdd(dest.Lamports, acc.Lamports)
	if err != nil {
		return err
	}
	dest.Lamports = balance
	c.store(destination, dest)
	c.ov.remove(id)
	return nil
}

// Invoke runs a nested instruction on behalf of the current program. Each
// seed list is turned into a derived signer of the calling program; a seed
// list that does not reproduce an address grants nothing.
func (c *invokeContext) Invoke(ix types.Instruction, signerSeeds ...[][]byte) error {
	if c.depth+1 >= maxInvokeDepth {
		return coreerrors.ErrCallDepth
	}
	if _, ok := c.metas[ix.ProgramID]; !ok {
		return fmt.Errorf("%w: program %s", coreerrors.ErrAccountNotSupplied, ix.ProgramID)
	}
	signers := make(map[crypto.Identity]bool, len(c.signers)+len(signerSeeds))
	for id := range c.signers {
		signers[id] = true
	}
	for _, seeds := range signerSeeds {
		derived, err := crypto.CreateDerivedAddress(seeds, c.program)
		if err != nil {
			return fmt.Errorf("%w: %v", coreerrors.ErrPrivilegeEscalation, err)
		}
		signers[derived] = true
	}
	for _, meta := range ix.Accounts {
		parent, ok := c.metas[meta.Address]
		if !ok {
			return fmt.Errorf("%w: %s", coreerrors.ErrAccountNotSupplied, meta.Address)
		}
		if meta.IsWritable && !parent.IsWritable {
			return fmt.Errorf("%w: %s not writable", coreerrors.ErrPrivilegeEscalation, meta.Address)
		}
		if meta.IsSigner && !signers[meta.Address] {
			return fmt.Errorf("%w: %s not a signer", coreerrors.ErrPrivilegeEscalation, meta.Address)
		}
	}
	child := newInvokeContext(c.proc, c.ov, c.events, ix, signers, c.depth+1)
	return c.proc.dispatch(child, ix)
}

func (c *invokeContext) Emit(evt events.Event) {
	if c.events != nil {
		c.events.Emit(evt)
	}
}

// sumLamports totals the balances of the supplied accounts.
func sumLamports(ov *overlay, metas map[crypto.Identity]types.AccountMeta) (*uint256.Int, error) {
	total := new(uint256.Int)
	for id := range metas {
		lamports, err := ov.lamports(id)
		if err != nil {
			return nil, err
		}
		total.Add(total, uint256.NewInt(lamports))
	}
	return total, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, coreerrors.ErrOverflow
	}
	return sum.Uint64(), nil
}

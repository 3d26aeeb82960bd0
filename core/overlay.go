package core

import (
	"bytes"
	"sort"

	corestate "nftescrow/core/state"
	"nftescrow/core/types"
	"nftescrow/crypto"
)

// overlay stages account writes for one transaction. Nothing reaches the
// trie until flush, so discarding the overlay rolls the transaction back.
type overlay struct {
	base     *corestate.Manager
	accounts map[crypto.Identity]*types.Account
}

func newOverlay(base *corestate.Manager) *overlay {
	return &overlay{base: base, accounts: make(map[crypto.Identity]*types.Account)}
}

// get returns the live staged account. Missing accounts yield nil.
func (o *overlay) get(id crypto.Identity) (*types.Account, error) {
	if acc, ok := o.accounts[id]; ok {
		return acc, nil
	}
	acc, err := o.base.GetAccount(id)
	if err != nil {
		return nil, err
	}
	o.accounts[id] = acc
	return acc, nil
}

func (o *overlay) put(id crypto.Identity, acc *types.Account) {
	o.accounts[id] = acc
}

func (o *overlay) remove(id crypto.Identity) {
	o.accounts[id] = nil
}

func (o *overlay) lamports(id crypto.Identity) (uint64, error) {
	acc, err := o.get(id)
	if err != nil || acc == nil {
		return 0, err
	}
	return acc.Lamports, nil
}

// flush writes every staged account to the state manager in address order.
func (o *overlay) flush() error {
	ids := make([]crypto.Identity, 0, len(o.accounts))
	for id := range o.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	for _, id := range ids {
		acc := o.accounts[id]
		if acc == nil {
			if err := o.base.DeleteAccount(id); err != nil {
				return err
			}
			continue
		}
		if err := o.base.PutAccount(id, acc); err != nil {
			return err
		}
	}
	return nil
}

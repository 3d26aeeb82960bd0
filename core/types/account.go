package types

import "nftescrow/crypto"

// Account is the ledger record stored under every address. Lamports are the
// native currency balance; Owner is the program allowed to mutate Data and to
// debit the account without a signature.
type Account struct {
	Lamports uint64          `json:"lamports"`
	Owner    crypto.Identity `json:"owner"`
	Data     []byte          `json:"data"`
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Data = append([]byte(nil), a.Data...)
	return &clone
}

// IsEmpty reports whether the account holds neither lamports nor data and is
// therefore indistinguishable from an absent account.
func (a *Account) IsEmpty() bool {
	return a == nil || (a.Lamports == 0 && len(a.Data) == 0 && a.Owner.IsZero())
}

// IsAllocated reports whether a program has claimed the account, i.e. it has
// an owner or carries data. Plain wallets holding only lamports are not
// allocated.
func (a *Account) IsAllocated() bool {
	return a != nil && (!a.Owner.IsZero() || len(a.Data) > 0)
}

package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"nftescrow/core/types"
	"nftescrow/crypto"
)

var accountPrefix = []byte("account:")

func accountKey(addr crypto.Identity) []byte {
	buf := make([]byte, len(accountPrefix)+crypto.IdentitySize)
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return kvKey(buf)
}

// GetAccount returns the account stored at addr. A missing account is
// reported as (nil, nil).
func (m *Manager) GetAccount(addr crypto.Identity) (*types.Account, error) {
	data, err := m.trie.Get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	account := new(types.Account)
	if err := rlp.DecodeBytes(data, account); err != nil {
		return nil, fmt.Errorf("state: decode account %s: %w", addr, err)
	}
	return account, nil
}

// PutAccount writes the account at addr. Writing an empty account removes it
// so closed accounts leave no residue in the trie.
func (m *Manager) PutAccount(addr crypto.Identity, account *types.Account) error {
	if account.IsEmpty() {
		return m.DeleteAccount(addr)
	}
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return fmt.Errorf("state: encode account %s: %w", addr, err)
	}
	return m.trie.Update(accountKey(addr), encoded)
}

// DeleteAccount removes the account at addr.
func (m *Manager) DeleteAccount(addr crypto.Identity) error {
	return m.trie.Delete(accountKey(addr))
}

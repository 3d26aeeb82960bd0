package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"nftescrow/storage/trie"
)

// Manager provides typed access to the ledger state stored in the trie. Keys
// are hashed before insertion so the trie stays balanced regardless of the
// key distribution.
type Manager struct {
	trie *trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

// Trie exposes the underlying trie for commit and root bookkeeping.
func (m *Manager) Trie() *trie.Trie { return m.trie }

// StateRoot returns the hash of the uncommitted state.
func (m *Manager) StateRoot() common.Hash { return m.trie.Hash() }

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores an arbitrary RLP-encodable value under the provided key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.trie.Delete(kvKey(key))
}

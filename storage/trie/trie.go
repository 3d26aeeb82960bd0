package trie

import (
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"

	"nftescrow/storage"
)

// Trie wraps go-ethereum's Merkle-Patricia trie with the small API the state
// layer needs. It remembers the last committed root and rebuilds the
// underlying trie after every commit or reset so the wrapper can be reused.
//
// Keys are expected to be hashed by the caller before insertion.
//
// Trie is not safe for concurrent use.
type Trie struct {
	store  storage.Database
	trieDB *triedb.Database
	trie   *gethtrie.Trie
	root   common.Hash
}

// NewTrie opens the trie at root. A nil or empty root denotes the empty trie.
func NewTrie(store storage.Database, root []byte) (*Trie, error) {
	trieDB := store.TrieDB()
	rootHash := gethtypes.EmptyRootHash
	if len(root) > 0 {
		rootHash = common.BytesToHash(root)
	}
	underlying, err := gethtrie.New(gethtrie.TrieID(rootHash), trieDB)
	if err != nil {
		return nil, err
	}
	return &Trie{store: store, trieDB: trieDB, trie: underlying, root: rootHash}, nil
}

// Get returns the value stored under key, or nil when absent.
func (t *Trie) Get(key []byte) ([]byte, error) {
	return t.trie.Get(key)
}

// Update inserts or replaces the value stored under key.
func (t *Trie) Update(key, value []byte) error {
	return t.trie.Update(key, value)
}

// Delete removes key from the trie. Deleting an absent key is not an error.
func (t *Trie) Delete(key []byte) error {
	return t.trie.Delete(key)
}

// Hash returns the root hash including uncommitted mutations.
func (t *Trie) Hash() common.Hash {
	return t.trie.Hash()
}

// Root returns the last committed root hash.
func (t *Trie) Root() common.Hash {
	return t.root
}

// Reset discards in-memory changes and reopens the trie at root.
func (t *Trie) Reset(root common.Hash) error {
	underlying, err := gethtrie.New(gethtrie.TrieID(root), t.trieDB)
	if err != nil {
		return err
	}
	t.trie = underlying
	t.root = root
	return nil
}

// Copy returns an independently mutable view sharing the same node database.
func (t *Trie) Copy() *Trie {
	return &Trie{store: t.store, trieDB: t.trieDB, trie: t.trie.Copy(), root: t.root}
}

// Commit flushes pending nodes to the backing database and returns the new
// root. parent and blockNumber label the state layer in the node database.
func (t *Trie) Commit(parent common.Hash, blockNumber uint64) (common.Hash, error) {
	newRoot, nodes := t.trie.Commit(false)
	if nodes != nil {
		merged := trienode.NewMergedNodeSet()
		if err := merged.Merge(nodes); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Update(newRoot, parent, blockNumber, merged, nil); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Commit(newRoot, false); err != nil {
			return common.Hash{}, err
		}
	}
	if err := t.Reset(newRoot); err != nil {
		return common.Hash{}, err
	}
	return newRoot, nil
}

package trie

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"nftescrow/storage"
)

func TestTrieCommitFlushPersistsData(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir)
	require.NoError(t, err)

	tr, err := NewTrie(db1, nil)
	require.NoError(t, err)

	key := crypto.Keccak256Hash([]byte("listing"))
	value := []byte("active")

	require.NoError(t, tr.Update(key.Bytes(), value))
	root, err := tr.Commit(common.Hash{}, 0)
	require.NoError(t, err)

	db1.Close()

	db2, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	restored, err := NewTrie(db2, root.Bytes())
	require.NoError(t, err)

	got, err := restored.Get(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestTrieResetDiscardsPendingChanges(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	tr, err := NewTrie(db, nil)
	require.NoError(t, err)
	key := crypto.Keccak256([]byte("escrow"))
	require.NoError(t, tr.Update(key, []byte{0x01}))
	root, err := tr.Commit(common.Hash{}, 1)
	require.NoError(t, err)

	require.NoError(t, tr.Delete(key))
	got, err := tr.Get(key)
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, tr.Reset(root))
	got, err = tr.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, got)
}

func TestTrieCopyIsIndependent(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	tr, err := NewTrie(db, nil)
	require.NoError(t, err)
	key := crypto.Keccak256([]byte("holding"))
	require.NoError(t, tr.Update(key, []byte{0x02}))

	cp := tr.Copy()
	require.NoError(t, cp.Update(key, []byte{0x03}))

	got, err := tr.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte{0x02}, got)
	require.NotEqual(t, tr.Hash(), cp.Hash())
}

package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBPutGet(t *testing.T) {
	db := NewMemDB()
	t.Cleanup(db.Close)

	_, err := db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, db.Put([]byte("head"), []byte{0x01, 0x02}))
	got, err := db.Get([]byte("head"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, got)

	ok, err := db.Has([]byte("head"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := NewLevelDBWithOptions(dir, LevelDBOptions{CacheMB: 16, Handles: 32})
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	db.Close()

	reopened, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}

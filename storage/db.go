package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	ethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is the key-value store backing the ledger. Besides plain metadata
// access it exposes the trie node database the state trie is built on.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	TrieDB() *triedb.Database
	Close()
}

type database struct {
	disk ethdb.Database

	once   sync.Once
	trieDB *triedb.Database
}

func (db *database) Put(key []byte, value []byte) error {
	return db.disk.Put(key, value)
}

func (db *database) Get(key []byte) ([]byte, error) {
	ok, err := db.disk.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return db.disk.Get(key)
}

func (db *database) Has(key []byte) (bool, error) {
	return db.disk.Has(key)
}

func (db *database) TrieDB() *triedb.Database {
	db.once.Do(func() {
		db.trieDB = triedb.NewDatabase(db.disk, triedb.HashDefaults)
	})
	return db.trieDB
}

func (db *database) Close() {
	if db.trieDB != nil {
		_ = db.trieDB.Close()
	}
	_ = db.disk.Close()
}

// --- In-Memory DB (for testing) ---

// MemDB is a volatile database used by tests and dev nodes.
type MemDB struct {
	*database
}

func NewMemDB() *MemDB {
	return &MemDB{database: &database{disk: rawdb.NewMemoryDatabase()}}
}

// --- Persistent DB ---

// LevelDBOptions tunes the underlying goleveldb instance.
type LevelDBOptions struct {
	CacheMB int
	Handles int
}

// LevelDB is a persistent store using LevelDB.
type LevelDB struct {
	*database
}

// NewLevelDB creates or opens a LevelDB database at the specified path with
// default tuning.
func NewLevelDB(path string) (*LevelDB, error) {
	return NewLevelDBWithOptions(path, LevelDBOptions{})
}

// NewLevelDBWithOptions opens a LevelDB database applying the supplied cache
// and file handle limits. Zero values keep the goleveldb defaults.
func NewLevelDBWithOptions(path string, opts LevelDBOptions) (*LevelDB, error) {
	if path == "" {
		return nil, fmt.Errorf("storage: leveldb path required")
	}
	kv, err := ethleveldb.NewCustom(path, "nftescrow/db/", func(o *opt.Options) {
		if opts.CacheMB > 0 {
			o.BlockCacheCapacity = opts.CacheMB / 2 * opt.MiB
			o.WriteBuffer = opts.CacheMB / 4 * opt.MiB
		}
		if opts.Handles > 0 {
			o.OpenFilesCacheCapacity = opts.Handles
		}
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb: %w", err)
	}
	return &LevelDB{database: &database{disk: rawdb.NewDatabase(kv)}}, nil
}

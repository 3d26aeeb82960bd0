package core

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"nftescrow/core/types"
	"nftescrow/storage"
)

var (
	headKey       = []byte("journal/head")
	receiptPrefix = []byte("journal/receipt/")
	heightPrefix  = []byte("journal/height/")

	// ErrReceiptNotFound is returned when no committed transaction matches a
	// lookup.
	ErrReceiptNotFound = errors.New("journal: receipt not found")
)

// Head is the last committed position of the ledger.
type Head struct {
	Height uint64      `json:"height"`
	Root   common.Hash `json:"root"`
}

// Journal records committed transactions outside of the state trie: the
// head pointer used to reopen state after a restart and a receipt per
// transaction.
type Journal struct {
	db      storage.Database
	mu      sync.RWMutex
	head    Head
	started bool
}

// OpenJournal loads the stored head. A database without one yields a zero
// head with an empty root.
func OpenJournal(db storage.Database) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: database required")
	}
	j := &Journal{db: db, head: Head{Root: gethtypes.EmptyRootHash}}
	raw, err := db.Get(headKey)
	if errors.Is(err, storage.ErrNotFound) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: load head: %w", err)
	}
	if err := json.Unmarshal(raw, &j.head); err != nil {
		return nil, fmt.Errorf("journal: decode head: %w", err)
	}
	j.started = true
	return j, nil
}

// Started reports whether a genesis head has been recorded.
func (j *Journal) Started() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.started
}

// Initialize records root as the height zero head. It fails once a head
// exists.
func (j *Journal) Initialize(root common.Hash) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return fmt.Errorf("journal: already initialised at height %d", j.head.Height)
	}
	head := Head{Height: 0, Root: root}
	if err := j.writeHead(head); err != nil {
		return err
	}
	j.head = head
	j.started = true
	return nil
}

func (j *Journal) writeHead(head Head) error {
	raw, err := json.Marshal(head)
	if err != nil {
		return err
	}
	return j.db.Put(headKey, raw)
}

// Head returns the last committed head.
func (j *Journal) Head() Head {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.head
}

// Append stores the receipt and advances the head to its height and root.
func (j *Journal) Append(receipt *types.Receipt, root common.Hash) error {
	if receipt == nil {
		return fmt.Errorf("journal: nil receipt")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.started {
		return fmt.Errorf("journal: not initialised")
	}
	if receipt.Height != j.head.Height+1 {
		return fmt.Errorf("journal: height %d does not extend head %d", receipt.Height, j.head.Height)
	}
	hash, err := decodeHash(receipt.TxHash)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	if err := j.db.Put(append(append([]byte{}, receiptPrefix...), hash[:]...), encoded); err != nil {
		return err
	}
	if err := j.db.Put(heightKey(receipt.Height), hash[:]); err != nil {
		return err
	}
	next := Head{Height: receipt.Height, Root: root}
	if err := j.writeHead(next); err != nil {
		return err
	}
	j.head = next
	return nil
}

// Receipt looks up a committed transaction by hash.
func (j *Journal) Receipt(hash [32]byte) (*types.Receipt, error) {
	raw, err := j.db.Get(append(append([]byte{}, receiptPrefix...), hash[:]...))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	var receipt types.Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("journal: decode receipt: %w", err)
	}
	return &receipt, nil
}

// ReceiptAt looks up the transaction committed at height.
func (j *Journal) ReceiptAt(height uint64) (*types.Receipt, error) {
	raw, err := j.db.Get(heightKey(height))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	var hash [32]byte
	copy(hash[:], raw)
	return j.Receipt(hash)
}

func heightKey(height uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", heightPrefix, height))
}

func decodeHash(value string) ([32]byte, error) {
	var hash [32]byte
	raw, err := hex.DecodeString(value)
	if err != nil || len(raw) != len(hash) {
		return hash, fmt.Errorf("journal: invalid tx hash %q", value)
	}
	copy(hash[:], raw)
	return hash, nil
}

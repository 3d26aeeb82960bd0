package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"nftescrow/core/events"
	"nftescrow/core/genesis"
	corestate "nftescrow/core/state"
	"nftescrow/core/types"
	"nftescrow/crypto"
	nativecommon "nftescrow/native/common"
	"nftescrow/native/listing"
	"nftescrow/native/token"
	"nftescrow/observability"
	"nftescrow/observability/metrics"
	"nftescrow/storage"
	"nftescrow/storage/trie"
)

// ErrAccountNotFound is returned by the read APIs when nothing is stored at
// the requested address.
var ErrAccountNotFound = errors.New("core: account not found")

// NodeConfig carries the optional collaborators of a Node.
type NodeConfig struct {
	Rent    types.Rent
	Genesis *genesis.GenesisSpec
	Pauses  nativecommon.PauseView
	Metrics *metrics.LedgerMetrics
	Logger  *slog.Logger
}

// Node is a single sequencer over the ledger state. Transactions are applied
// one at a time; each one is committed to the trie and journaled before the
// next starts, and its events are published only after the commit.
type Node struct {
	db      storage.Database
	proc    *StateProcessor
	journal *Journal
	emitter events.Emitter
	metrics *metrics.LedgerMetrics
	logger  *slog.Logger

	mu sync.Mutex
}

// NewNode opens the ledger stored in db. Fresh databases are stamped with the
// state version and seeded from cfg.Genesis; existing ones resume at the
// journaled head.
func NewNode(db storage.Database, cfg NodeConfig) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	journal, err := OpenJournal(db)
	if err != nil {
		return nil, err
	}
	head := journal.Head()
	var root []byte
	if journal.Started() && head.Root != gethtypes.EmptyRootHash {
		root = head.Root.Bytes()
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("node: open state at %s: %w", head.Root, err)
	}
	if err := corestate.EnsureStateVersion(tr); err != nil {
		return nil, err
	}
	proc, err := NewStateProcessor(tr)
	if err != nil {
		return nil, err
	}
	if cfg.Rent.LamportsPerByteYear != 0 || cfg.Rent.ExemptionYears != 0 {
		proc.SetRent(cfg.Rent)
	}
	proc.SetPauses(cfg.Pauses)
	proc.SetMetrics(cfg.Metrics)
	proc.SetLogger(logger)

	n := &Node{
		db:      db,
		proc:    proc,
		journal: journal,
		emitter: events.NoopEmitter{},
		metrics: cfg.Metrics,
		logger:  logger,
	}
	if !journal.Started() {
		if err := n.initialise(cfg.Genesis); err != nil {
			return nil, err
		}
	}
	n.metrics.SetHeight(n.journal.Head().Height)
	return n, nil
}

func (n *Node) initialise(spec *genesis.GenesisSpec) error {
	if spec != nil {
		if err := genesis.Apply(spec, n.proc.Manager(), n.proc.Rent()); err != nil {
			return fmt.Errorf("node: apply genesis: %w", err)
		}
	}
	root, err := n.proc.Commit(0)
	if err != nil {
		return fmt.Errorf("node: commit genesis: %w", err)
	}
	if err := n.journal.Initialize(root); err != nil {
		return err
	}
	n.logger.Info("ledger initialised", "root", root.Hex())
	return nil
}

// SetEmitter configures where committed events are published.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	n.emitter = emitter
}

// Head returns the last committed head.
func (n *Node) Head() Head {
	return n.journal.Head()
}

// Rent returns the rent schedule in force.
func (n *Node) Rent() types.Rent {
	return n.proc.Rent()
}

// SubmitTransaction applies tx atomically and commits it. A rejected
// transaction leaves state untouched.
func (n *Node) SubmitTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	start := time.Now()
	head := n.journal.Head()
	height := head.Height + 1
	result, err := n.proc.ApplyTransaction(ctx, tx, height)
	if err != nil {
		n.rollback(head)
		n.metrics.ObserveTransaction(false, time.Since(start))
		n.logger.Debug("transaction rejected", "error", err)
		return nil, err
	}
	root, err := n.proc.Commit(height)
	if err != nil {
		n.rollback(head)
		n.metrics.ObserveTransaction(false, time.Since(start))
		return nil, fmt.Errorf("node: commit: %w", err)
	}
	receipt := &types.Receipt{
		Height:    height,
		TxHash:    hex.EncodeToString(result.Hash[:]),
		StateRoot: root.Hex(),
	}
	for _, evt := range result.Events {
		if payload := evt.Event(); payload != nil {
			receipt.Events = append(receipt.Events, payload.Clone())
		}
	}
	if err := n.journal.Append(receipt, root); err != nil {
		n.rollback(head)
		n.metrics.ObserveTransaction(false, time.Since(start))
		return nil, fmt.Errorf("node: journal: %w", err)
	}
	n.metrics.ObserveTransaction(true, time.Since(start))
	n.metrics.SetHeight(height)
	n.publish(result.Events)
	n.logger.Info("transaction committed",
		"height", height,
		"txhash", receipt.TxHash,
		"events", len(receipt.Events))
	return receipt, nil
}

func (n *Node) rollback(head Head) {
	if err := n.proc.ResetToRoot(head.Root); err != nil {
		n.logger.Error("reset state", "root", head.Root.Hex(), "error", err)
	}
}

func (n *Node) publish(evts []events.Event) {
	for _, evt := range evts {
		if evt == nil {
			continue
		}
		switch evt.EventType() {
		case listing.EventTypeListingCreated:
			n.metrics.AddActiveListings(1)
		case listing.EventTypeListingPurchased, listing.EventTypeListingCancelled:
			n.metrics.AddActiveListings(-1)
		}
		observability.Events().RecordEvent(evt.EventType())
		n.emitter.Emit(evt)
	}
}

// Account returns the committed account at id.
func (n *Node) Account(id crypto.Identity) (*types.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	acc, err := n.proc.Manager().GetAccount(id)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return acc, nil
}

// Listing returns the open listing stored at address.
func (n *Node) Listing(address crypto.Identity) (*listing.Listing, error) {
	acc, err := n.Account(address)
	if err != nil {
		return nil, err
	}
	if acc.Owner != listing.ProgramID {
		return nil, fmt.Errorf("%w: %s is not a listing", ErrAccountNotFound, address)
	}
	return listing.DecodeListing(acc.Data)
}

// Holding returns the associated holding of owner for asset.
func (n *Node) Holding(owner, asset crypto.Identity) (crypto.Identity, *token.Holding, error) {
	addr, _, err := token.AssociatedHoldingAddress(owner, asset)
	if err != nil {
		return crypto.Identity{}, nil, err
	}
	acc, err := n.Account(addr)
	if err != nil {
		return addr, nil, err
	}
	holding, err := token.LoadHolding(acc, nil)
	return addr, holding, err
}

// Asset returns the asset record stored at id.
func (n *Node) Asset(id crypto.Identity) (*token.Asset, error) {
	acc, err := n.Account(id)
	if err != nil {
		return nil, err
	}
	return token.LoadAsset(acc, nil)
}

// Receipt returns the receipt of a committed transaction.
func (n *Node) Receipt(hash [32]byte) (*types.Receipt, error) {
	return n.journal.Receipt(hash)
}

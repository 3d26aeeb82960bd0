package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	coreerrors "nftescrow/core/errors"
	"nftescrow/core/events"
	corestate "nftescrow/core/state"
	"nftescrow/core/types"
	"nftescrow/crypto"
	"nftescrow/native/bank"
	nativecommon "nftescrow/native/common"
	"nftescrow/native/listing"
	"nftescrow/native/token"
	"nftescrow/observability/metrics"
	"nftescrow/observability/otel"
	"nftescrow/storage/trie"
)

// Program module names used for pausing and metrics.
const (
	ModuleBank    = "bank"
	ModuleToken   = "token"
	ModuleListing = "listing"
)

// ApplyResult describes a transaction that executed successfully but has not
// been committed yet.
type ApplyResult struct {
	Hash   [32]byte
	Events []events.Event
}

// StateProcessor executes transactions against the state trie. Every
// transaction runs in its own overlay: either all of its instructions succeed
// and the overlay is written to the trie, or nothing is written.
type StateProcessor struct {
	Trie          *trie.Trie
	manager       *corestate.Manager
	committedRoot common.Hash
	rent          types.Rent
	bank          bank.Program
	tokens        *token.Program
	listings      *listing.Program
	pauses        nativecommon.PauseView
	logger        *slog.Logger
	metrics       *metrics.LedgerMetrics
}

// NewStateProcessor creates a processor over tr with the default rent
// schedule and the built-in programs registered.
func NewStateProcessor(tr *trie.Trie) (*StateProcessor, error) {
	if tr == nil {
		return nil, fmt.Errorf("state processor: trie required")
	}
	return &StateProcessor{
		Trie:          tr,
		manager:       corestate.NewManager(tr),
		committedRoot: tr.Root(),
		rent:          types.DefaultRent(),
		tokens:        token.NewProgram(),
		listings:      listing.NewProgram(listing.NewEngine()),
		logger:        slog.Default(),
	}, nil
}

// SetRent overrides the rent schedule.
func (sp *StateProcessor) SetRent(rent types.Rent) { sp.rent = rent }

// Rent returns the active rent schedule.
func (sp *StateProcessor) Rent() types.Rent { return sp.rent }

// SetPauses configures which program modules reject new instructions.
func (sp *StateProcessor) SetPauses(p nativecommon.PauseView) { sp.pauses = p }

// SetMetrics configures the metrics sink. Nil disables metrics.
func (sp *StateProcessor) SetMetrics(m *metrics.LedgerMetrics) { sp.metrics = m }

// SetLogger overrides the logger used by the processor and its programs.
func (sp *StateProcessor) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	sp.logger = logger
	sp.tokens.SetLogger(logger.With("component", ModuleToken))
	sp.listings.Engine().SetLogger(logger.With("component", ModuleListing))
}

// Manager exposes the state manager for read access.
func (sp *StateProcessor) Manager() *corestate.Manager { return sp.manager }

// CurrentRoot returns the last committed state root.
func (sp *StateProcessor) CurrentRoot() common.Hash {
	return sp.committedRoot
}

// PendingRoot returns the root of the trie including in-memory mutations.
func (sp *StateProcessor) PendingRoot() common.Hash {
	return sp.Trie.Hash()
}

// ResetToRoot discards any in-memory changes and reloads the trie at the
// provided root hash.
func (sp *StateProcessor) ResetToRoot(root common.Hash) error {
	if err := sp.Trie.Reset(root); err != nil {
		return err
	}
	sp.committedRoot = root
	return nil
}

// Commit persists the current trie contents and returns the resulting state
// root.
func (sp *StateProcessor) Commit(height uint64) (common.Hash, error) {
	newRoot, err := sp.Trie.Commit(sp.committedRoot, height)
	if err != nil {
		return common.Hash{}, err
	}
	sp.committedRoot = newRoot
	return newRoot, nil
}

// ApplyTransaction verifies and executes tx. On success the effects are
// written to the trie (uncommitted) and the transaction is recorded for
// replay protection. On failure the trie is untouched.
func (sp *StateProcessor) ApplyTransaction(ctx context.Context, tx *types.Transaction, height uint64) (*ApplyResult, error) {
	_, span := otel.Tracer().Start(ctx, "ledger.ApplyTransaction")
	defer span.End()

	if tx == nil {
		return nil, fmt.Errorf("state processor: nil transaction")
	}
	signers, err := tx.VerifySignatures()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "signature verification failed")
		return nil, err
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("tx.hash", hex.EncodeToString(hash[:])),
		attribute.Int("tx.instructions", len(tx.Instructions)),
	)
	seen, err := sp.manager.HasTransaction(hash)
	if err != nil {
		return nil, err
	}
	if seen {
		return nil, coreerrors.ErrDuplicateTransaction
	}

	ov := newOverlay(sp.manager)
	buffer := &events.Buffer{}
	for i, ix := range tx.Instructions {
		if err := sp.executeTopLevel(ov, buffer, ix, signers); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "instruction failed")
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	if err := ov.flush(); err != nil {
		return nil, err
	}
	if err := sp.manager.MarkTransaction(hash, height); err != nil {
		return nil, err
	}
	return &ApplyResult{Hash: hash, Events: buffer.Drain()}, nil
}

func (sp *StateProcessor) executeTopLevel(ov *overlay, emitter events.Emitter, ix types.Instruction, signers map[crypto.Identity]bool) error {
	frame := newInvokeContext(sp, ov, emitter, ix, signers, 0)
	before, err := sumLamports(ov, frame.metas)
	if err != nil {
		return err
	}
	execErr := sp.dispatch(frame, ix)
	sp.observeInstruction(ix, execErr)
	if execErr != nil {
		return execErr
	}
	after, err := sumLamports(ov, frame.metas)
	if err != nil {
		return err
	}
	if !before.Eq(after) {
		return fmt.Errorf("%w: before %s after %s", coreerrors.ErrLamportImbalance, before, after)
	}
	return nil
}

func (sp *StateProcessor) dispatch(frame *invokeContext, ix types.Instruction) error {
	module := ModuleName(ix.ProgramID)
	if module == "" {
		return fmt.Errorf("%w: %s", coreerrors.ErrUnknownProgram, ix.ProgramID)
	}
	if err := nativecommon.Guard(sp.pauses, module); err != nil {
		return fmt.Errorf("%w: %s", coreerrors.ErrProgramPaused, module)
	}
	switch module {
	case ModuleBank:
		return sp.bank.Process(frame, ix.Accounts, ix.Data)
	case ModuleToken:
		return sp.tokens.Process(frame, ix.Accounts, ix.Data)
	default:
		return sp.listings.Process(frame, ix.Accounts, ix.Data)
	}
}

// ModuleName maps a program identity to its module name, or "" when no
// program is registered there.
func ModuleName(program crypto.Identity) string {
	switch program {
	case bank.ProgramID:
		return ModuleBank
	case token.ProgramID:
		return ModuleToken
	case listing.ProgramID:
		return ModuleListing
	default:
		return ""
	}
}

func (sp *StateProcessor) observeInstruction(ix types.Instruction, err error) {
	if sp.metrics == nil {
		return
	}
	module := ModuleName(ix.ProgramID)
	op := "unknown"
	switch module {
	case ModuleListing:
		op = listing.InstructionName(ix.Data)
	case ModuleToken:
		op = tokenOpName(ix.Data)
	case ModuleBank:
		op = "transfer"
	}
	result := "ok"
	if err != nil {
		result = listing.NameOf(err)
		if result == "" {
			result = "error"
		}
		if errors.Is(err, coreerrors.ErrProgramPaused) {
			result = "paused"
		}
	}
	sp.metrics.ObserveInstruction(module, op, result)
}

func tokenOpName(data []byte) string {
	if len(data) == 0 {
		return "unknown"
	}
	switch data[0] {
	case token.InstructionIssueAsset:
		return "issue_asset"
	case token.InstructionCreateHolding:
		return "create_holding"
	case token.InstructionTransfer:
		return "transfer"
	case token.InstructionClose:
		return "close"
	default:
		return "unknown"
	}
}

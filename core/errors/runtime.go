package errors

import stderrors "errors"

// Host rule violations raised by the runtime while executing instructions.
var (
	ErrDuplicateTransaction = stderrors.New("runtime: transaction already applied")
	ErrUnknownProgram       = stderrors.New("runtime: unknown program")
	ErrProgramPaused        = stderrors.New("runtime: program paused")
	ErrAccountNotSupplied   = stderrors.New("runtime: account not supplied to instruction")
	ErrReadonlyAccount      = stderrors.New("runtime: account not writable")
	ErrUnauthorizedDebit    = stderrors.New("runtime: debit requires signature or ownership")
	ErrNotOwner             = stderrors.New("runtime: account not owned by executing program")
	ErrAccountInUse         = stderrors.New("runtime: account already allocated")
	ErrMissingSigner        = stderrors.New("runtime: new account must sign or be derived")
	ErrInsufficientRent     = stderrors.New("runtime: payer cannot fund rent-exempt deposit")
	ErrDataSize             = stderrors.New("runtime: data length does not match allocation")
	ErrLamportImbalance     = stderrors.New("runtime: lamports not conserved")
	ErrPrivilegeEscalation  = stderrors.New("runtime: nested call escalates account privileges")
	ErrCallDepth            = stderrors.New("runtime: nested call depth exceeded")
	ErrOverflow             = stderrors.New("runtime: arithmetic overflow")
)

package listing

import (
	"errors"
	"fmt"
)

// Code is the numeric identifier of a listing failure. Codes are stable and
// surface unchanged to clients.
type Code uint32

// Listing failure codes.
const (
	CodeAddressMismatch Code = 6000 + iota
	CodeAlreadyInitialized
	CodeNotInitialized
	CodeInvalidPrice
	CodeOwnerMismatch
	CodeAuthorityMismatch
	CodeInsufficientTokenBalance
	CodeAssetMismatch
	CodeEscrowMustBeEmpty
	CodeUnauthorized
	CodeInsufficientFunds
	CodeArithmeticOverflow
	CodeDerivation
)

// Error is a typed listing failure. Errors compare equal by code so wrapped
// instances still match the exported sentinels with errors.Is.
type Error struct {
	Code Code
	Name string
	msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("listing: %s", e.msg) }

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

func newError(code Code, name, msg string) *Error {
	return &Error{Code: code, Name: name, msg: msg}
}

var (
	ErrAddressMismatch          = newError(CodeAddressMismatch, "AddressMismatch", "listing address does not match the derived address")
	ErrAlreadyInitialized       = newError(CodeAlreadyInitialized, "AlreadyInitialized", "listing is already initialized")
	ErrNotInitialized           = newError(CodeNotInitialized, "NotInitialized", "listing is not initialized")
	ErrInvalidPrice             = newError(CodeInvalidPrice, "InvalidPrice", "price must be greater than zero")
	ErrOwnerMismatch            = newError(CodeOwnerMismatch, "OwnerMismatch", "account owner mismatch")
	ErrAuthorityMismatch        = newError(CodeAuthorityMismatch, "AuthorityMismatch", "escrow holding has unexpected authority")
	ErrInsufficientTokenBalance = newError(CodeInsufficientTokenBalance, "InsufficientTokenBalance", "holding balance is insufficient")
	ErrAssetMismatch            = newError(CodeAssetMismatch, "AssetMismatch", "asset does not match the listing")
	ErrEscrowMustBeEmpty        = newError(CodeEscrowMustBeEmpty, "EscrowMustBeEmpty", "escrow holding must start empty")
	ErrUnauthorized             = newError(CodeUnauthorized, "Unauthorized", "caller is not authorized to perform this action")
	ErrInsufficientFunds        = newError(CodeInsufficientFunds, "InsufficientFunds", "buyer does not have enough lamports")
	ErrArithmeticOverflow       = newError(CodeArithmeticOverflow, "ArithmeticOverflow", "arithmetic overflow")
	ErrDerivation               = newError(CodeDerivation, "DerivationFailed", "unable to derive listing address")

	errMalformedRecord = errors.New("listing: malformed listing record")
)

type wrappedError struct {
	kind  *Error
	cause error
}

func (w *wrappedError) Error() string { return fmt.Sprintf("%s: %v", w.kind.Error(), w.cause) }

func (w *wrappedError) Unwrap() []error { return []error{w.kind, w.cause} }

func wrap(kind *Error, cause error) error {
	if cause == nil {
		return kind
	}
	return &wrappedError{kind: kind, cause: cause}
}

// CodeOf extracts the listing code carried by err. The boolean is false for
// errors that did not originate in the listing program.
func CodeOf(err error) (Code, bool) {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code, true
	}
	return 0, false
}

// NameOf returns the symbolic name of the listing error carried by err.
func NameOf(err error) string {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Name
	}
	return ""
}

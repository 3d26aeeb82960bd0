package token

import "errors"

var (
	ErrNotAsset            = errors.New("token: account is not an asset")
	ErrNotHolding          = errors.New("token: account is not a holding")
	ErrAssetMismatch       = errors.New("token: asset mismatch")
	ErrOwnerMismatch       = errors.New("token: holding owner mismatch")
	ErrMissingAuthority    = errors.New("token: authority signature missing")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrNonZeroBalance      = errors.New("token: holding balance must be zero to close")
	ErrAccountExists       = errors.New("token: account already exists")
	ErrInvalidHolding      = errors.New("token: holding address is not the associated address")
	ErrInvalidAmount       = errors.New("token: amount must be positive")
	ErrOverflow            = errors.New("token: arithmetic overflow")
	ErrInvalidInstruction  = errors.New("token: invalid instruction")
	ErrAccountMissing      = errors.New("token: account missing")
	ErrSelfTransfer        = errors.New("token: source and destination are the same holding")
)

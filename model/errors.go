package model

import "github.com/pkg/errors"

// Error kinds. Every error returned by the engines wraps exactly one of these,
// so callers can classify failures with errors.Is.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrAlreadyProcessed   = errors.New("already processed")
	ErrAlreadyExecuted    = errors.New("already executed")
	ErrAlreadyConfirmed   = errors.New("already confirmed")
	ErrNotFound           = errors.New("not found")
	ErrLimitExceeded      = errors.New("limit exceeded")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrExternalCallFailed = errors.New("external call failed")
	ErrPaused             = errors.New("paused")
)

var (
	ErrNotValidator = errors.Wrap(ErrUnauthorized, "caller is not a validator")
	ErrNotAdmin     = errors.Wrap(ErrUnauthorized, "caller is not the bridge admin")
	ErrNotOwner     = errors.Wrap(ErrUnauthorized, "caller is not an owner")
	ErrNotInitiator = errors.Wrap(ErrUnauthorized, "caller is not the initiator")

	ErrAlreadyAttested = errors.Wrap(ErrAlreadyConfirmed, "validator already attested")

	ErrNoSuchCall     = errors.Wrap(ErrNotFound, "no such call")
	ErrNotConfirmed   = errors.Wrap(ErrNotFound, "confirmation not found")
	ErrNotInitialized = errors.Wrap(ErrNotFound, "state not initialized")

	ErrExceedsMax      = errors.Wrap(ErrLimitExceeded, "amount exceeds max per transaction")
	ErrBelowMin        = errors.Wrap(ErrLimitExceeded, "amount below min per transaction")
	ErrExceedsDailyCap = errors.Wrap(ErrLimitExceeded, "amount exceeds daily cap")

	ErrNoFees = errors.Wrap(ErrInsufficientFunds, "no accumulated fees")

	ErrZeroAddress         = errors.Wrap(ErrInvalidParameter, "zero address")
	ErrZeroAmount          = errors.Wrap(ErrInvalidParameter, "zero amount")
	ErrFeeTooHigh          = errors.Wrap(ErrInvalidParameter, "fee above 1000 bps")
	ErrInvalidThreshold    = errors.Wrap(ErrInvalidParameter, "threshold out of range")
	ErrAttestationMismatch = errors.Wrap(ErrInvalidParameter, "attestation does not match recorded transfer")
	ErrOverflow            = errors.Wrap(ErrInvalidParameter, "arithmetic overflow")
	ErrOwnerCap            = errors.Wrap(ErrInvalidParameter, "owner limit reached")
	ErrAlreadyOwner        = errors.Wrap(ErrInvalidParameter, "address is already an owner")
	ErrAlreadyValidator    = errors.Wrap(ErrInvalidParameter, "address is already a validator")
	ErrLastOwner           = errors.Wrap(ErrInvalidParameter, "cannot remove the last owner")
	ErrAlreadyInitialized  = errors.Wrap(ErrInvalidParameter, "state already initialized")
)

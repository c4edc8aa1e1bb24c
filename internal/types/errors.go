package types

import "errors"

// Domain errors shared across the ledger and settlement services.
// Every failure aborts the whole call with no partial mutation; callers
// decide whether to retry with corrected terms or balances.
var (
	ErrUnauthorized             = errors.New("caller is not authorized for this operation")
	ErrUnknownInstitution       = errors.New("institution has no registered settlement account")
	ErrInstrumentNotFound       = errors.New("instrument is not registered")
	ErrInstrumentAlreadyExists  = errors.New("instrument id already registered with different data")
	ErrDuplicateConfirmation    = errors.New("this party has already confirmed the operation")
	ErrTermsMismatch            = errors.New("confirmation terms do not match the pending operation")
	ErrOperationAlreadyExecuted = errors.New("operation is in a terminal state")
	ErrOperationNotFound        = errors.New("operation not found")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrInsufficientAllowance    = errors.New("insufficient allowance")
	ErrAccountNotEnabled        = errors.New("address is not enabled to hold this asset")
	ErrNumericOverflow          = errors.New("amount exceeds the representable range")
)

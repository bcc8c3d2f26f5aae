package goal

import (
	"errors"
	"fmt"
)

// Code classifies every error the lifecycle service can surface. The set is
// closed: handlers map codes to HTTP statuses exhaustively.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeInvalidState       Code = "invalid_state"
	CodeConflict           Code = "conflict"
	CodeValidationFailed   Code = "validation_failed"
	CodePreconditionFailed Code = "precondition_failed"
	CodeRateLimited        Code = "rate_limited"
	CodeExternalService    Code = "external_service_failure"
	CodeStorageFailure     Code = "storage_failure"
)

// Reason sentinels. Repositories return the not-found sentinels directly;
// the service wraps every sentinel in an *Error carrying the taxonomy code,
// so callers can test either with errors.Is or by code.
var (
	ErrGoalNotFound  = errors.New("goal not found")
	ErrEntryNotFound = errors.New("progress entry not found")

	ErrGoalNotActive      = errors.New("goal is not active")
	ErrGoalNotRetryable   = errors.New("goal is not in a retryable state")
	ErrGoalNotContinuable = errors.New("goal is not in a continuable state")
	ErrGoalStillActive    = errors.New("goal is still active")

	ErrTargetNotReached = errors.New("target value not reached")

	ErrActiveGoalExists = errors.New("an active goal already exists in this chain")
	ErrGoalNotYoungest  = errors.New("goal is not the most recent in its chain")
	ErrChainCorrupt     = errors.New("iteration chain exceeds depth limit or contains a cycle")

	ErrGoalLocked     = errors.New("goal is locked: progress has been recorded")
	ErrGoalHasEntries = errors.New("goal has progress entries and cannot be deleted")

	ErrSummaryExists        = errors.New("summary already exists")
	ErrNotEnoughEntries     = errors.New("not enough progress entries for a summary")
	ErrSummaryNotConfigured = errors.New("summary generation is not configured")
)

// Error is the typed error surfaced by all lifecycle operations.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the taxonomy code from an error chain. Unclassified
// errors report as storage failures, the only code without a sentinel.
func CodeOf(err error) Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeStorageFailure
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

func newError(code Code, err error) *Error {
	return &Error{Code: code, Message: err.Error(), Err: err}
}

// NotFound wraps a missing-or-not-owned entity error.
func NotFound(err error) *Error { return newError(CodeNotFound, err) }

// InvalidState wraps an operation attempted against the wrong status.
func InvalidState(err error) *Error { return newError(CodeInvalidState, err) }

// Conflict wraps a state conflict (chain violations, locked fields, deletion
// of goals with history).
func Conflict(err error) *Error { return newError(CodeConflict, err) }

// Validation reports malformed input caught before touching the store.
func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidationFailed, Message: fmt.Sprintf(format, args...)}
}

// Precondition wraps an unmet operation precondition.
func Precondition(err error) *Error { return newError(CodePreconditionFailed, err) }

// RateLimited reports a throttled summary-generation request.
func RateLimited(message string) *Error {
	return &Error{Code: CodeRateLimited, Message: message}
}

// External wraps a failure of the text-generation collaborator.
func External(err error) *Error {
	return &Error{Code: CodeExternalService, Message: "text generation failed", Err: err}
}

// Storage wraps an underlying store error. Storage failures are always
// surfaced, never swallowed.
func Storage(op string, err error) *Error {
	return &Error{Code: CodeStorageFailure, Message: fmt.Sprintf("%s: storage failure", op), Err: err}
}

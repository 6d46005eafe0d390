// Package errs defines the runtime's domain error kinds, each carrying
// enough context for a human-readable reason string without leaking
// implementation details across component boundaries.
package errs

import "fmt"

// Kind classifies a domain error for callers that need to branch on it
// (e.g. the Agent Loop deciding whether a failure is fatal to the tick).
type Kind string

const (
	KindConfigInvalid      Kind = "config_invalid"
	KindFilesystemDenied   Kind = "filesystem_denied"
	KindParseFailure       Kind = "parse_failure"
	KindLMUnavailable      Kind = "lm_unavailable"
	KindLMBadResponse      Kind = "lm_bad_response"
	KindExecutorTimeout    Kind = "executor_timeout"
	KindExecutorSpawnFail  Kind = "executor_spawn_failure"
	KindBudgetExceeded     Kind = "budget_exceeded"
	KindStuck              Kind = "stuck"
	KindStoreConflict      Kind = "store_conflict"
)

// Error is the concrete error type for every domain error kind. Reason is
// a human-readable string suitable for surfacing directly to an operator
// (stored verbatim in pause/block annotations).
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func Wrap(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Cause: cause}
}

// ConfigInvalid reports a fatal configuration load/validation failure.
func ConfigInvalid(reason string, cause error) *Error {
	return Wrap(KindConfigInvalid, reason, cause)
}

// ParseFailure reports a malformed record recovered locally (the caller
// skips the record and continues).
func ParseFailure(record, reason string) *Error {
	return New(KindParseFailure, fmt.Sprintf("%s: %s", record, reason))
}

// LMUnavailable wraps a transport-level failure talking to the LM provider.
func LMUnavailable(cause error) *Error {
	return Wrap(KindLMUnavailable, "language model unavailable", cause)
}

// LMBadResponse reports a response that failed schema validation after
// all retries during the named phase ("plan", "reflect", "decide").
func LMBadResponse(phase string, cause error) *Error {
	return Wrap(KindLMBadResponse, fmt.Sprintf("invalid LM response during %s", phase), cause)
}

// BudgetExceeded reports a per-task or per-day limit breach, with a
// literal human-readable reason matching the budget ledger's own wording.
func BudgetExceeded(reason string) *Error {
	return New(KindBudgetExceeded, reason)
}

// Stuck reports a reflection-analyzer stuck verdict.
func Stuck(reason string) *Error {
	return New(KindStuck, reason)
}

// StoreConflict reports a filesystem write failure for durable state
// (event log, cycle log, budget ledger) — fatal for the current tick.
func StoreConflict(reason string, cause error) *Error {
	return Wrap(KindStoreConflict, reason, cause)
}

// Package cpmperrors adapts the shared pkg/errors.AppError taxonomy to the
// solver's own error codes (spec §7): input/parse failures, invariant
// violations, timeouts, and configuration errors, all matchable via
// errors.Is/errors.As by callers that only care about the class.
package cpmperrors

import "github.com/tanaka-lab/cpmp/pkg/errors"

// SolverError is an alias of the shared AppError type, kept distinct so
// solver callers can name the type they expect without importing
// pkg/errors directly.
type SolverError = errors.AppError

// InvalidInput reports malformed input: a header/stack count mismatch, a
// non-positive height, or a stack exceeding the configured height.
func InvalidInput(reason string) *SolverError {
	return errors.New(errors.CodeInvalidInput, reason)
}

// EmptyFile reports an instance with zero blocks.
func EmptyFile() *SolverError {
	return errors.New(errors.CodeEmptyFile, "instance contains no blocks")
}

// ParseError wraps a low-level parsing failure (non-numeric token,
// unrecognized format) with the solver's parse error code.
func ParseError(reason string, cause error) *SolverError {
	return errors.Wrap(errors.CodeParseError, reason, cause)
}

// InvariantViolation reports a solver-internal bug: an invariant from §3.3
// failed a debug-mode assertion. This is never a user input problem.
func InvariantViolation(reason string) *SolverError {
	return errors.New(errors.CodeInvariantViolation, reason)
}

// Timeout reports that the CPU-time budget expired before the search could
// prove optimality for every candidate length. Distinct from
// cpmp.StatusTimeLimit, which is a result status, not an error: a
// time-limited run that found a feasible solution returns a Result, not
// this error.
func Timeout(reason string) *SolverError {
	return errors.New(errors.CodeTimeout, reason)
}

// ConfigError reports an invalid combination of solver options (e.g. an
// unrecognized bound-engine or dominance mode).
func ConfigError(reason string) *SolverError {
	return errors.New(errors.CodeConfigError, reason)
}

// StorageError wraps a failure from the optional object-storage backend
// (archiving an input instance or a result file).
func StorageError(cause error) *SolverError {
	return errors.Wrap(errors.CodeStorageError, "storage operation failed", cause)
}

// DatabaseError wraps a failure from the optional run-history database.
func DatabaseError(cause error) *SolverError {
	return errors.Wrap(errors.CodeDatabaseError, "database operation failed", cause)
}

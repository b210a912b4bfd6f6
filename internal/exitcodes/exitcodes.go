// Package exitcodes defines standard exit codes for CLI operations so
// Airflow, Kubernetes, and shell wrappers can tell retryable failures
// from permanent ones.
package exitcodes

import (
	"errors"
	"os"
	"strings"
)

const (
	// Success - pipeline completed without errors
	Success = 0

	// ConfigError - configuration/YAML parsing errors (non-recoverable, don't retry)
	ConfigError = 1

	// ConnectionError - database connection or pool errors (recoverable)
	ConnectionError = 2

	// MigrationError - partition provisioning or batch copy failed (non-recoverable)
	MigrationError = 3

	// VerificationError - row count or checksum mismatch between tables (non-recoverable)
	VerificationError = 4

	// Cancelled - user cancelled via SIGINT/SIGTERM (recoverable)
	Cancelled = 5

	// StateError - run state errors or a conflicting migration holds the lock (non-recoverable)
	StateError = 6

	// IOError - file I/O errors (recoverable)
	IOError = 7
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	Err  error
	Code int
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code.
func NewExitError(err error, code int) *ExitError {
	return &ExitError{Err: err, Code: code}
}

// FromError determines the appropriate exit code for an error.
// It examines error messages and types to classify the error.
func FromError(err error) int {
	if err == nil {
		return Success
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return IOError
	}

	errStr := strings.ToLower(err.Error())

	if containsAny(errStr, []string{
		"no such file",
		"file not found",
		"permission denied",
		"is a directory",
		"not a directory",
	}) {
		return IOError
	}

	// Verification mismatches before ConfigError so "verification failed"
	// never matches a config keyword
	if containsAny(errStr, []string{
		"row count",
		"mismatch",
		"checksum",
		"verification failed",
	}) {
		return VerificationError
	}

	if containsAny(errStr, []string{
		"yaml:",
		"json:",
		"unmarshal",
		"invalid configuration",
		"missing required",
		"invalid value",
		"parsing config",
	}) && !containsAny(errStr, []string{"connection", "connect", "dial"}) {
		return ConfigError
	}

	if containsAny(errStr, []string{
		"connection",
		"connect",
		"dial",
		"refused",
		"timeout",
		"unreachable",
		"no such host",
		"network",
		"pool",
		"ping",
		"authentication",
	}) {
		return ConnectionError
	}

	// Lock conflicts mention "migration" too, so classify them first
	if containsAny(errStr, []string{
		"advisory lock",
		"already in progress",
	}) {
		return StateError
	}

	if containsAny(errStr, []string{
		"migrat",
		"copying batch",
		"partition",
		"provision",
		"insert",
		"truncat",
	}) {
		return MigrationError
	}

	if containsAny(errStr, []string{
		"cancel",
		"interrupt",
		"context canceled",
		"context deadline",
	}) {
		return Cancelled
	}

	if containsAny(errStr, []string{
		"state",
		"cursor",
		"resume",
		"run not found",
		"already in progress",
		"advisory lock",
	}) {
		return StateError
	}

	// Unknown errors default to the migration class
	return MigrationError
}

// IsRecoverable returns true if the error is recoverable (safe to retry).
func IsRecoverable(code int) bool {
	switch code {
	case ConnectionError, Cancelled, IOError:
		return true
	default:
		return false
	}
}

// Description returns a human-readable description of the exit code.
func Description(code int) string {
	switch code {
	case Success:
		return "success"
	case ConfigError:
		return "configuration error"
	case ConnectionError:
		return "connection error (recoverable)"
	case MigrationError:
		return "migration error"
	case VerificationError:
		return "verification error"
	case Cancelled:
		return "cancelled (recoverable)"
	case StateError:
		return "state error"
	case IOError:
		return "I/O error (recoverable)"
	default:
		return "unknown error"
	}
}

func containsAny(s string, substrs []string) bool {
	for _, substr := range substrs {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

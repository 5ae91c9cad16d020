package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrConflict           = errors.New("entity changed concurrently")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrInvalidExecContext = errors.New("invalid database execution context")

	// Queue
	ErrQueueUnavailable = errors.New("job queue unavailable")
	ErrUnknownFlow      = errors.New("unknown job name")
	ErrInvalidPayload   = errors.New("invalid job payload")
	ErrFlowDisabled     = errors.New("pipeline disabled by toggle")
	ErrDeferred         = errors.New("job deferred")

	// Review tasks
	ErrInvalidTransition = errors.New("invalid review task transition")

	// Configuration and budget
	ErrInvalidConfig  = errors.New("invalid ai configuration")
	ErrBudgetExceeded = errors.New("daily ai budget ceiling reached")

	// AI provider
	ErrProviderTimeout = errors.New("ai provider timed out")
	ErrProviderFailure = errors.New("ai provider call failed")
	ErrMalformedOutput = errors.New("ai provider returned malformed output")
)

// ConfigError names the AiConfig key that failed validation.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ai config %q: %s", e.Key, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// NewConfigError builds a ConfigError for key.
func NewConfigError(key, format string, args ...any) error {
	return &ConfigError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

// PermanentError marks a failure that a retry cannot fix.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the queue fails the job without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	var pe *PermanentError
	if errors.As(err, &pe) {
		return true
	}
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrUnknownFlow) ||
		errors.Is(err, ErrInvalidPayload)
}

package domain

import "fmt"

// ConfigurationError marks a submission that can never succeed as given:
// unknown queue name or malformed job options. It fails fast at submission
// time rather than being silently dropped.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "configuration: " + e.Msg }

func NewConfigurationError(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// InvalidStateError is returned when an operation requires a job to be in a
// particular state and it is not, e.g. reprioritizing an active job.
type InvalidStateError struct {
	JobID string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("job %s in state %q does not permit this operation", e.JobID, e.State)
}

// TransientError wraps failures from external calls (including a circuit
// breaker rejecting fast while open). Transient failures are subject to the
// job's configured retry/backoff.
type TransientError struct {
	Op    string
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Op, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

func NewTransientError(op string, cause error) error {
	return &TransientError{Op: op, Cause: cause}
}

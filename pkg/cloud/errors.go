package cloud

import "fmt"

// Error is returned by any Cloud Adapter operation that fails against the
// underlying SDK or transport. Op identifies which capability call failed;
// Cause is the wrapped underlying error.
type Error struct {
	Op    string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cloud: %s: %v", e.Op, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError wraps cause as a cloud Error for operation op. Returns nil if
// cause is nil, so callers can write `return cloud.NewError("op", err)`
// unconditionally after an SDK call.
func NewError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Op: op, Cause: cause}
}

// SchedulerError represents a partial-failure record returned by the
// container scheduler for a specific resource ARN, e.g. a batched
// describe-tasks call that reports some ARNs as failures alongside
// successes.
type SchedulerError struct {
	ARN    string
	Reason string
}

func (e *SchedulerError) Error() string {
	return fmt.Sprintf("scheduler: %s: %s", e.ARN, e.Reason)
}

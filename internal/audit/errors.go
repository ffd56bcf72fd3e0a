package audit

import "fmt"

// ValidationError reports malformed input: an unknown action, mismatched
// entity identity between snapshots, or an unresolvable extra reference.
// It is always surfaced synchronously and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ConsistencyError reports a violated lifecycle ordering discovered during
// squash: a record appearing after a DELETE, or a CREATE treated as a merge
// continuation target. It is fatal for the unit of work.
type ConsistencyError struct {
	Reason string
}

func (e *ConsistencyError) Error() string {
	return "consistency: " + e.Reason
}

func consistencyf(format string, args ...any) error {
	return &ConsistencyError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a referenced row absent at fetch time.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

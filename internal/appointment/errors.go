package appointment

import "fmt"

// ValidationError reports malformed input or unknown references.
// It is surfaced to the caller as is and never retried.
type ValidationError struct {
	msg string
	err error
}

func (e *ValidationError) Error() string {
	return e.msg
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// invalidReference keeps the not-found sentinel reachable through errors.Is.
func invalidReference(err error) error {
	return &ValidationError{msg: err.Error(), err: err}
}

// unavailable tags err as a store outage for callers that branch on ErrStoreUnavailable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

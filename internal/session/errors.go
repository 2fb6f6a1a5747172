package session

import (
	"errors"
	"fmt"
)

// ErrSessionEnded reports that the stored credentials are irrecoverably
// invalid and the user must authenticate again. Errors returned by Transport
// match it via errors.Is.
var ErrSessionEnded = errors.New("session ended: authentication required")

// SessionEndedError wraps ErrSessionEnded with the failure that ended the
// session (a rejected refresh credential, a failed refresh exchange, or a
// missing refresh credential).
type SessionEndedError struct {
	Cause error
}

func (e *SessionEndedError) Error() string {
	if e.Cause == nil {
		return ErrSessionEnded.Error()
	}
	return fmt.Sprintf("%v: %v", ErrSessionEnded, e.Cause)
}

func (e *SessionEndedError) Is(target error) bool {
	return target == ErrSessionEnded
}

func (e *SessionEndedError) Unwrap() error {
	return e.Cause
}

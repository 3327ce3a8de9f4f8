package session

import (
	"errors"
	"fmt"

	"github.com/dpfeiffer/comsync/pkg/models"
)

var (
	ErrNoActiveSession     = errors.New("session: no active session")
	ErrTransactionNotFound = errors.New("session: transaction not found")
)

// SessionNotFoundError reports a caller-supplied session ID that does not
// match the active session.
type SessionNotFoundError struct {
	ID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session: session %q not found", e.ID)
}

// InvalidSessionStateError reports a pipeline step attempted in the wrong
// session state.
type InvalidSessionStateError struct {
	Expected models.SessionStatus
	Actual   models.SessionStatus
}

func (e *InvalidSessionStateError) Error() string {
	return fmt.Sprintf("session: invalid state: expected %s, got %s", e.Expected, e.Actual)
}

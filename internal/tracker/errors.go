package tracker

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned (wrapped) by backends for unknown issue keys.
var ErrNotFound = errors.New("issue not found")

// CollaboratorError wraps a failed IssueStore or AttachmentSink call with the
// operation and issue key it was made for.
type CollaboratorError struct {
	Op  string // e.g. "get", "create", "transition", "upload"
	Key string
	Err error
}

func (e *CollaboratorError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("tracker %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("tracker %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Wrap returns err as a *CollaboratorError, or nil if err is nil.
func Wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return err
	}
	return &CollaboratorError{Op: op, Key: key, Err: err}
}

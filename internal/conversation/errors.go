package conversation

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
	ErrTurnNotFound   = errors.New("turn not found")
	ErrTurnNotPending = errors.New("turn is not pending")
)

// ValidationError is returned when user input is rejected before any state
// changes. It unwraps to ErrEmptyMessage or ErrMessageTooLong.
type ValidationError struct {
	Err    error
	Length int
	Max    int
}

func (e *ValidationError) Error() string {
	if errors.Is(e.Err, ErrMessageTooLong) {
		return fmt.Sprintf("%v (%d > %d characters)", e.Err, e.Length, e.Max)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

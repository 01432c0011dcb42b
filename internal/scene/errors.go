package scene

import (
	"errors"
	"fmt"
)

var (
	// ErrDeclined is returned when the user answers no to a confirmation.
	// The scene is left untouched.
	ErrDeclined = errors.New("declined by user")

	// ErrNoNetwork is returned by property operations on a scene without layers.
	ErrNoNetwork = errors.New("no network defined")

	// ErrNoProperty is returned when an operation needs a property that is not attached.
	ErrNoProperty = errors.New("no property defined")

	// ErrPermanentBlock is returned when removing the input or output block.
	ErrPermanentBlock = errors.New("input and output blocks cannot be removed")

	// ErrUnknownBlock is returned when an id does not name a block of the scene.
	ErrUnknownBlock = errors.New("unknown block")

	// ErrNotEditable is returned when editing a block that is no longer editable.
	ErrNotEditable = errors.New("block is not editable")
)

// ValidationError reports user input that could not be applied: malformed
// parameter text, a property that does not fit its block, and the like.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(op string, format string, args ...any) error {
	return &ValidationError{Op: op, Err: fmt.Errorf(format, args...)}
}

package document

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBounds = errors.New("offset out of bounds")
	ErrInvalidPath = errors.New("invalid path")
	ErrInvalidNode = errors.New("invalid node")
	ErrUnknownMark = errors.New("unknown mark")
	ErrReentrant   = errors.New("apply called while notifying listeners")
)

// MutationError reports which mutation of a batch was rejected. The document
// is left exactly as it was before the batch.
type MutationError struct {
	Mutation Mutation
	Err      error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Mutation.Kind(), e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDirective = errors.New("invalid directive")
	// ErrTooLarge marks a source or intermediate image over the pixel limit.
	ErrTooLarge = errors.New("image exceeds pixel limit")
)

// TransformError is returned for any pipeline failure. Step names the stage
// that failed and Err keeps the underlying cause for errors.Is.
type TransformError struct {
	Step string
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform failed at %s: %v", e.Step, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every *NotFoundError
	ErrNotFound = errors.New("image not found")
	// ErrDecode is matched by every *DecodeError
	ErrDecode = errors.New("image could not be decoded")

	ErrEmptyMessage  = errors.New("message content is empty")
	ErrInvalidSender = errors.New("invalid message sender")
)

// NotFoundError is returned when an operation names an image key that is not in the store.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("image %q not found", e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DecodeError is returned when uploaded bytes cannot be parsed as an image.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested object doesn't exist.
	ErrNotFound = errors.New("object not found")

	// ErrKeyExists is returned when attempting to create an object at a key
	// that already exists (when overwrite is disabled).
	ErrKeyExists = errors.New("object already exists at this key")

	// ErrInvalidKey is returned when a storage key is invalid or contains
	// forbidden characters (e.g., path traversal attempts like "../").
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrTooLarge is returned when an object exceeds the maximum allowed size.
	ErrTooLarge = errors.New("object exceeds maximum size")

	// ErrAccessDenied is returned when the storage provider denies access
	// to an object.
	ErrAccessDenied = errors.New("access denied")
)

// StorageError wraps storage operation errors with additional context.
type StorageError struct {
	// Op is the operation that failed (e.g., "Put", "Get", "Delete").
	Op string

	// Key is the storage key involved in the operation.
	Key string

	// Err is the underlying error that occurred.
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates an object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTooLarge returns true if the error indicates an object was too large.
func IsTooLarge(err error) bool {
	return errors.Is(err, ErrTooLarge)
}

package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage marks every failure of the backing store: I/O, encoding or connectivity.
	ErrStorage = errors.New("storage failure")

	// ErrClosed indicates the backend was used after Close.
	ErrClosed = errors.New("backend closed")

	// ErrUnsupportedBackend indicates a database URL names no known backend.
	ErrUnsupportedBackend = errors.New("unsupported backend")
)

// StorageError wraps a backing store failure with the operation and key involved.
type StorageError struct {
	Op  string // Operation being performed (e.g., "Get", "Apply")
	Key string // Key if applicable
	Err error  // Underlying error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s operation failed for key %s: %v", e.Op, e.Key, e.Err)
	}

	return fmt.Sprintf("%s operation failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is makes every StorageError match ErrStorage as well as its cause.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage || errors.Is(e.Err, target)
}

// NewStorageError creates a new storage error with context.
func NewStorageError(op, key string, err error) *StorageError {
	return &StorageError{
		Op:  op,
		Key: key,
		Err: err,
	}
}

// IsStorageError checks if an error came from the backing store.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorage)
}

package audit

import (
	"errors"
	"fmt"
)

// ErrBufferFull indicates the async sink dropped a record.
var ErrBufferFull = errors.New("audit buffer full")

// ErrSinkClosed indicates a record arrived after Shutdown.
var ErrSinkClosed = errors.New("audit sink closed")

// StorageError wraps any failure to persist an audit record.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("audit storage failed: %v", e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

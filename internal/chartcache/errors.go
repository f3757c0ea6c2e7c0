package chartcache

import (
	"errors"
	"fmt"
)

// ErrNotActive is returned when waiting on a pair that was removed.
var ErrNotActive = errors.New("pair is not an active chart")

// FetchError reports a failed remote call.
type FetchError struct {
	Pair string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Pair, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StorageError reports a failed read or write of persisted chart data.
type StorageError struct {
	Pair string
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Pair, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DataIntegrityError reports rows that cannot be placed on the series grid.
type DataIntegrityError struct {
	Pair   string
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("integrity %s: %s", e.Pair, e.Reason)
}

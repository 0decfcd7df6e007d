package vectable

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vectable/index"
	"github.com/hupe1980/vectable/internal/manifest"
)

var (
	// ErrTableExists is returned by CreateTable in CreateModeCreate when the table already exists.
	ErrTableExists = errors.New("table already exists")

	// ErrTableNotFound is returned when a table has no committed version.
	ErrTableNotFound = errors.New("table not found")

	// ErrDetachedHead is returned when writing through a handle checked out to an older version.
	ErrDetachedHead = errors.New("table is checked out to an older version")

	// ErrVersionNotFound is returned when a version does not exist.
	ErrVersionNotFound = errors.New("version not found")

	// ErrConcurrentModification is returned when another writer committed first.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidLimit is returned when a query limit is not positive.
	ErrInvalidLimit = errors.New("limit must be positive")

	// ErrUnknownColumn is returned for columns the table does not have.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrIndexNotFound is returned when a query or stats call needs an index that does not exist.
	ErrIndexNotFound = errors.New("index not found")

	// ErrIndexWaitTimeout is returned when indices are not ready within the wait bounds.
	ErrIndexWaitTimeout = errors.New("timed out waiting for indices")

	// ErrIndexBuildFailed is returned by WaitForIndices when a build failed.
	ErrIndexBuildFailed = errors.New("index build failed")

	// ErrUnsupportedScheme is returned by Connect for unknown URI schemes.
	ErrUnsupportedScheme = errors.New("unsupported uri scheme")

	// ErrInvalidConfig is returned for invalid index or table configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClosed is returned when using a closed connection.
	ErrClosed = errors.New("connection closed")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// OpError records the failed table operation and its cause.
type OpError struct {
	Op    string
	Table string
	Err   error
}

func (e *OpError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// ConnectError wraps failures while constructing a storage client.
type ConnectError struct {
	URI string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URI, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func opError(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) && oe.Op == op && oe.Table == table {
		return err
	}
	return &OpError{Op: op, Table: table, Err: translateError(err)}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrTableNotFound), errors.Is(err, ErrVersionNotFound),
		errors.Is(err, ErrConcurrentModification), errors.Is(err, ErrIndexNotFound):
		return err
	case errors.Is(err, manifest.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrTableNotFound, err)
	case errors.Is(err, manifest.ErrVersionNotFound):
		return fmt.Errorf("%w: %w", ErrVersionNotFound, err)
	case errors.Is(err, manifest.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConcurrentModification, err)
	case errors.Is(err, manifest.ErrIndexNotFound):
		return fmt.Errorf("%w: %w", ErrIndexNotFound, err)
	}

	var own *ErrDimensionMismatch
	if errors.As(err, &own) {
		return err
	}
	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	return err
}

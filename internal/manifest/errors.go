package manifest

import "errors"

var (
	// ErrIncompatibleVersion is returned when the manifest format is not supported.
	ErrIncompatibleVersion = errors.New("incompatible manifest version")

	// ErrNotFound is returned when a table has no committed version.
	ErrNotFound = errors.New("manifest not found")

	// ErrVersionNotFound is returned when a specific version does not exist.
	ErrVersionNotFound = errors.New("version not found")

	// ErrConflict is returned when another writer committed the same version first.
	ErrConflict = errors.New("concurrent commit")
)

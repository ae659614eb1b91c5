package store

import "errors"

var (
	// ErrIncompatibleSchema means the store was created by a newer
	// version of the software, or a required migration is missing.
	ErrIncompatibleSchema = errors.New("incompatible schema version")

	// ErrUnknownEvent means a transmission referenced an event that has
	// not been created.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrNotFound means the referenced transmission does not exist.
	ErrNotFound = errors.New("transmission not found")
)

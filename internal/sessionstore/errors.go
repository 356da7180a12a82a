package sessionstore

import "errors"

var (
	// ErrDuplicate is returned by InsertSession when the id already exists.
	ErrDuplicate = errors.New("session already exists")

	// ErrNotFound is returned by GetSession when the id is absent.
	ErrNotFound = errors.New("session not found")
)

package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound = errors.New("runner not found")
	ErrClosed   = errors.New("store closed")
)

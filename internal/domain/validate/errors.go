package validate

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrWeakSignal   = errors.New("signal below threshold")
)

package service

import "errors"

// Sentinel error kinds for the detection processor.
var (
	ErrLapTooShort = errors.New("lap below minimum duration")
	ErrNotStarted  = errors.New("service not started")
)

// Package repository defines the persistent log store interface and errors.
package repository

import "time"

// Option applies a configuration option to the SQLiteStore.
type Option func(*SQLiteStore)

// WithBusyTimeout sets the sqlite busy timeout applied at open.
func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *SQLiteStore) {
		if timeout > 0 {
			s.busyTimeout = timeout
		}
	}
}

// WithMaxOpenConns caps the connection pool size.
func WithMaxOpenConns(n int) Option {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithClock sets the time source used for write timestamps, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}

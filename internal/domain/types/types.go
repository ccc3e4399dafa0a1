// Package types contains common types used across the application
package types

// Status is the outcome category of one processed observation.
type Status string

// Outcome categories. Every processed observation maps to exactly one.
const (
	StatusSuccess Status = "success"
	StatusIgnored Status = "ignored"
	StatusError   Status = "error"
)

// Context tags identifying why an observation was not recorded.
const (
	ContextInvalidInput  = "invalid_input"
	ContextWeakSignal    = "weak_signal"
	ContextUnknownRunner = "unknown_runner"
	ContextLapTooShort   = "lap_too_short"
	ContextSystemError   = "system_error"
)

// RunnerInfo is the runner identity returned on a successful lap.
type RunnerInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// StatsInfo is the JSON shape of a runner's trailing-24h statistics.
// Durations are reported in seconds.
type StatsInfo struct {
	LapCount          int      `json:"lap_count"`
	FastestLapSeconds *float64 `json:"fastest_lap_seconds,omitempty"`
	AverageLapSeconds *float64 `json:"average_lap_seconds,omitempty"`
	LastLapTime       *string  `json:"last_lap_time,omitempty"`
}

// Outcome is the response object produced for every observation.
// Exactly the fields relevant to the status are populated.
type Outcome struct {
	Status             Status      `json:"status"`
	Message            string      `json:"message"`
	Runner             *RunnerInfo `json:"runner,omitempty"`
	LapDurationSeconds *float64    `json:"lap_duration,omitempty"`
	Suspect            bool        `json:"suspect,omitempty"`
	Stats              *StatsInfo  `json:"stats,omitempty"`
	Context            string      `json:"context,omitempty"`
}

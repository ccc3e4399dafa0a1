// Package model contains domain models passed between layers.
package model

import "time"

// RunnerStatus enumerates the states a runner entry can be in.
type RunnerStatus string

// Runner statuses as stored in the runner directory.
const (
	StatusActive   RunnerStatus = "active"
	StatusInactive RunnerStatus = "inactive"
)

// Observation is a single normalized beacon reading received from a
// checkpoint scanner. Optional sensor fields are pointers so "absent"
// and "zero" stay distinguishable.
type Observation struct {
	Minor        int64     // tracker identifier broadcast by the beacon
	RSSI         *int      // signal strength in dBm, negative when present
	BatteryLevel *int      // percent, device-reported
	Temperature  *float64  // degrees Celsius
	Humidity     *float64  // percent relative humidity
	ObservedAt   time.Time // receipt time at the checkpoint
}

// Runner is the identity a tracker minor resolves to. Read-only from
// this service's perspective; provisioning happens elsewhere.
type Runner struct {
	ID     int64
	Minor  int64
	Name   string
	Status RunnerStatus
}

// Detection is one appended row in the detection log.
type Detection struct {
	ID           int64
	Minor        int64
	DetectedAt   time.Time
	RSSI         *int
	BatteryLevel *int
	Temperature  *float64
	Humidity     *float64
	CheckpointID int64
}

// Lap is a confirmed lap completion. Duration is nil for a runner's
// first lap of the race.
type Lap struct {
	ID           int64
	RunnerID     int64
	LapTime      time.Time
	LapDuration  *time.Duration
	RSSI         *int
	CheckpointID int64
}

// LapStats aggregates a runner's trailing-24h lap history.
type LapStats struct {
	RunnerID    int64
	LapCount    int
	FastestLap  *time.Duration
	AverageLap  *time.Duration
	LastLapTime *time.Time
}

package beaconfeed

import "time"

// Config holds configuration for the beacon feed
type Config struct {
	BaseURL         string        // Base URL of the checkpoint service
	NumObservations int           // Number of observations to generate
	Trackers        int           // Number of distinct tracker minors to simulate
	FirstMinor      int64         // Minor assigned to the first simulated tracker
	Workers         int           // Number of posting workers
	Timeout         time.Duration // HTTP request timeout
	Interval        time.Duration // Delay between generated observations
	LogFile         string        // Log file for feed output
	Verbose         bool          // Enable verbose logging
}

// Stats holds feed statistics
type Stats struct {
	ObservationsGenerated int
	ObservationsPosted    int
	LapsRecorded          int
	Debounced             int
	Rejected              int
	Failed                int
	StartTime             time.Time
	EndTime               time.Time
	Duration              time.Duration
}

// outcomeResponse mirrors the checkpoint's detection response.
type outcomeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Context string `json:"context"`
}

// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Validation happens eagerly at load; a bad value stops startup.
// - External errors must be wrapped via this package's error helpers.
package config

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath is the sqlite database file for the persistent race log.
	DBPath string `koanf:"db_path"`

	// CheckpointID identifies the physical checkpoint this instance
	// represents; stamped onto every detection and lap row.
	CheckpointID int64 `koanf:"checkpoint_id"`

	// DebounceWindowSeconds is the interval after a detection during
	// which further signals from the same tracker count as the same
	// physical presence event.
	DebounceWindowSeconds int `koanf:"debounce_window_seconds"`

	// MinLapSeconds is the shortest plausible lap; anything quicker is
	// rejected outright.
	MinLapSeconds int `koanf:"min_lap_seconds"`

	// MaxLapSeconds is the longest plausible lap; slower laps are still
	// recorded but flagged suspect in the response.
	MaxLapSeconds int `koanf:"max_lap_seconds"`

	// RSSIThresholdDBm is the minimum acceptable signal strength.
	// Must be negative.
	RSSIThresholdDBm int `koanf:"rssi_threshold_dbm"`

	// SignalVariance widens the threshold into a marginal band, in dBm.
	SignalVariance int `koanf:"signal_variance"`

	// StatsCacheTTLSeconds bounds staleness of per-runner statistics.
	StatsCacheTTLSeconds int `koanf:"stats_cache_ttl_seconds"`
}

// New creates a Config holding the documented defaults.
func New() *Config {
	c := &Config{
		LogLevel:              "info",
		Addr:                  ":9080",
		DBPath:                "lapline.db",
		CheckpointID:          1,
		DebounceWindowSeconds: 5,
		MinLapSeconds:         30,
		MaxLapSeconds:         600,
		RSSIThresholdDBm:      -75,
		SignalVariance:        5,
		StatsCacheTTLSeconds:  300,
	}
	return c
}

package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if LAPLINE_CONFIG is set
//  3. env (prefix LAPLINE_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("LAPLINE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: LAPLINE_ADDR, LAPLINE_MIN_LAP_SECONDS, ...
	// Map env keys like LAPLINE_MIN_LAP_SECONDS -> min_lap_seconds.
	// Underscores are preserved to match koanf tags on the struct.
	envProvider := env.Provider("LAPLINE_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "lapline_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate fails fast on values that would make the debounce procedure
// meaningless at runtime.
func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBPath == "":
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	case c.DebounceWindowSeconds <= 0:
		return fmt.Errorf("%w: debounce_window_seconds must be positive", ErrInvalidConfig)
	case c.MinLapSeconds >= c.MaxLapSeconds:
		return fmt.Errorf("%w: min_lap_seconds must be below max_lap_seconds", ErrInvalidConfig)
	case c.RSSIThresholdDBm > 0:
		return fmt.Errorf("%w: rssi_threshold_dbm must not be positive", ErrInvalidConfig)
	case c.SignalVariance < 0:
		return fmt.Errorf("%w: signal_variance must not be negative", ErrInvalidConfig)
	case c.StatsCacheTTLSeconds <= 0:
		return fmt.Errorf("%w: stats_cache_ttl_seconds must be positive", ErrInvalidConfig)
	}
	return nil
}

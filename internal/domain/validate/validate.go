// Package validate normalizes raw checkpoint observations before any
// store access happens.
package validate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/lapline/internal/domain/model"
	"github.com/okian/lapline/internal/domain/signal"
)

// Raw carries the observation fields exactly as they arrived on the
// wire, before any parsing.
type Raw struct {
	Minor        string
	RSSI         string
	BatteryLevel string
	Temperature  string
	Humidity     string
}

// Validator normalizes a Raw observation or rejects it.
type Validator interface {
	// Normalize parses and range-checks raw fields. It returns
	// ErrInvalidInput for a missing or malformed minor and
	// ErrWeakSignal when an RSSI reading fails the quality check.
	Normalize(ctx context.Context, raw Raw) (model.Observation, error)
}

// InputValidator implements Validator using a signal evaluator for the
// RSSI quality check.
type InputValidator struct {
	evaluator signal.Evaluator
	now       func() time.Time
}

// Option applies a configuration option to the InputValidator.
type Option func(*InputValidator)

// WithEvaluator sets the signal quality evaluator.
func WithEvaluator(e signal.Evaluator) Option {
	return func(v *InputValidator) {
		if e != nil {
			v.evaluator = e
		}
	}
}

// WithClock sets the time source used to stamp observations.
func WithClock(now func() time.Time) Option {
	return func(v *InputValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewInputValidator creates a new validator with configuration options.
func NewInputValidator(opts ...Option) *InputValidator {
	v := &InputValidator{
		evaluator: signal.NewThresholdEvaluator(),
		now:       time.Now,
	}

	// Apply all options
	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Normalize parses and range-checks raw fields. No side effects.
func (v *InputValidator) Normalize(ctx context.Context, raw Raw) (model.Observation, error) {
	minorStr := strings.TrimSpace(raw.Minor)
	if minorStr == "" {
		return model.Observation{}, fmt.Errorf("%w: missing minor", ErrInvalidInput)
	}
	minor, err := strconv.ParseInt(minorStr, 10, 64)
	if err != nil {
		return model.Observation{}, fmt.Errorf("%w: minor must be numeric", ErrInvalidInput)
	}
	if minor <= 0 {
		return model.Observation{}, fmt.Errorf("%w: minor must be positive", ErrInvalidInput)
	}

	obs := model.Observation{
		Minor:      minor,
		ObservedAt: v.now().UTC(),
	}

	if s := strings.TrimSpace(raw.RSSI); s != "" {
		rssi, err := strconv.Atoi(s)
		if err != nil {
			return model.Observation{}, fmt.Errorf("%w: rssi must be an integer", ErrInvalidInput)
		}
		if q := v.evaluator.Evaluate(ctx, rssi); !q.OK {
			return model.Observation{}, fmt.Errorf("%w: %d dBm", ErrWeakSignal, rssi)
		}
		obs.RSSI = &rssi
	}

	if s := strings.TrimSpace(raw.BatteryLevel); s != "" {
		level, err := strconv.Atoi(s)
		if err != nil || level < 0 || level > 100 {
			return model.Observation{}, fmt.Errorf("%w: battery_level must be 0-100", ErrInvalidInput)
		}
		obs.BatteryLevel = &level
	}

	if s := strings.TrimSpace(raw.Temperature); s != "" {
		temp, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Observation{}, fmt.Errorf("%w: temperature must be numeric", ErrInvalidInput)
		}
		obs.Temperature = &temp
	}

	if s := strings.TrimSpace(raw.Humidity); s != "" {
		hum, err := strconv.ParseFloat(s, 64)
		if err != nil || hum < 0 || hum > 100 {
			return model.Observation{}, fmt.Errorf("%w: humidity must be 0-100", ErrInvalidInput)
		}
		obs.Humidity = &hum
	}

	return obs, nil
}

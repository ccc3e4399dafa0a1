// Package signal evaluates beacon signal quality for checkpoint detections.
package signal

import "context"

// Default evaluator configuration constants.
const (
	defaultThresholdDBm = -75 // readings below this are rejected
	defaultVarianceDBm  = 5   // width of the marginal band above the threshold
)

// Quality is the result of evaluating one RSSI reading.
type Quality struct {
	// OK reports whether the reading clears the configured threshold.
	OK bool
	// Marginal is set when the reading clears the threshold but sits
	// inside the variance band, meaning proximity is uncertain.
	Marginal bool
}

// Evaluator classifies RSSI readings against a configured threshold.
type Evaluator interface {
	// Evaluate classifies a single reading in dBm.
	Evaluate(ctx context.Context, rssi int) Quality
}

// ThresholdEvaluator implements Evaluator with a fixed threshold and a
// variance band for marginal readings.
type ThresholdEvaluator struct {
	threshold int
	variance  int
}

// Option applies a configuration option to the ThresholdEvaluator.
type Option func(*ThresholdEvaluator)

// WithThreshold sets the minimum acceptable RSSI in dBm. Values must be
// negative; non-negative values are ignored.
func WithThreshold(dbm int) Option {
	return func(e *ThresholdEvaluator) {
		if dbm < 0 {
			e.threshold = dbm
		}
	}
}

// WithVariance sets the width of the marginal band in dBm.
func WithVariance(dbm int) Option {
	return func(e *ThresholdEvaluator) {
		if dbm >= 0 {
			e.variance = dbm
		}
	}
}

// NewThresholdEvaluator creates a new evaluator with configuration options.
func NewThresholdEvaluator(opts ...Option) *ThresholdEvaluator {
	e := &ThresholdEvaluator{
		threshold: defaultThresholdDBm,
		variance:  defaultVarianceDBm,
	}

	// Apply all options
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Evaluate classifies a single RSSI reading.
func (e *ThresholdEvaluator) Evaluate(_ context.Context, rssi int) Quality {
	if rssi < e.threshold {
		return Quality{}
	}
	return Quality{
		OK:       true,
		Marginal: rssi < e.threshold+e.variance,
	}
}

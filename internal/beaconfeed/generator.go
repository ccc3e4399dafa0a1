package beaconfeed

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/okian/lapline/internal/domain/model"
	"github.com/okian/lapline/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	signalCaseDivisor  = 8
)

// Constants for simulated signal strength ranges (dBm).
const (
	strongSignalMin     = -55
	strongSignalRange   = 10
	typicalSignalMin    = -70
	typicalSignalRange  = 15
	marginalSignalMin   = -80
	marginalSignalRange = 10
	weakSignalMin       = -95
	weakSignalRange     = 15
)

// Constants for sensor value ranges.
const (
	batteryMin       = 20
	batteryRange     = 80
	temperatureMin   = 5.0
	temperatureRange = 30.0
	humidityMin      = 30.0
	humidityRange    = 60.0
)

// Constants for signal strength cases.
const (
	caseStrongSignal   = 0
	caseMarginalSignal = 6
	caseWeakSignal     = 7
)

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// getRandomInt returns a random int in [0, n).
func getRandomInt(n int64) int64 {
	v, _ := rand.Int(rand.Reader, big.NewInt(n))
	return v.Int64()
}

// generateObservations creates the configured number of observations
// spread across the simulated trackers.
func generateObservations(ctx context.Context, config *Config, stats *Stats) ([]model.Observation, error) {
	logger.Get().Info(ctx, "generating observations",
		logger.Int("count", config.NumObservations),
		logger.Int("trackers", config.Trackers))

	observations := make([]model.Observation, config.NumObservations)
	for i := 0; i < config.NumObservations; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		minor := config.FirstMinor + getRandomInt(int64(config.Trackers))
		observations[i] = generateSingleObservation(minor)
	}

	stats.ObservationsGenerated = len(observations)
	logger.Get().Info(ctx, "generated observations successfully", logger.Int("count", len(observations)))

	return observations, nil
}

// generateSingleObservation creates one observation for the given tracker.
func generateSingleObservation(minor int64) model.Observation {
	rssi := generateVariedRSSI()
	battery := batteryMin + int(getRandomInt(batteryRange))
	temperature := temperatureMin + getRandomFloat()*temperatureRange
	humidity := humidityMin + getRandomFloat()*humidityRange

	return model.Observation{
		Minor:        minor,
		RSSI:         &rssi,
		BatteryLevel: &battery,
		Temperature:  &temperature,
		Humidity:     &humidity,
		ObservedAt:   time.Now().UTC(),
	}
}

// generateVariedRSSI creates a signal strength with a distribution
// resembling trackers passing a checkpoint at varying distances.
func generateVariedRSSI() int {
	switch getRandomInt(signalCaseDivisor) {
	case caseStrongSignal:
		// Tracker right at the antenna, rare
		return strongSignalMin + int(getRandomInt(strongSignalRange))
	case caseMarginalSignal:
		// Edge of the detection zone
		return marginalSignalMin + int(getRandomInt(marginalSignalRange))
	case caseWeakSignal:
		// Too far away, should be rejected
		return weakSignalMin + int(getRandomInt(weakSignalRange))
	default:
		// Typical pass, most common
		return typicalSignalMin + int(getRandomInt(typicalSignalRange))
	}
}

package beaconfeed

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/okian/lapline/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "feed_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the beacon feed tool.
func ShowHelp() {
	os.Stdout.WriteString(`Lapline Beacon Feed
===================

Simulates proximity-beacon trackers passing a checkpoint and posts the
observations to a running lapline service.

Usage:
  go run cmd/beacon-feed/main.go [options]

Options:
  -url string
        Base URL of the checkpoint service (default "http://localhost:9080")
  -observations int
        Number of observations to generate and post (default 1000)
  -trackers int
        Number of distinct tracker minors to simulate (default 25)
  -first-minor int
        Minor of the first simulated tracker (default 1000)
  -workers int
        Number of posting workers (default CPU cores * 2)
  -interval duration
        Delay between generated observations (default 50ms)
  -timeout duration
        HTTP request timeout (default 30s)
  -log string
        Log file for feed output (default: feed_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Feed with default settings
  go run cmd/beacon-feed/main.go

  # A fast dense feed against a local checkpoint
  go run cmd/beacon-feed/main.go -observations 5000 -interval 5ms -workers 16

  # Simulate a small race with 10 trackers
  go run cmd/beacon-feed/main.go -trackers 10 -observations 500 -interval 200ms
`)
}

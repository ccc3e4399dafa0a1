package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/lapline/internal/beaconfeed"
)

// Default configuration constants.
const (
	defaultObservations = 1000
	defaultTrackers     = 25
	defaultFirstMinor   = 1000
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultInterval     = 50 * time.Millisecond
	defaultTimeout      = 30 * time.Second
	defaultFeedTimeout  = 10 * time.Minute
)

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:9080", "Base URL of the checkpoint service")
		observations = flag.Int("observations", defaultObservations, "Number of observations to generate and post")
		trackers     = flag.Int("trackers", defaultTrackers, "Number of distinct tracker minors to simulate")
		firstMinor   = flag.Int64("first-minor", defaultFirstMinor, "Minor of the first simulated tracker")
		workers      = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of posting workers")
		interval     = flag.Duration("interval", defaultInterval, "Delay between generated observations")
		timeout      = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile      = flag.String("log", "", "Log file for feed output (default: feed_log_TIMESTAMP.log)")
		verbose      = flag.Bool("verbose", false, "Enable verbose logging")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		beaconfeed.ShowHelp()
		return
	}

	// Setup logging
	if err := beaconfeed.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultFeedTimeout)
	defer cancel()

	// Create feed configuration
	config := &beaconfeed.Config{
		BaseURL:         *baseURL,
		NumObservations: *observations,
		Trackers:        *trackers,
		FirstMinor:      *firstMinor,
		Workers:         *workers,
		Timeout:         *timeout,
		Interval:        *interval,
		LogFile:         *logFile,
		Verbose:         *verbose,
	}

	// Run the feed
	if err := beaconfeed.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Feed failed: " + err.Error() + "\n")
		return
	}
}

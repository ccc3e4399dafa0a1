// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/lapline/internal/domain/types"
	"github.com/okian/lapline/internal/domain/validate"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// ProcessDetection runs one raw observation through the full
	// decision procedure and always yields a well-formed outcome.
	ProcessDetection(ctx context.Context, raw validate.Raw) types.Outcome

	// RunnerStatsByMinor serves the read-only statistics lookup.
	RunnerStatsByMinor(ctx context.Context, minor int64) (types.RunnerInfo, types.StatsInfo, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	detectionsHandler *DetectionsHandler
	runnerHandler     *RunnerStatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		detectionsHandler: NewDetectionsHandler(deps),
		runnerHandler:     NewRunnerStatsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/detections", MetricsMiddleware(s.detectionsHandler.HandlePostDetection, "detections"))
	mux.HandleFunc("/runners/", MetricsMiddleware(s.runnerHandler.HandleGetRunnerStats, "runner_stats"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/lapline/internal/adapters/repository"
	"github.com/okian/lapline/internal/domain/types"
)

// RunnerStatsHandler handles per-runner statistics requests.
type RunnerStatsHandler struct {
	deps Dependencies
}

// NewRunnerStatsHandler creates a new runner stats handler.
func NewRunnerStatsHandler(deps Dependencies) *RunnerStatsHandler {
	return &RunnerStatsHandler{deps: deps}
}

// runnerStatsResponse is the read shape for GET /runners/{minor}/stats.
type runnerStatsResponse struct {
	Runner types.RunnerInfo `json:"runner"`
	Stats  types.StatsInfo  `json:"stats"`
}

// HandleGetRunnerStats handles GET /runners/{minor}/stats requests.
func (h *RunnerStatsHandler) HandleGetRunnerStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_runner_stats"
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrBadRequest))
		return
	}
	// Extract path parameters after /runners/
	rest := strings.TrimPrefix(r.URL.Path, "/runners/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "stats" {
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrNotFound))
		return
	}
	minor, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || minor < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	runner, stats, err := h.deps.RunnerStatsByMinor(r.Context(), minor)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, runnerStatsResponse{Runner: runner, Stats: stats})
}

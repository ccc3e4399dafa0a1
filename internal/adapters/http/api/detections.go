// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"strings"

	"github.com/okian/lapline/internal/domain/types"
	"github.com/okian/lapline/internal/domain/validate"
)

// DetectionsHandler handles incoming proximity observations.
type DetectionsHandler struct {
	deps Dependencies
}

// NewDetectionsHandler creates a new detections handler.
func NewDetectionsHandler(deps Dependencies) *DetectionsHandler {
	return &DetectionsHandler{deps: deps}
}

// HandlePostDetection handles POST /detections requests. The body is
// form-encoded, matching what checkpoint scanners send. Business
// rejections are reported with HTTP 200 and status "error" in the
// body; only internal failures map to 500.
func (h *DetectionsHandler) HandlePostDetection(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_detection"
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrBadRequest))
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	raw := validate.Raw{
		Minor:        strings.TrimSpace(r.PostFormValue("minor")),
		RSSI:         strings.TrimSpace(r.PostFormValue("rssi")),
		BatteryLevel: strings.TrimSpace(r.PostFormValue("battery_level")),
		Temperature:  strings.TrimSpace(r.PostFormValue("temperature")),
		Humidity:     strings.TrimSpace(r.PostFormValue("humidity")),
	}
	if raw.Minor == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	out := h.deps.ProcessDetection(r.Context(), raw)
	status := http.StatusOK
	if out.Status == types.StatusError && out.Context == types.ContextSystemError {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, out)
}

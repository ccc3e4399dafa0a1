package beaconfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/okian/lapline/internal/domain/model"
)

// HTTP status code constants.
const (
	statusOK = 200
)

// HTTPPoster delivers observations to the checkpoint as form-encoded
// POSTs and keeps running outcome counters.
type HTTPPoster struct {
	client  *http.Client
	postURL string

	lapsRecorded atomic.Int64
	debounced    atomic.Int64
	rejected     atomic.Int64
	posted       atomic.Int64
}

// newHTTPPoster creates a poster targeting baseURL with the given timeout.
func newHTTPPoster(baseURL string, timeout time.Duration) *HTTPPoster {
	return &HTTPPoster{
		client:  &http.Client{Timeout: timeout},
		postURL: strings.TrimRight(baseURL, "/") + "/detections",
	}
}

// Post submits one observation. A business rejection is a delivered
// observation, not a transport failure, so it never returns an error.
func (p *HTTPPoster) Post(ctx context.Context, o model.Observation) error {
	form := url.Values{"minor": {strconv.FormatInt(o.Minor, 10)}}
	if o.RSSI != nil {
		form.Set("rssi", strconv.Itoa(*o.RSSI))
	}
	if o.BatteryLevel != nil {
		form.Set("battery_level", strconv.Itoa(*o.BatteryLevel))
	}
	if o.Temperature != nil {
		form.Set("temperature", strconv.FormatFloat(*o.Temperature, 'f', 1, 64))
	}
	if o.Humidity != nil {
		form.Set("humidity", strconv.FormatFloat(*o.Humidity, 'f', 1, 64))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.postURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post observation: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != statusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	p.posted.Add(1)
	var out outcomeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil // delivered; response shape is the service's concern
	}
	switch out.Status {
	case "success":
		p.lapsRecorded.Add(1)
	case "ignored":
		p.debounced.Add(1)
	default:
		p.rejected.Add(1)
	}
	return nil
}

// snapshot copies the poster counters into stats.
func (p *HTTPPoster) snapshot(stats *Stats) {
	stats.ObservationsPosted = int(p.posted.Load())
	stats.LapsRecorded = int(p.lapsRecorded.Load())
	stats.Debounced = int(p.debounced.Load())
	stats.Rejected = int(p.rejected.Load())
}

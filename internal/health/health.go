// Package health exposes liveness and readiness probes over HTTP.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/arkan-dev/backend-mall/internal/common"
)

// Probe pings one dependency within the caller's deadline.
type Probe func(ctx context.Context) error

// Handler serves the probe endpoints. Dependencies is keyed by the name
// reported in the readiness payload.
type Handler struct {
	Dependencies map[string]Probe
	Timeout      time.Duration
}

// Live always reports ok while the process can serve requests.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes every dependency and reports per-dependency status; any
// failing probe turns the response into a 503.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	status := make(map[string]string, len(h.Dependencies))
	healthy := true
	for name, probe := range h.Dependencies {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		err := probe(ctx)
		cancel()
		if err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, status)
}

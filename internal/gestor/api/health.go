package api

import (
	"net/http"
	"time"

	"github.com/nortesoft/gestor/pkg/httpx"
	"github.com/nortesoft/gestor/pkg/slogx"
)

type healthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// handleLivez always answers 200 while the process runs.
func (r *Router) handleLivez(w http.ResponseWriter, req *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Uptime:  time.Since(r.startTime).String(),
		Version: r.buildVersion,
	})
}

// handleReadyz probes every registered dependency and degrades to 503
// when any of them fails.
func (r *Router) handleReadyz(w http.ResponseWriter, req *http.Request) {
	log := slogx.FromContext(req.Context())

	status := "ok"
	code := http.StatusOK
	checks := make(map[string]string, len(r.readiness))

	for _, check := range r.readiness {
		if err := check.Probe(); err != nil {
			log.Warn("readiness probe failed", "check", check.Name, "error", err)
			checks[check.Name] = "error: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[check.Name] = "ok"
	}

	httpx.WriteJSON(w, code, healthResponse{
		Status:  status,
		Uptime:  time.Since(r.startTime).String(),
		Version: r.buildVersion,
		Checks:  checks,
	})
}

package api

import (
	"net/http"
	"time"

	"github.com/nortesoft/gestor/internal/gestor/edge"
	"github.com/nortesoft/gestor/pkg/httpx"
)

// The admin endpoints are reachable only with an administrator role; the
// edge filter enforces that before these handlers run.

type usuarioSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type usuariosResponse struct {
	Usuarios []usuarioSummary `json:"usuarios"`
}

// handleUsuarios lists the directory of known users. The directory
// currently contains only the caller; the upstream user service fills
// this in once its listing endpoint is wired through the proxy.
func (r *Router) handleUsuarios(w http.ResponseWriter, req *http.Request) {
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, usuariosResponse{
		Usuarios: []usuarioSummary{{
			ID:    req.Header.Get(edge.HeaderUserID),
			Email: req.Header.Get(edge.HeaderUserEmail),
			Role:  req.Header.Get(edge.HeaderUserRole),
		}},
	})
}

type resumenResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

func (r *Router) handleResumen(w http.ResponseWriter, req *http.Request) {
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resumenResponse{
		Status:  "ok",
		Uptime:  time.Since(r.startTime).String(),
		Version: r.buildVersion,
	})
}

package api

import (
	"net/http"

	"github.com/nortesoft/gestor/internal/gestor/edge"
	"github.com/nortesoft/gestor/pkg/httpx"
)

type perfilResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
}

// handlePerfil echoes the identity the edge filter asserted for this
// request.
func (r *Router) handlePerfil(w http.ResponseWriter, req *http.Request) {
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, perfilResponse{
		ID:    req.Header.Get(edge.HeaderUserID),
		Email: req.Header.Get(edge.HeaderUserEmail),
		Role:  req.Header.Get(edge.HeaderUserRole),
		Name:  req.Header.Get(edge.HeaderUserName),
	})
}

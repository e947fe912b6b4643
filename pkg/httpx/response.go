// Package httpx carries small HTTP helpers shared by the edge server:
// JSON responses, cache suppression and per-key rate limiting.
package httpx

import (
	"encoding/json"
	"net/http"
)

// Middleware is the standard net/http middleware shape, compatible with
// chi's Use().
type Middleware func(http.Handler) http.Handler

// WriteJSON writes v as a JSON response with the given status code.
// Responses carrying credentials or identity must never be cached, so
// Cache-Control is always set.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

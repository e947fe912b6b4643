package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is a structured error response from the identity provider.
type Error struct {
	// Status is the HTTP status code the provider answered with.
	Status int `json:"-"`

	// Code is the provider's machine-readable error code, e.g.
	// "invalid_grant" or "not_authorized".
	Code string `json:"error"`

	// Description is the provider's human-readable explanation.
	Description string `json:"error_description"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider: %s: %s (status %d)", e.Code, e.Description, e.Status)
}

// rejectionCodes are the provider answers that mean the submitted
// credentials or renewal credential are dead.
var rejectionCodes = map[string]struct{}{
	"invalid_grant":  {},
	"not_authorized": {},
}

// IsRejection reports whether err is a definitive provider rejection: the
// submitted credentials or renewal credential are dead and retrying will
// not help. Only a 400/401 answer carrying a known rejection code
// qualifies. Network failures, timeouts, provider 5xx answers and other
// 4xx statuses (throttling, request timeouts) are NOT rejections;
// callers treat those as transient.
func IsRejection(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	if pe.Status != http.StatusBadRequest && pe.Status != http.StatusUnauthorized {
		return false
	}
	_, ok := rejectionCodes[pe.Code]
	return ok
}

// parseErrorResponse turns a non-200 provider answer into a typed *Error.
// Unparseable bodies still yield a usable error from the status code.
func parseErrorResponse(status int, body []byte) error {
	pe := &Error{Status: status}
	if err := json.Unmarshal(body, pe); err != nil || pe.Code == "" {
		pe.Code = "provider_error"
		pe.Description = fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
	}
	return pe
}

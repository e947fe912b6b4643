// Package tokenx decodes identity credentials and answers liveness
// questions about them. It is a local convenience decoder only: signature
// verification belongs to the identity provider and the resource servers
// that consume the credential.
package tokenx

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Skew constants used contractually across the session core.
const (
	// ValiditySkew is subtracted from the remaining lifetime when deciding
	// whether a credential is currently usable. Absorbs clock drift between
	// us and the issuer.
	ValiditySkew = 60 * time.Second

	// RenewAhead is the look-ahead window for pre-emptive renewal. Wider
	// than ValiditySkew so renewal happens before a request can race the
	// expiry over network latency.
	RenewAhead = 180 * time.Second
)

// ErrMalformed reports a credential that could not be decoded. Callers
// treat it identically to an absent credential.
var ErrMalformed = errors.New("tokenx: malformed credential")

// Role is the dashboard role carried in the custom:role claim.
type Role string

const (
	RoleSuperadmin Role = "SUPERADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleVentas     Role = "VENTAS"

	// RoleUsuario is the least-privileged role, assumed whenever the
	// credential carries no role claim.
	RoleUsuario Role = "USUARIO"
)

// ClaimSet is the decoded payload of an identity credential.
type ClaimSet struct {
	Sub        string           `json:"sub"`
	Email      string           `json:"email"`
	GivenName  string           `json:"given_name"`
	FamilyName string           `json:"family_name"`
	Role       Role             `json:"custom:role"`
	IssuedAt   *jwt.NumericDate `json:"iat,omitempty"`
	ExpiresAt  *jwt.NumericDate `json:"exp,omitempty"`
}

// Decode splits a compact serialized credential, base64url-decodes its
// payload segment and parses the claim set. It never verifies the
// signature. A missing role claim defaults to RoleUsuario.
func Decode(credential string) (*ClaimSet, error) {
	parts := strings.Split(credential, ".")
	if len(parts) < 2 {
		return nil, ErrMalformed
	}

	payload, err := jwt.NewParser().DecodeSegment(parts[1])
	if err != nil {
		return nil, ErrMalformed
	}

	var claims ClaimSet
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrMalformed
	}

	if claims.Role == "" {
		claims.Role = RoleUsuario
	}

	return &claims, nil
}

// DisplayName joins the given and family names for UI and header injection.
func (c *ClaimSet) DisplayName() string {
	return strings.TrimSpace(c.GivenName + " " + c.FamilyName)
}

// Remaining returns the credential lifetime left at now. A claim set
// without an expiry has no usable lifetime.
func (c *ClaimSet) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}

// IsLive reports whether the credential is still valid at now, leaving
// skew as a safety margin. The expiry claim is authoritative: no other
// signal overrides it.
func (c *ClaimSet) IsLive(now time.Time, skew time.Duration) bool {
	return c.Remaining(now) > skew
}

// ShouldRenew reports whether the credential is inside the pre-emptive
// renewal window but not necessarily expired yet.
func (c *ClaimSet) ShouldRenew(now time.Time, ahead time.Duration) bool {
	return c.Remaining(now) <= ahead
}

package edge

import (
	"net/http"
	"strings"

	"github.com/nortesoft/gestor/pkg/credstore"
)

// Source tags name where a credential was found; they feed the debug
// block of 401 answers so misrouted credentials can be diagnosed from
// the response alone.
const (
	SourceAuthorizationHeader = "authorization_header"
	SourceIdentityHeader      = "identity_header"
	SourceCookieJar           = "cookie_jar"
	SourceRawCookieHeader     = "raw_cookie_header"
)

// IdentityHeader mirrors the header the authenticated transport sends.
const IdentityHeader = "X-Identity-Token"

// Extraction is where and what the credential lookup found.
type Extraction struct {
	Credential string
	Source     string
	// Tried lists every source inspected, in order, including the one
	// that hit.
	Tried []string
}

// ExtractCredential walks the source chain in fixed order and stops at
// the first hit: bearer header, identity header, parsed cookies, then a
// manual pass over the raw Cookie header for values the cookie parser
// dropped or that still use the legacy provider naming.
func ExtractCredential(r *http.Request) Extraction {
	var tried []string

	tried = append(tried, SourceAuthorizationHeader)
	if auth := r.Header.Get("Authorization"); auth != "" {
		if cred, ok := strings.CutPrefix(auth, "Bearer "); ok && cred != "" {
			return Extraction{Credential: cred, Source: SourceAuthorizationHeader, Tried: tried}
		}
	}

	tried = append(tried, SourceIdentityHeader)
	if cred := r.Header.Get(IdentityHeader); cred != "" {
		return Extraction{Credential: cred, Source: SourceIdentityHeader, Tried: tried}
	}

	tried = append(tried, SourceCookieJar)
	if c, err := r.Cookie(credstore.CookieIdentity); err == nil && c.Value != "" {
		return Extraction{Credential: c.Value, Source: SourceCookieJar, Tried: tried}
	}

	tried = append(tried, SourceRawCookieHeader)
	if cred := scanRawCookies(r.Header.Get("Cookie")); cred != "" {
		return Extraction{Credential: cred, Source: SourceRawCookieHeader, Tried: tried}
	}

	return Extraction{Tried: tried}
}

// scanRawCookies hand-parses the Cookie header. Browsers and legacy
// clients occasionally send cookie values the strict parser rejects
// (unquoted base64 padding, oversized values), and sessions written by
// the previous stack use the hosted provider's dotted naming.
func scanRawCookies(header string) string {
	for _, part := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"`)
		if value == "" {
			continue
		}
		if name == credstore.CookieIdentity {
			return value
		}
		if strings.HasPrefix(name, credstore.LegacyCookiePrefix+".") && strings.HasSuffix(name, ".idToken") {
			return value
		}
	}
	return ""
}

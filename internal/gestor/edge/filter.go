// Package edge is the request-path authorization filter. Every request
// crosses it before reaching a handler: public routes pass untouched,
// API routes answer JSON errors, and page routes bounce to the login
// entry. Identity is asserted once here and forwarded to handlers as
// trusted headers.
package edge

import (
	"net/http"
	"net/url"
	"time"

	"github.com/nortesoft/gestor/pkg/credstore"
	"github.com/nortesoft/gestor/pkg/httpx"
	"github.com/nortesoft/gestor/pkg/slogx"
	"github.com/nortesoft/gestor/pkg/tokenx"
)

// Headers the filter injects after a successful authorization. Inbound
// copies are always stripped first so clients cannot assert an identity.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
	HeaderUserName  = "X-User-Name"
)

const (
	loginPath     = "/auth/signin"
	callbackParam = "callbackUrl"
)

type errorBody struct {
	Error   string     `json:"error"`
	Message string     `json:"message"`
	Debug   *debugInfo `json:"debug,omitempty"`
}

type debugInfo struct {
	SourcesTried []string `json:"sources_tried"`
}

type Options struct {
	// ValiditySkew widens the expiry check so a credential about to
	// expire mid-request is already treated as dead.
	ValiditySkew time.Duration
}

// Filter returns the authorization middleware.
func Filter(opts Options) httpx.Middleware {
	skew := opts.ValiditySkew
	if skew <= 0 {
		skew = tokenx.ValiditySkew
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stripIdentityHeaders(r)

			policy := Classify(r.URL.Path)
			if policy.Class == RoutePublic {
				next.ServeHTTP(w, r)
				return
			}

			log := slogx.FromContext(r.Context())

			ex := ExtractCredential(r)
			if ex.Credential == "" {
				log.Info("edge: no credential",
					"path", r.URL.Path, "sources_tried", ex.Tried)
				deny(w, r, policy, "no session credential found", ex.Tried)
				return
			}

			claims, err := tokenx.Decode(ex.Credential)
			if err != nil {
				log.Warn("edge: undecodable credential",
					"path", r.URL.Path, "source", ex.Source, "error", err)
				deny(w, r, policy, "the session credential could not be read", ex.Tried)
				return
			}
			if !claims.IsLive(time.Now(), skew) {
				log.Info("edge: expired credential",
					"path", r.URL.Path, "source", ex.Source, "sub", claims.Sub)
				deny(w, r, policy, "the session has expired", ex.Tried)
				return
			}

			if !policy.Allows(claims.Role) {
				log.Info("edge: role denied",
					"path", r.URL.Path, "sub", claims.Sub, "role", claims.Role)
				httpx.WriteJSON(w, http.StatusForbidden, errorBody{
					Error:   "forbidden",
					Message: "this area requires administrator access",
				})
				return
			}

			r.Header.Set(HeaderUserID, claims.Sub)
			r.Header.Set(HeaderUserEmail, claims.Email)
			r.Header.Set(HeaderUserRole, string(claims.Role))
			if name := claims.DisplayName(); name != "" {
				r.Header.Set(HeaderUserName, name)
			}

			if ex.Source == SourceRawCookieHeader {
				normalizeCookie(w, ex.Credential)
			}

			next.ServeHTTP(w, r)
		})
	}
}

func stripIdentityHeaders(r *http.Request) {
	for _, h := range []string{HeaderUserID, HeaderUserEmail, HeaderUserRole, HeaderUserName} {
		r.Header.Del(h)
	}
}

func deny(w http.ResponseWriter, r *http.Request, policy Policy, message string, tried []string) {
	if policy.Class == RouteAPI {
		httpx.WriteJSON(w, http.StatusUnauthorized, errorBody{
			Error:   "unauthorized",
			Message: message,
			Debug:   &debugInfo{SourcesTried: tried},
		})
		return
	}

	q := url.Values{callbackParam: {r.URL.Path}}
	http.Redirect(w, r, loginPath+"?"+q.Encode(), http.StatusFound)
}

// normalizeCookie rewrites a credential recovered from the raw Cookie
// header under the canonical name, so the next request hits the parsed
// cookie path instead.
func normalizeCookie(w http.ResponseWriter, credential string) {
	http.SetCookie(w, &http.Cookie{
		Name:     credstore.CookieIdentity,
		Value:    credential,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

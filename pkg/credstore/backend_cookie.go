package credstore

import (
	"context"
	"net/http"
	"net/url"
)

// Cookie names for the simple one-cookie-per-credential representation.
// The edge filter reads the same names on inbound requests, so the two
// execution contexts agree on the physical representation without sharing
// any runtime state.
const (
	CookieAccess   = "gestor_access"
	CookieIdentity = "gestor_id"
	CookieRenewal  = "gestor_refresh"
)

// CookieBackend stores the triple as one cookie per credential in an
// http.CookieJar scoped to the dashboard origin. Requests built from the
// same jar therefore carry the credentials the edge filter expects.
type CookieBackend struct {
	jar    http.CookieJar
	origin *url.URL
}

// NewCookieBackend wraps jar with cookies scoped to origin (e.g. the
// dashboard base URL).
func NewCookieBackend(jar http.CookieJar, origin *url.URL) *CookieBackend {
	return &CookieBackend{jar: jar, origin: origin}
}

func (c *CookieBackend) Name() string { return "cookie" }

func (c *CookieBackend) Read(ctx context.Context) (*Triple, error) {
	var t Triple
	found := false
	for _, ck := range c.jar.Cookies(c.origin) {
		switch ck.Name {
		case CookieAccess:
			t.Access = ck.Value
			found = true
		case CookieIdentity:
			t.Identity = ck.Value
			found = true
		case CookieRenewal:
			t.Renewal = ck.Value
			found = true
		}
	}
	if !found {
		return nil, nil
	}
	return &t, nil
}

func (c *CookieBackend) Write(ctx context.Context, t Triple) error {
	c.jar.SetCookies(c.origin, []*http.Cookie{
		{Name: CookieAccess, Value: t.Access, Path: "/"},
		{Name: CookieIdentity, Value: t.Identity, Path: "/"},
		{Name: CookieRenewal, Value: t.Renewal, Path: "/"},
	})
	return nil
}

func (c *CookieBackend) Clear(ctx context.Context) error {
	expired := make([]*http.Cookie, 0, 3)
	for _, name := range []string{CookieAccess, CookieIdentity, CookieRenewal} {
		expired = append(expired, &http.Cookie{Name: name, Path: "/", MaxAge: -1})
	}
	c.jar.SetCookies(c.origin, expired)
	return nil
}

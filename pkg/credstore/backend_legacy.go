package credstore

import (
	"context"
	"net/http"
	"net/url"

	"github.com/nortesoft/gestor/pkg/tokenx"
)

// LegacyCookiePrefix is the cookie naming prefix the hosted identity
// provider's own JavaScript SDK uses. Sessions established through that
// SDK surface only under this convention, so it stays supported as a
// fallback representation even though no first-party code writes it
// preferentially anymore.
const LegacyCookiePrefix = "IdentityServiceProvider"

// LegacyCookieBackend reads and writes the provider-compatible cookie
// convention: <prefix>.<clientID>.LastAuthUser plus
// <prefix>.<clientID>.<user>.{accessToken,idToken,refreshToken}.
type LegacyCookieBackend struct {
	jar      http.CookieJar
	origin   *url.URL
	clientID string
	prefix   string
}

func NewLegacyCookieBackend(jar http.CookieJar, origin *url.URL, clientID string) *LegacyCookieBackend {
	return &LegacyCookieBackend{
		jar:      jar,
		origin:   origin,
		clientID: clientID,
		prefix:   LegacyCookiePrefix,
	}
}

func (l *LegacyCookieBackend) Name() string { return "legacy-cookie" }

func (l *LegacyCookieBackend) base() string { return l.prefix + "." + l.clientID + "." }

func (l *LegacyCookieBackend) Read(ctx context.Context) (*Triple, error) {
	cookies := map[string]string{}
	for _, ck := range l.jar.Cookies(l.origin) {
		cookies[ck.Name] = ck.Value
	}

	user := cookies[l.base()+"LastAuthUser"]
	if user == "" {
		return nil, nil
	}

	userBase := l.base() + user + "."
	t := Triple{
		Access:   cookies[userBase+"accessToken"],
		Identity: cookies[userBase+"idToken"],
		Renewal:  cookies[userBase+"refreshToken"],
	}
	if t == (Triple{}) {
		return nil, nil
	}
	return &t, nil
}

func (l *LegacyCookieBackend) Write(ctx context.Context, t Triple) error {
	claims, err := tokenx.Decode(t.Identity)
	if err != nil {
		// Without a subject there is no place to hang the per-user
		// cookies; skip rather than invent a name the provider SDK
		// would never look up.
		return err
	}

	userBase := l.base() + claims.Sub + "."
	l.jar.SetCookies(l.origin, []*http.Cookie{
		{Name: l.base() + "LastAuthUser", Value: claims.Sub, Path: "/"},
		{Name: userBase + "accessToken", Value: t.Access, Path: "/"},
		{Name: userBase + "idToken", Value: t.Identity, Path: "/"},
		{Name: userBase + "refreshToken", Value: t.Renewal, Path: "/"},
	})
	return nil
}

func (l *LegacyCookieBackend) Clear(ctx context.Context) error {
	var expired []*http.Cookie
	for _, ck := range l.jar.Cookies(l.origin) {
		if len(ck.Name) >= len(l.base()) && ck.Name[:len(l.base())] == l.base() {
			expired = append(expired, &http.Cookie{Name: ck.Name, Path: "/", MaxAge: -1})
		}
	}
	if len(expired) > 0 {
		l.jar.SetCookies(l.origin, expired)
	}
	return nil
}

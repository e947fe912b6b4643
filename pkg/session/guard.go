package session

import (
	"net/url"
	"strings"
)

// Client-side navigation policy. The edge filter enforces its own copy of
// the route table server-side; this one only decides page navigation for
// an already-resolved session state.
const (
	LoginPath      = "/auth/signin"
	DefaultLanding = "/dashboard"
	CallbackParam  = "callbackUrl"
)

// GuardDecision says whether to render the requested page or navigate
// elsewhere first.
type GuardDecision struct {
	Allow      bool
	RedirectTo string
}

type Guard struct {
	publicExact    map[string]struct{}
	publicPrefixes []string
}

func NewGuard() *Guard {
	return &Guard{
		publicExact: map[string]struct{}{
			"/":            {},
			LoginPath:      {},
			"/favicon.ico": {},
		},
		publicPrefixes: []string{"/auth/"},
	}
}

func (g *Guard) isPublic(path string) bool {
	if _, ok := g.publicExact[path]; ok {
		return true
	}
	for _, p := range g.publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Decide maps (destination, authenticated) to a navigation outcome:
// public pages pass through, protected pages bounce unauthenticated
// users to the login entry carrying the original destination, and an
// authenticated user landing on the login entry is sent on to their
// callback or the default landing page.
func (g *Guard) Decide(dest *url.URL, authenticated bool) GuardDecision {
	path := dest.Path

	if authenticated && path == LoginPath {
		target := dest.Query().Get(CallbackParam)
		if target == "" || target[0] != '/' {
			target = DefaultLanding
		}
		return GuardDecision{RedirectTo: target}
	}

	if g.isPublic(path) {
		return GuardDecision{Allow: true}
	}

	if !authenticated {
		q := url.Values{CallbackParam: {path}}
		return GuardDecision{RedirectTo: LoginPath + "?" + q.Encode()}
	}

	return GuardDecision{Allow: true}
}

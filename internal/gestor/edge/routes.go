package edge

import (
	"strings"

	"github.com/nortesoft/gestor/pkg/tokenx"
)

// RouteClass partitions the URL space the filter fronts. API routes get
// JSON error answers; pages get login redirects.
type RouteClass int

const (
	RoutePublic RouteClass = iota
	RouteAPI
	RoutePage
)

// Policy is the authorization requirement a route resolves to.
type Policy struct {
	Class RouteClass
	// Roles, when non-empty, restricts the route to those roles. Empty
	// with a non-public class means any authenticated identity.
	Roles []tokenx.Role
}

var adminOnly = []tokenx.Role{tokenx.RoleAdmin, tokenx.RoleSuperadmin}

var publicExact = map[string]struct{}{
	"/":            {},
	"/favicon.ico": {},
	"/livez":       {},
	"/readyz":      {},
}

// Classify resolves a request path to its policy. Resolution order is
// public exact, public prefix, role-restricted API prefixes, generic
// API, page.
func Classify(path string) Policy {
	if _, ok := publicExact[path]; ok {
		return Policy{Class: RoutePublic}
	}
	if strings.HasPrefix(path, "/auth/") {
		return Policy{Class: RoutePublic}
	}

	if matchesAPIPrefix(path, "/api/usuarios") || matchesAPIPrefix(path, "/api/admin") {
		return Policy{Class: RouteAPI, Roles: adminOnly}
	}
	if strings.HasPrefix(path, "/api/") {
		return Policy{Class: RouteAPI}
	}

	return Policy{Class: RoutePage}
}

// matchesAPIPrefix matches the prefix as a path segment boundary, so
// /api/usuarios and /api/usuarios/42 match but /api/usuariosx does not.
func matchesAPIPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	return rest == "" || rest[0] == '/'
}

// Allows reports whether a role satisfies the policy.
func (p Policy) Allows(role tokenx.Role) bool {
	if len(p.Roles) == 0 {
		return true
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

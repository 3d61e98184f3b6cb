// Package guard decides whether the current principal may view a page.
package guard

import (
	"regexp"
	"strings"

	"github.com/canteen-coders/canteen-client/internal/session"
	"github.com/canteen-coders/canteen-client/pkg/enums"
)

// Decision is the outcome of a navigation check.
type Decision int

const (
	// Pending means the session has not resolved yet; render a loading view.
	Pending Decision = iota
	Allow
	// Deny renders as not found.
	Deny
	// Redirect sends the client to LoginPath.
	Redirect
)

const LoginPath = "/login"

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

var shopMenuRe = regexp.MustCompile(`^/shop/[^/]+/menu$`)

var (
	customerPaths = pathSet("/", "/shops", "/order-history", "/cart")
	vendorPaths   = pathSet("/vendor/dashboard", "/vendor/orders", "/vendor/shop-management", "/")
	adminPaths    = pathSet("/admin/dashboard", "/admin/management", "/admin/ledger", "/")
)

// SessionView is the part of the session store the guard reads.
type SessionView interface {
	Pending() bool
	Principal() *session.Principal
}

// Guard evaluates navigation requests against the session.
type Guard struct {
	session SessionView
}

func New(s SessionView) *Guard {
	return &Guard{session: s}
}

// Check applies the role policy to path.
func (g *Guard) Check(path string) Decision {
	if g.session.Pending() {
		return Pending
	}
	return Evaluate(g.session.Principal(), path)
}

// RequireSession is Check for pages that need any principal. An anonymous
// client is redirected to the login page instead of being denied.
func (g *Guard) RequireSession(path string) Decision {
	if g.session.Pending() {
		return Pending
	}
	p := g.session.Principal()
	if p == nil {
		return Redirect
	}
	return Evaluate(p, path)
}

// Evaluate is the policy for a resolved session.
func Evaluate(p *session.Principal, path string) Decision {
	path = NormalizePath(path)
	if p == nil {
		// Raw prefix match: "/vendorx" is restricted too.
		if strings.HasPrefix(path, "/vendor") || strings.HasPrefix(path, "/admin") {
			return Deny
		}
		return Allow
	}

	switch p.Role {
	case enums.RoleCustomer:
		if customerPaths[path] || shopMenuRe.MatchString(path) {
			return Allow
		}
	case enums.RoleVendor:
		if vendorPaths[path] {
			return Allow
		}
	case enums.RoleAdmin:
		if adminPaths[path] {
			return Allow
		}
	}
	return Deny
}

// NormalizePath strips a trailing slash except on the root.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}

func pathSet(paths ...string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return set
}

// LandingPath is where a fresh login goes. Customers return to from unless
// it is empty or the login page itself.
func LandingPath(role enums.Role, from string) string {
	switch role {
	case enums.RoleAdmin:
		return "/admin/dashboard"
	case enums.RoleVendor:
		return "/vendor/dashboard"
	case enums.RoleCustomer:
		from = NormalizePath(from)
		if from == "/" || from == LoginPath {
			return "/shops"
		}
		if Evaluate(&session.Principal{Role: role}, from) != Allow {
			return "/shops"
		}
		return from
	}
	return "/"
}

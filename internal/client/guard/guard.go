// Package guard decides whether navigation to a client route is allowed
// for the current session, redirecting anonymous users to the login
// screen with a return URL so they land back where they were headed.
package guard

import (
	"net/url"
	"strings"
)

// SessionChecker is the slice of the session the guard needs.
type SessionChecker interface {
	IsAuthenticated() bool
}

// Route declares the protection level of a client route prefix.
type Route struct {
	// Prefix is matched against the path segment-wise: "/inventory"
	// covers "/inventory" and "/inventory/...", not "/inventoryx".
	Prefix string

	// RequiresAuth marks the route as reachable only with a live session.
	RequiresAuth bool
}

// Decision is the outcome of a guard check.
type Decision struct {
	// Allow reports whether navigation may proceed.
	Allow bool

	// RedirectTo is the path to navigate to instead, set when Allow is
	// false. It carries the original target in the returnUrl parameter.
	RedirectTo string
}

// Guard evaluates navigation against a routing table.
type Guard struct {
	session   SessionChecker
	routes    []Route
	loginPath string
}

// DefaultLoginPath is where anonymous users are sent.
const DefaultLoginPath = "/login"

// New creates a guard over the given routing table. Longer prefixes win
// when several match, so "/inventory/admin" can be protected while
// "/inventory" stays public. Unlisted routes are public.
func New(session SessionChecker, routes []Route, loginPath string) *Guard {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	return &Guard{
		session:   session,
		routes:    routes,
		loginPath: loginPath,
	}
}

// CanEnter checks whether the current session may navigate to target.
// The target is the full client path including any query string; on
// redirect it is preserved, encoded, in returnUrl.
func (g *Guard) CanEnter(target string) Decision {
	route := g.match(pathOnly(target))
	if route == nil || !route.RequiresAuth {
		return Decision{Allow: true}
	}

	if g.session.IsAuthenticated() {
		return Decision{Allow: true}
	}

	return Decision{
		Allow:      false,
		RedirectTo: g.loginPath + "?returnUrl=" + url.QueryEscape(target),
	}
}

// match returns the longest-prefix route covering the path, or nil.
func (g *Guard) match(path string) *Route {
	var best *Route
	for i := range g.routes {
		route := &g.routes[i]
		if !prefixCovers(route.Prefix, path) {
			continue
		}
		if best == nil || len(route.Prefix) > len(best.Prefix) {
			best = route
		}
	}
	return best
}

// prefixCovers reports whether prefix matches path on a segment boundary.
func prefixCovers(prefix, path string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// pathOnly strips the query string and fragment so matching only sees
// the path.
func pathOnly(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		return target[:i]
	}
	return target
}

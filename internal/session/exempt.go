package session

import (
	"net/url"
	"strings"
)

// Exemptions classifies request targets that are excluded from the refresh
// protocol: a 401 on one of these routes is propagated unchanged and never
// triggers a refresh. The login, registration, and refresh exchanges belong
// here; refreshing on their own failures would recurse.
//
// Matching is by URL path so the set stays valid across hosts and schemes.
// The zero value exempts nothing.
type Exemptions struct {
	paths map[string]struct{}
}

// NewExemptions builds an exemption set from route paths. Full URLs are
// accepted and reduced to their path.
func NewExemptions(routes ...string) *Exemptions {
	paths := make(map[string]struct{}, len(routes))
	for _, route := range routes {
		if route == "" {
			continue
		}
		if u, err := url.Parse(route); err == nil && u.Scheme != "" {
			route = u.Path
		}
		paths[normalizePath(route)] = struct{}{}
	}
	return &Exemptions{paths: paths}
}

// Match reports whether the target URL is exempt.
func (e *Exemptions) Match(u *url.URL) bool {
	if e == nil || u == nil {
		return false
	}
	_, ok := e.paths[normalizePath(u.Path)]
	return ok
}

// normalizePath makes matching insensitive to trailing slashes and a
// missing leading slash.
func normalizePath(p string) string {
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

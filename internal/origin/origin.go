// Package origin holds the browser origin allow-list shared by the upload
// pipeline and the HTTP middleware.
package origin

import "strings"

// AllowList is a set of exact origins such as "https://app.example.com".
// A "*" entry allows every origin.
type AllowList struct {
	origins map[string]bool
	any     bool
}

// NewAllowList builds an allow-list. Entries are compared without a trailing
// slash and case-insensitively.
func NewAllowList(origins []string) *AllowList {
	l := &AllowList{origins: make(map[string]bool, len(origins))}
	for _, o := range origins {
		o = normalize(o)
		if o == "*" {
			l.any = true
			continue
		}
		if o != "" {
			l.origins[o] = true
		}
	}
	return l
}

// Allowed reports whether a request carrying the Origin header value may
// proceed. An absent origin is always allowed: non-browser and same-origin
// callers do not send one.
func (l *AllowList) Allowed(origin string) bool {
	if origin == "" {
		return true
	}
	return l.any || l.origins[normalize(origin)]
}

// Origins returns the configured origins.
func (l *AllowList) Origins() []string {
	out := make([]string, 0, len(l.origins))
	for o := range l.origins {
		out = append(out, o)
	}
	return out
}

// AllowsAny reports whether the list contains the wildcard.
func (l *AllowList) AllowsAny() bool {
	return l.any
}

func normalize(o string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
}

package httpmw

import (
	"net/http"
	"strings"
)

// PathPrefix applies mw only to requests whose path is prefix or lies under it.
// Matching is case-insensitive so /API/... cannot be used to step around a
// stage mounted on /api.
func PathPrefix(prefix string, mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	prefix = strings.TrimRight(prefix, "/")
	return func(next http.Handler) http.Handler {
		if mw == nil {
			return next
		}
		scoped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if HasPathPrefix(r.URL.Path, prefix) {
				scoped.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HasPathPrefix reports whether p equals prefix or continues it with a '/'.
// "/apiary" is not under "/api".
func HasPathPrefix(p, prefix string) bool {
	if prefix == "" {
		return true
	}
	if len(p) < len(prefix) || !strings.EqualFold(p[:len(prefix)], prefix) {
		return false
	}
	return len(p) == len(prefix) || p[len(prefix)] == '/'
}

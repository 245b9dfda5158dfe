package httpmw

import (
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strict strips every element, drops script/style contents and escapes what
// remains. Policies are safe for concurrent use once built.
var strict = bluemonday.StrictPolicy()

// CleanXSS neutralizes markup in s. Strings without angle brackets are
// returned unchanged so ordinary text keeps its quotes and ampersands.
func CleanXSS(s string) (string, bool) {
	if !strings.ContainsAny(s, "<>") {
		return s, false
	}
	return strict.Sanitize(s), true
}

// XSSClean filters markup out of every string in the JSON payload and every
// query parameter value. onClean, if set, is called per rewritten value with
// source "body" or "query".
func XSSClean(onClean func(source string)) func(http.Handler) http.Handler {
	report := func(source string) {
		if onClean != nil {
			onClean(source)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, ok := PayloadFromContext(r.Context()); ok {
				p.Value = cleanStrings(p.Value, func() { report("body") })
			}

			if r.URL.RawQuery != "" {
				q := r.URL.Query()
				changed := false
				for _, vals := range q {
					for i, v := range vals {
						if c, ok := CleanXSS(v); ok {
							vals[i] = c
							changed = true
							report("query")
						}
					}
				}
				if changed {
					r = withQuery(r, q)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func cleanStrings(v any, cleaned func()) any {
	switch t := v.(type) {
	case string:
		c, ok := CleanXSS(t)
		if ok {
			cleaned()
		}
		return c
	case map[string]any:
		for k, child := range t {
			t[k] = cleanStrings(child, cleaned)
		}
		return t
	case []any:
		for i := range t {
			t[i] = cleanStrings(t[i], cleaned)
		}
		return t
	default:
		return v
	}
}

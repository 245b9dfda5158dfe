package httpmw

import (
	"net/http"
	"net/url"
	"strings"
)

// SanitizeOptions configures query-operator sanitization.
type SanitizeOptions struct {
	// ReplaceWith, when set, rewrites a leading '$' and every '.' in offending
	// keys instead of dropping the key. Values containing '$' or '.' are
	// ignored and keys are dropped.
	ReplaceWith string
	// OnSanitize is called once per removed or rewritten key. source is
	// "body" or "query".
	OnSanitize func(source, key string)
}

// MongoSanitize strips keys that a document store would interpret as query
// operators or field paths: any key starting with '$' or containing '.'. It
// walks the JSON payload recursively (objects nested in arrays included) and
// every query parameter name, treating each bracketed segment of a name like
// "user[$ne]" as a key of its own.
func MongoSanitize(opts SanitizeOptions) func(http.Handler) http.Handler {
	replace := opts.ReplaceWith
	if strings.ContainsAny(replace, "$.") {
		replace = ""
	}
	report := func(source string) func(string) {
		return func(key string) {
			if opts.OnSanitize != nil {
				opts.OnSanitize(source, key)
			}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, ok := PayloadFromContext(r.Context()); ok {
				p.Value = sanitizeKeys(p.Value, replace, report("body"))
			}

			if r.URL.RawQuery != "" {
				if q, changed := sanitizeQuery(r.URL.Query(), replace, report("query")); changed {
					r = withQuery(r, q)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IsOperatorKey reports whether a document key would be unsafe to hand to a
// document store verbatim.
func IsOperatorKey(k string) bool {
	return strings.HasPrefix(k, "$") || strings.Contains(k, ".")
}

func replaceOperatorChars(k, replace string) string {
	if strings.HasPrefix(k, "$") {
		k = replace + k[1:]
	}
	return strings.ReplaceAll(k, ".", replace)
}

func sanitizeKeys(v any, replace string, report func(string)) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if IsOperatorKey(k) {
				delete(t, k)
				report(k)
				if replace == "" {
					continue
				}
				k = replaceOperatorChars(k, replace)
			}
			t[k] = sanitizeKeys(child, replace, report)
		}
		return t
	case []any:
		for i := range t {
			t[i] = sanitizeKeys(t[i], replace, report)
		}
		return t
	default:
		return v
	}
}

func sanitizeQuery(q url.Values, replace string, report func(string)) (url.Values, bool) {
	changed := false
	for key, vals := range q {
		segs := querySegments(key)
		bad := false
		for _, s := range segs {
			if IsOperatorKey(s) {
				bad = true
				break
			}
		}
		if !bad {
			continue
		}
		changed = true
		delete(q, key)
		report(key)
		if replace == "" {
			continue
		}
		for i, s := range segs {
			segs[i] = replaceOperatorChars(s, replace)
		}
		q[joinQuerySegments(segs)] = vals
	}
	return q, changed
}

// querySegments splits "a[b][c]" into ["a", "b", "c"] and "[b]" into
// ["", "b"]. Unbalanced brackets leave the remainder as one segment.
func querySegments(key string) []string {
	i := strings.IndexByte(key, '[')
	if i < 0 {
		return []string{key}
	}
	segs := []string{key[:i]}
	rest := key[i:]
	for strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			break
		}
		segs = append(segs, rest[1:end])
		rest = rest[end+1:]
	}
	if rest != "" {
		segs[len(segs)-1] += rest
	}
	return segs
}

func joinQuerySegments(segs []string) string {
	var b strings.Builder
	b.WriteString(segs[0])
	for _, s := range segs[1:] {
		b.WriteByte('[')
		b.WriteString(s)
		b.WriteByte(']')
	}
	return b.String()
}

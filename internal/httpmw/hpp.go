package httpmw

import (
	"context"
	"net/http"
	"net/url"
)

// HPPOptions configures parameter-pollution guarding.
type HPPOptions struct {
	// Whitelist names query parameters that may legitimately repeat.
	Whitelist []string
	// OnPolluted is called once per collapsed parameter.
	OnPolluted func(key string)
}

type pollutedKey struct{}

// PollutedQueryFromContext returns the original values of every parameter HPP
// collapsed, keyed by parameter name.
func PollutedQueryFromContext(ctx context.Context) url.Values {
	v, _ := ctx.Value(pollutedKey{}).(url.Values)
	return v
}

// HPP collapses query parameters supplied more than once to their last value,
// so handlers always observe a single scalar. Whitelisted parameters keep all
// their values.
func HPP(opts HPPOptions) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(opts.Whitelist))
	for _, k := range opts.Whitelist {
		allowed[k] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery == "" {
				next.ServeHTTP(w, r)
				return
			}

			q := r.URL.Query()
			var polluted url.Values
			for key, vals := range q {
				if len(vals) < 2 {
					continue
				}
				if _, ok := allowed[key]; ok {
					continue
				}
				if polluted == nil {
					polluted = url.Values{}
				}
				polluted[key] = vals
				q[key] = []string{vals[len(vals)-1]}
				if opts.OnPolluted != nil {
					opts.OnPolluted(key)
				}
			}

			if polluted != nil {
				r = withQuery(r, q)
				r = r.WithContext(context.WithValue(r.Context(), pollutedKey{}, polluted))
			}

			next.ServeHTTP(w, r)
		})
	}
}

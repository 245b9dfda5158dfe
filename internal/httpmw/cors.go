package httpmw

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSOptions configures cross-origin handling. The zero value allows any origin.
type CORSOptions struct {
	// AllowedOrigins defaults to "*".
	AllowedOrigins []string
	// MaxAge is the preflight cache lifetime in seconds, 0 leaves it to the browser.
	MaxAge int
}

// CORS returns the cross-origin stage. Preflight requests are answered here
// with a 2xx and never reach route dispatch.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPut,
			http.MethodPatch,
			http.MethodPost,
			http.MethodDelete,
		},
		AllowedHeaders:     []string{"*"},
		ExposedHeaders:     []string{"X-Request-Id", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials:   false,
		MaxAge:             opts.MaxAge,
		OptionsPassthrough: false,
	})
}

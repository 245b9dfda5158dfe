package httpmw

import (
	"fmt"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-api/internal/apperr"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
)

// Recover turns a handler panic into a logged error and a 500 response.
// onPanic (optional) is called per recovered panic, onErr (optional) renders
// the response; without it a plain http.Error is written.
func Recover(L log.Logger, onPanic func(), onErr apperr.ErrorFunc) func(http.Handler) http.Handler {
	if L == nil {
		L = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// net/http uses this sentinel to abort a response silently
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				var err error
				switch v := rec.(type) {
				case error:
					err = fmt.Errorf("panic: %w", v)
				default:
					err = fmt.Errorf("panic: %v", v)
				}

				ctx := r.Context()
				L.With(
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
					"request_id", RequestIDFromContext(ctx),
				).Error(ctx, err, "httpserver panic recovered")

				if onPanic != nil {
					onPanic()
				}

				if onErr != nil {
					onErr(w, r, err)
					return
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/linnemanlabs-api/internal/apperr"
	"github.com/keithlinneman/linnemanlabs-api/internal/health"
	"github.com/keithlinneman/linnemanlabs-api/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/ratelimit"
	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

// Pipeline constants. These are fixed, not configuration.
const (
	RateLimitPrefix = "/api"
	RateLimitMax    = ratelimit.DefaultMax
	RateLimitWindow = ratelimit.DefaultWindow
	BodyLimit       = 15 << 10 // 15 KB
	UsersPath       = "/api/v1/users"
)

const (
	healthyPath = "/-/healthy"
	readyPath   = "/-/ready"
)

// NewHandler builds the request pipeline.
// main() owns *http.Server so it can do graceful shutdown
func NewHandler(opts *Options) http.Handler {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}
	errs := opts.Errors
	if errs == nil {
		errs = apperr.NewHandler(apperr.HandlerOptions{
			Development: opts.Development,
			Logger:      L,
			RequestID:   httpmw.RequestIDFromContext,
		})
	}

	r := chi.NewRouter()

	r.Use(middleware.Compress(5, "application/json", "text/plain"))
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())

	// pipeline stages, in order
	r.Use(
		httpmw.CORS(opts.CORS),
		httpmw.SecurityHeaders,
		httpmw.PathPrefix(RateLimitPrefix, opts.RateLimitMW),
		httpmw.JSONBody(BodyLimit, errs.ServeError),
		httpmw.MongoSanitize(httpmw.SanitizeOptions{
			OnSanitize: func(source, _ string) {
				if opts.OnSanitize != nil {
					opts.OnSanitize("operator", source)
				}
			},
		}),
		httpmw.XSSClean(func(source string) {
			if opts.OnSanitize != nil {
				opts.OnSanitize("xss", source)
			}
		}),
		httpmw.HPP(httpmw.HPPOptions{
			Whitelist:  opts.HPPWhitelist,
			OnPolluted: opts.OnPolluted,
		}),
	)

	// set before mounting so sub-routers inherit them
	undefinedRoute := func(w http.ResponseWriter, r *http.Request) {
		errs.ServeError(w, r, apperr.NotFound())
	}
	r.NotFound(undefinedRoute)
	r.MethodNotAllowed(undefinedRoute)

	if opts.Health != nil {
		r.Get(healthyPath, health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get(readyPath, health.ReadyzHandler(opts.Readiness))
	}

	if opts.Users != nil {
		r.Route(UsersPath, opts.Users.RegisterRoutes)
	}

	// Middleware (outermost first in wrapping order)
	var h http.Handler = r

	// Request-scoped logging (inner so it sees trace_id, etc)
	h = httpmw.WithLogger(L)(h)

	if opts.MetricsMW != nil {
		h = opts.MetricsMW(h)
	}

	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)

	h = otelhttp.NewHandler(
		h,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			// health checks are polled constantly
			return r.URL.Path != healthyPath && r.URL.Path != readyPath
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateHTTPRoute renames the span to the route pattern
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
	)

	// before the rate limiter and logging so both see the resolved address
	h = httpmw.ClientIPWithOptions(opts.ClientIPOpts)(h)

	if opts.UseRecoverMW {
		h = httpmw.Recover(L, opts.OnPanic, errs.ServeError)(h)
	}

	// outermost so panics and 500s carry the id too
	h = httpmw.RequestID("X-Request-Id")(h)

	return h
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start the public HTTP server.
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)

	if opts.Errors == nil {
		opts.Errors = apperr.NewHandler(apperr.HandlerOptions{
			Development: opts.Development,
			Logger:      opts.Logger,
			RequestID:   httpmw.RequestIDFromContext,
		})
	}
	if opts.RateLimitMW == nil {
		limiter := ratelimit.New(ctx,
			ratelimit.WithLimit(RateLimitMax, RateLimitWindow),
			ratelimit.WithOnError(opts.Errors.ServeError),
		)
		opts.RateLimitMW = limiter.Middleware
	}

	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.EnsureTrace(err)
	}

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}

package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-api/internal/apperr"
	"github.com/keithlinneman/linnemanlabs-api/internal/health"
	"github.com/keithlinneman/linnemanlabs-api/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
)

// RouteRegistrar attaches a route table to a router. users.API implements it.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	ClientIPOpts httpmw.ClientIPOptions
	MetricsMW    func(http.Handler) http.Handler
	Health       health.Checker
	Readiness    health.Checker

	// Errors is the terminal error handler. When nil one is built from
	// Logger and Development.
	Errors      *apperr.Handler
	Development bool

	CORS httpmw.CORSOptions
	// RateLimitMW is mounted on /api only. Start builds the default
	// 150 per hour limiter when it is nil; NewHandler leaves it out.
	RateLimitMW func(http.Handler) http.Handler
	// Users is mounted at /api/v1/users.
	Users RouteRegistrar

	HPPWhitelist []string
	// OnSanitize is called per stripped or cleaned value. kind is "operator" or "xss".
	OnSanitize func(kind, source string)
	OnPolluted func(key string)
}

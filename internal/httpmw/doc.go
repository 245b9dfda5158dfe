// Package httpmw provides the HTTP middleware that make up the API request
// pipeline.
//
// The pipeline stages run in a fixed order, assembled in httpserver.NewHandler:
// CORS, security headers, rate limiting (under /api only), JSON body parsing,
// query-operator sanitization, XSS filtering and parameter-pollution guarding,
// followed by chi route dispatch. Request ID, client IP, recovery, tracing,
// metrics and logging wrap the stages.
//
// Stages that reject a request never write a response themselves: they build
// an *apperr.Error and hand it to the terminal error handler they were
// constructed with, so every failure is rendered in one place.
//
// User-supplied data (bodies, user-agent, most headers) is intentionally
// excluded from logs to prevent PII leaks and log injection.
package httpmw

package opshttp

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-api/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Checker
	Readiness   health.Checker
	// OnPanic is called for every recovered panic, e.g. to bump a counter
	OnPanic func()
}

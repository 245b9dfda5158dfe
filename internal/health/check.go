package health

import (
	"context"
	"sync"

	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

// Checker is evaluated at request time. A nil error means healthy, anything
// else is the reason it is not.
type Checker interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Checker.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed returns a check that always passes, or always fails with reason.
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	err := xerrors.New(reason)
	return func(context.Context) error { return err }
}

// All passes only if every check passes and reports the first failure.
// nil checks are skipped.
func All(ps ...Checker) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Any passes if at least one check passes, otherwise it reports the last
// failure. With no checks at all it fails.
func Any(ps ...Checker) CheckFunc {
	return func(ctx context.Context) error {
		var last error
		for _, p := range ps {
			if p == nil {
				continue
			}
			err := p.Check(ctx)
			if err == nil {
				return nil
			}
			last = err
		}
		if last == nil {
			return xerrors.New("no healthy checks")
		}
		return last
	}
}

// ShutdownGate flips readiness to failing once shutdown starts.
// The zero value is open.
type ShutdownGate struct {
	mu       sync.RWMutex
	draining bool
	reason   string
}

// Set closes the gate. An empty reason reads as "draining".
func (g *ShutdownGate) Set(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.mu.Lock()
	g.draining, g.reason = true, reason
	g.mu.Unlock()
}

// Clear reopens the gate.
func (g *ShutdownGate) Clear() {
	g.mu.Lock()
	g.draining, g.reason = false, ""
	g.mu.Unlock()
}

// Draining reports whether the gate is closed.
func (g *ShutdownGate) Draining() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.draining
}

func (g *ShutdownGate) Checker() CheckFunc {
	return func(context.Context) error {
		g.mu.RLock()
		defer g.mu.RUnlock()
		if !g.draining {
			return nil
		}
		return xerrors.New(g.reason)
	}
}

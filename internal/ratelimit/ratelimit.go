// Package ratelimit caps how many requests one client IP may make per
// window.
//
// # Simple in-memory implementation, not shared between instances
//
// Each client gets a fixed window that opens on its first request. Requests
// up to the limit pass; every further request in the same window is rejected
// with 429 until the window expires. Counters live in one mutex-guarded map
// and a background goroutine evicts expired windows.
//
// What this does NOT protect against:
//   - distributed attacks across many ips
//   - bandwidth-bill attacks, the request is already accepted by the time this runs
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/linnemanlabs-api/internal/apperr"
	"github.com/keithlinneman/linnemanlabs-api/internal/httpmw"
)

// Defaults match the public API policy: 150 requests per client per hour.
const (
	DefaultMax         = 150
	DefaultWindow      = time.Hour
	DefaultMaxVisitors = 100_000
)

// window tracks one client's counter for the current window
type window struct {
	count   int
	resetAt time.Time
	// logged tracks whether we have already emitted the first-denial hook for this window
	logged bool
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// AtCapacity is set when the client was refused because the visitor table is full.
	AtCapacity bool
}

// IPLimiter holds per-IP fixed windows with background eviction
type IPLimiter struct {
	mu      sync.Mutex
	windows map[string]*window

	max         int
	window      time.Duration
	maxVisitors int
	message     string
	now         func() time.Time

	// capacity warnings can fire on every request under a flood, only pass some through
	capacityNotice rate.Sometimes

	onDenied      func(ip string)
	onFirstDenied func(ip string)
	onCapacity    func()
	onErr         apperr.ErrorFunc
}

type Option func(*IPLimiter)

// WithLimit sets how many requests a client may make per window.
func WithLimit(max int, window time.Duration) Option {
	return func(l *IPLimiter) {
		if max > 0 {
			l.max = max
		}
		if window > 0 {
			l.window = window
		}
	}
}

// WithMessage overrides the message rendered on rejection.
func WithMessage(msg string) Option {
	return func(l *IPLimiter) {
		if msg != "" {
			l.message = msg
		}
	}
}

// WithMaxVisitors bounds the number of tracked clients. Once full, clients
// without a window are rejected until cleanup frees space.
func WithMaxVisitors(n int) Option {
	return func(l *IPLimiter) {
		if n > 0 {
			l.maxVisitors = n
		}
	}
}

// WithOnDenied sets a callback for every denied request. used for incrementing prometheus counters
func WithOnDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.onDenied = fn }
}

// WithOnFirstDenied sets a callback fired once per client window on its
// first rejection, used for logging without flooding the log.
func WithOnFirstDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.onFirstDenied = fn }
}

// WithOnCapacity sets a callback for capacity rejections. Calls are sampled,
// at most one every few seconds after the first.
func WithOnCapacity(fn func()) Option {
	return func(l *IPLimiter) { l.onCapacity = fn }
}

// WithOnError sets the renderer for rejections, normally the terminal error
// handler. Without one a bare JSON body is written.
func WithOnError(fn apperr.ErrorFunc) Option {
	return func(l *IPLimiter) { l.onErr = fn }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *IPLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates an IPLimiter and starts the background cleanup goroutine,
// which exits when ctx is cancelled.
func New(ctx context.Context, opts ...Option) *IPLimiter {
	l := &IPLimiter{
		windows:        make(map[string]*window),
		max:            DefaultMax,
		window:         DefaultWindow,
		maxVisitors:    DefaultMaxVisitors,
		message:        apperr.MsgTooManyRequests,
		now:            time.Now,
		capacityNotice: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	for _, o := range opts {
		o(l)
	}
	go l.cleanup(ctx)
	return l
}

// Allow counts one request for ip and reports whether it may proceed.
func (l *IPLimiter) Allow(ip string) Decision {
	now := l.now()

	l.mu.Lock()
	w, ok := l.windows[ip]
	if ok && !now.Before(w.resetAt) {
		// expired but not yet swept, start over
		w.count, w.resetAt, w.logged = 0, now.Add(l.window), false
	}
	if !ok {
		if len(l.windows) >= l.maxVisitors {
			l.mu.Unlock()
			l.capacityNotice.Do(func() {
				if l.onCapacity != nil {
					l.onCapacity()
				}
			})
			return Decision{Limit: l.max, ResetAt: now.Add(l.window), AtCapacity: true}
		}
		w = &window{resetAt: now.Add(l.window)}
		l.windows[ip] = w
	}
	w.count++

	d := Decision{
		Allowed:   w.count <= l.max,
		Limit:     l.max,
		Remaining: max(l.max-w.count, 0),
		ResetAt:   w.resetAt,
	}
	firstDenial := !d.Allowed && !w.logged
	if firstDenial {
		w.logged = true
	}
	// release before hooks, they may do slow work
	l.mu.Unlock()

	if !d.Allowed {
		if firstDenial && l.onFirstDenied != nil {
			l.onFirstDenied(ip)
		}
		if l.onDenied != nil {
			l.onDenied(ip)
		}
	}
	return d
}

// Len returns the number of tracked clients.
func (l *IPLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// sweep evicts every window that has expired by now.
func (l *IPLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, ip)
		}
	}
}

// cleanup sweeps on a fraction of the window, bounded so long windows do not
// hold stale entries for ages and short ones do not spin.
func (l *IPLimiter) cleanup(ctx context.Context) {
	every := min(max(l.window/4, 10*time.Millisecond), time.Minute)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep(l.now())
		}
	}
}

// Middleware rejects requests over the per-ip limit with 429. Every response
// it lets through carries the X-RateLimit-* headers.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// resolved by httpmw.ClientIP, which decides whether forwarded headers can be trusted
		ip := httpmw.ClientIPFromContext(r.Context())

		d := l.Allow(ip)
		now := l.now()

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.ResetAt.Sub(now))))
			err := apperr.TooManyRequests(l.message)
			if l.onErr != nil {
				l.onErr(w, r, err)
				return
			}
			apperr.WriteJSON(r.Context(), w, err.StatusCode, apperr.Body{Status: err.Status, Message: err.Message})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

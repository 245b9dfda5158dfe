package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-api/internal/httpmw"
)

// Middleware records inflight, count, latency and response size per route
// pattern. It may wrap the chi router from outside: the route context it
// seeds is filled in during dispatch and read back afterwards.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.RouteContext(r.Context()) == nil {
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext()))
		}

		m.inflight.Inc()
		snoop := httpsnoop.CaptureMetrics(next, w, r)
		m.inflight.Dec()

		m.observe(r, snoop)
	})
}

func (m *ServerMetrics) observe(r *http.Request, snoop httpsnoop.Metrics) {
	route := httpmw.RoutePattern(r)
	code := snoop.Code

	m.reqTotal.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
	if code >= http.StatusInternalServerError {
		m.errorsTotal.WithLabelValues(r.Method, route).Inc()
	}

	observeWithExemplar(m.reqDur.WithLabelValues(r.Method, route), snoop.Duration.Seconds(), traceExemplar(r.Context()))
	m.respBytes.WithLabelValues(r.Method, route).Observe(float64(snoop.Written))
}

func observeWithExemplar(o prometheus.Observer, v float64, ex prometheus.Labels) {
	if eo, ok := o.(prometheus.ExemplarObserver); ok && ex != nil {
		eo.ObserveWithExemplar(v, ex)
		return
	}
	o.Observe(v)
}

// traceExemplar links a latency sample to its trace, sampled traces only.
func traceExemplar(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsSampled() {
		return nil
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String()}
}

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveChecker(h http.Handler) (int, status) {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/ready", nil))
	var s status
	_ = json.Unmarshal(rec.Body.Bytes(), &s)
	return rec.Code, s
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name       string
		h          http.Handler
		wantCode   int
		wantStatus string
		wantReason string
	}{
		{"healthy", HealthzHandler(Fixed(true, "")), 200, "ok", ""},
		{"healthy nil", HealthzHandler(nil), 200, "ok", ""},
		{"unhealthy", HealthzHandler(Fixed(false, "wedged")), 503, "unavailable", "wedged"},
		{"ready", ReadyzHandler(Fixed(true, "")), 200, "ready", ""},
		{"ready nil", ReadyzHandler(nil), 200, "ready", ""},
		{"not ready", ReadyzHandler(Fixed(false, "draining")), 503, "unavailable", "draining"},
	}
	for _, tt := range tests {
		code, s := serveChecker(tt.h)
		if code != tt.wantCode || s.Status != tt.wantStatus || s.Reason != tt.wantReason {
			t.Errorf("%s: got %d %+v, want %d %q %q", tt.name, code, s, tt.wantCode, tt.wantStatus, tt.wantReason)
		}
	}
}

func TestHandler_PassesRequestContext(t *testing.T) {
	type key struct{}
	var got any
	h := ReadyzHandler(CheckFunc(func(ctx context.Context) error {
		got = ctx.Value(key{})
		return nil
	}))

	req := httptest.NewRequest(http.MethodGet, "/-/ready", nil)
	req = req.WithContext(context.WithValue(req.Context(), key{}, "v"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != "v" {
		t.Fatal("request context not passed to check")
	}
}

func TestReadyz_FollowsShutdownGate(t *testing.T) {
	var g ShutdownGate
	h := ReadyzHandler(g.Checker())

	if code, _ := serveChecker(h); code != 200 {
		t.Fatalf("open gate: %d", code)
	}
	g.Set("shutting down")
	if code, s := serveChecker(h); code != 503 || s.Reason != "shutting down" {
		t.Fatalf("closed gate: %d %+v", code, s)
	}
}

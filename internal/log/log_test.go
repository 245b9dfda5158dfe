package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

// helpers

func lastJSONLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	last := lines[len(lines)-1]
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("parse JSON log line: %v\nraw: %s", err, last)
	}
	return m
}

// ParseLevel / ParseBackend

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":  slog.LevelDebug,
		"INFO":   slog.LevelInfo,
		" warn ": slog.LevelWarn,
		"error":  slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestParseBackend(t *testing.T) {
	if b, err := ParseBackend("Zerolog"); err != nil || b != BackendZerolog {
		t.Fatalf("ParseBackend(Zerolog) = %q, %v", b, err)
	}
	if b, err := ParseBackend("slog"); err != nil || b != BackendSlog {
		t.Fatalf("ParseBackend(slog) = %q, %v", b, err)
	}
	if _, err := ParseBackend("logrus"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	if _, err := New(Options{Backend: "logrus"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

// context

func TestFromContext_EmptyContext_ReturnsNop(t *testing.T) {
	got := FromContext(context.Background())
	if got == nil {
		t.Fatal("FromContext returned nil")
	}
	got.Info(context.Background(), "test")
	got.Error(context.Background(), fmt.Errorf("test"), "test")
	if err := got.Sync(); err != nil {
		t.Fatalf("Sync error: %v", err)
	}
}

func TestLookup(t *testing.T) {
	if _, ok := Lookup(context.Background()); ok {
		t.Fatal("Lookup on empty context reported a logger")
	}
	l := &discardLogger{}
	ctx := WithContext(context.Background(), l)
	got, ok := Lookup(ctx)
	if !ok || got != l {
		t.Fatal("Lookup did not return the stored logger")
	}
	if _, ok := Lookup(WithContext(context.Background(), nil)); ok {
		t.Fatal("Lookup reported a nil logger as present")
	}
}

// slog backend

func TestSlog_JSONIncludesBaseAttrs(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{App: "api", Env: "production", Version: "1.2.3", JsonFormat: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.With("component", "server").Info(context.Background(), "hello", "k", "v")

	m := lastJSONLine(t, &buf)
	want := map[string]string{"msg": "hello", "app": "api", "env": "production", "version": "1.2.3", "component": "server", "k": "v"}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %v, want %q", k, m[k], v)
		}
	}
}

func TestSlog_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Options{App: "api", JsonFormat: true, Level: slog.LevelWarn, Writer: &buf})

	l.Info(context.Background(), "dropped")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}
	l.Warn(context.Background(), "kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("warn not logged: %s", buf.String())
	}
}

func TestSlog_ErrorChain(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Options{App: "api", JsonFormat: true, Writer: &buf})

	root := errors.New("connection refused")
	l.Error(context.Background(), fmt.Errorf("dial upstream: %w", root), "request failed")

	m := lastJSONLine(t, &buf)
	chain, ok := m["error_chain"].([]any)
	if !ok || len(chain) != 2 {
		t.Fatalf("error_chain = %v, want 2 entries", m["error_chain"])
	}
	if chain[1] != "connection refused" {
		t.Fatalf("error_chain[1] = %v", chain[1])
	}
	if m["stack"] == nil {
		t.Fatal("expected stack on error level record")
	}
}

// zerolog backend

func TestZerolog_JSONIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Backend: BackendZerolog, App: "api", Env: "development", JsonFormat: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.With("request_id", "abc").Info(context.Background(), "http request", "http.response.status_code", 200)

	m := lastJSONLine(t, &buf)
	if m["message"] != "http request" {
		t.Fatalf("message = %v", m["message"])
	}
	if m["app"] != "api" || m["env"] != "development" || m["request_id"] != "abc" {
		t.Fatalf("missing fields: %v", m)
	}
	if m["http.response.status_code"] != float64(200) {
		t.Fatalf("status field = %v", m["http.response.status_code"])
	}
}

func TestZerolog_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Options{Backend: BackendZerolog, App: "api", JsonFormat: true, Level: slog.LevelError, Writer: &buf})

	l.Debug(context.Background(), "dropped")
	l.Warn(context.Background(), "dropped")
	if buf.Len() != 0 {
		t.Fatalf("below-level records logged: %s", buf.String())
	}
}

func TestZerolog_Error(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Options{Backend: BackendZerolog, App: "api", JsonFormat: true, Writer: &buf})

	l.Error(context.Background(), fmt.Errorf("outer: %w", errors.New("inner")), "failed")

	m := lastJSONLine(t, &buf)
	if m["level"] != "error" {
		t.Fatalf("level = %v", m["level"])
	}
	if m["error"] != "outer: inner" {
		t.Fatalf("error = %v", m["error"])
	}
	if _, ok := m["error_chain"].([]any); !ok {
		t.Fatalf("error_chain missing: %v", m)
	}
}

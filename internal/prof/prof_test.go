package prof

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/keithlinneman/linnemanlabs-api/internal/log"
)

type captured struct {
	level, msg string
	err        error
}

type captureLogger struct{ entries *[]captured }

func (c captureLogger) With(...any) log.Logger { return c }
func (c captureLogger) Debug(_ context.Context, msg string, _ ...any) {
	*c.entries = append(*c.entries, captured{level: "debug", msg: msg})
}
func (c captureLogger) Info(_ context.Context, msg string, _ ...any) {
	*c.entries = append(*c.entries, captured{level: "info", msg: msg})
}
func (c captureLogger) Warn(_ context.Context, msg string, _ ...any) {
	*c.entries = append(*c.entries, captured{level: "warn", msg: msg})
}
func (c captureLogger) Error(_ context.Context, err error, msg string, _ ...any) {
	*c.entries = append(*c.entries, captured{level: "error", msg: msg, err: err})
}
func (c captureLogger) Sync() error { return nil }

func TestStart_Disabled(t *testing.T) {
	var states []bool
	stop, err := Start(context.Background(), Options{
		Enabled:              false,
		AuthToken:            "secret",
		ProfileMutexFraction: 999,
		OnActive:             func(on bool) { states = append(states, on) },
	})
	if err != nil {
		t.Fatalf("disabled should never error, got: %v", err)
	}
	stop()
	stop()
	if len(states) != 1 || states[0] {
		t.Fatalf("OnActive calls = %v, want [false]", states)
	}
}

func TestStart_EmptyServerAddress(t *testing.T) {
	var entries []captured
	ctx := log.WithContext(context.Background(), captureLogger{entries: &entries})

	stop, err := Start(ctx, Options{Enabled: true, AppName: "test"})
	if err == nil || !strings.Contains(err.Error(), "invalid server address") {
		t.Fatalf("err = %v, want invalid server address", err)
	}
	if stop == nil {
		t.Fatal("stop must be non-nil even on error")
	}
	stop()
	stop()

	if len(entries) == 0 || entries[0].level != "error" {
		t.Fatalf("entries = %+v, want an error entry", entries)
	}
}

func TestStart_UnreachableServer(t *testing.T) {
	// pyroscope connects lazily in some versions, so only the contract is
	// checked: a usable, idempotent stop func
	var last *bool
	stop, _ := Start(context.Background(), Options{
		Enabled:       true,
		ServerAddress: "http://localhost:0/nonexistent",
		AppName:       "test",
		OnActive:      func(on bool) { last = &on },
	})
	if stop == nil {
		t.Fatal("stop func should always be non-nil")
	}
	stop()
	stop()
	if last == nil || *last {
		t.Fatal("profiling should be reported inactive after stop")
	}
}

func TestPyroLogger(t *testing.T) {
	var entries []captured
	pl := pyroLogger{ctx: context.Background(), L: captureLogger{entries: &entries}}

	pl.Infof("uploaded %d profiles", 3)
	pl.Debugf("tick")
	pl.Errorf("upload failed: %v", errors.New("boom"))

	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].level != "info" || entries[0].msg != "uploaded 3 profiles" {
		t.Errorf("info entry = %+v", entries[0])
	}
	if entries[1].level != "debug" {
		t.Errorf("debug entry = %+v", entries[1])
	}
	if entries[2].level != "error" || entries[2].err == nil || !strings.Contains(entries[2].err.Error(), "boom") {
		t.Errorf("error entry = %+v", entries[2])
	}
}

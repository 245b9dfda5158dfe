package health

import (
	"context"
	"errors"
	"sync"
	"testing"
)

var errA, errB = errors.New("a failed"), errors.New("b failed")

func fail(err error) CheckFunc { return func(context.Context) error { return err } }

func TestFixed(t *testing.T) {
	if err := Fixed(true, "ignored").Check(context.Background()); err != nil {
		t.Fatalf("Fixed(true) = %v", err)
	}
	if err := Fixed(false, "db down").Check(context.Background()); err == nil || err.Error() != "db down" {
		t.Fatalf("Fixed(false, db down) = %v", err)
	}
	if err := Fixed(false, "").Check(context.Background()); err == nil || err.Error() != "unhealthy" {
		t.Fatalf("Fixed(false, \"\") = %v", err)
	}
}

func TestAll(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		checks []Checker
		want   error
	}{
		{"empty", nil, nil},
		{"all pass", []Checker{Fixed(true, ""), Fixed(true, "")}, nil},
		{"first failure wins", []Checker{Fixed(true, ""), fail(errA), fail(errB)}, errA},
		{"nil skipped", []Checker{nil, fail(errB)}, errB},
	}
	for _, tt := range tests {
		if got := All(tt.checks...).Check(ctx); !errors.Is(got, tt.want) {
			t.Errorf("%s: All = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAll_ShortCircuits(t *testing.T) {
	called := false
	p := All(fail(errA), CheckFunc(func(context.Context) error { called = true; return nil }))
	_ = p.Check(context.Background())
	if called {
		t.Fatal("All kept checking after a failure")
	}
}

func TestAny(t *testing.T) {
	ctx := context.Background()
	if err := Any(fail(errA), Fixed(true, "")).Check(ctx); err != nil {
		t.Fatalf("one passing: %v", err)
	}
	if err := Any(fail(errA), fail(errB)).Check(ctx); !errors.Is(err, errB) {
		t.Fatalf("all failing: %v, want last error", err)
	}
	if err := Any().Check(ctx); err == nil {
		t.Fatal("Any() with no checks should fail")
	}
	if err := Any(nil, nil).Check(ctx); err == nil {
		t.Fatal("Any(nil, nil) should fail")
	}
}

func TestShutdownGate(t *testing.T) {
	var g ShutdownGate
	p := g.Checker()
	ctx := context.Background()

	if err := p.Check(ctx); err != nil || g.Draining() {
		t.Fatalf("zero gate should be open: %v", err)
	}

	g.Set("")
	if err := p.Check(ctx); err == nil || err.Error() != "draining" {
		t.Fatalf("after Set: %v", err)
	}
	g.Set("shutting down")
	if err := p.Check(ctx); err == nil || err.Error() != "shutting down" {
		t.Fatalf("after second Set: %v", err)
	}

	g.Clear()
	if err := p.Check(ctx); err != nil {
		t.Fatalf("after Clear: %v", err)
	}
}

func TestShutdownGate_Concurrent(t *testing.T) {
	var g ShutdownGate
	p := All(Fixed(true, ""), g.Checker())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); g.Set("x"); g.Clear() }()
		go func() { defer wg.Done(); _ = p.Check(context.Background()) }()
	}
	wg.Wait()
}

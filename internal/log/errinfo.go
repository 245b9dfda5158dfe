package log

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

type hasPC interface {
	PC() uintptr
}

type hasStack interface {
	StackPCs() []uintptr
}

// errorDetails is what both backends attach to an Error call.
type errorDetails struct {
	surface string
	root    string
	chain   []string
	links   []map[string]any
}

func describeError(err error, withLinks bool, maxLinks int) errorDetails {
	d := errorDetails{chain: errorChain(err)}
	d.surface, d.root = classifyTypes(err)
	if withLinks {
		d.links = chainLinks(err, maxLinks)
	}
	return d
}

// kv renders d as alternating keys and values, err first.
func (d errorDetails) kv(err error) []any {
	out := []any{"err", err, "error_type", d.surface, "cause_type", d.root}
	if len(d.chain) > 0 {
		out = append(out, "error_chain", d.chain)
	}
	if d.links != nil {
		out = append(out, "error_links", d.links)
	}
	return out
}

// internalFrame reports frames that belong to the logging machinery itself.
func internalFrame(fn string) bool {
	return strings.HasPrefix(fn, "log/slog.") ||
		strings.Contains(fn, "/internal/log.") ||
		strings.Contains(fn, "github.com/rs/zerolog")
}

// renderFrames prints func/file:line pairs, skipping leading logging frames
// and stopping at the runtime.
func renderFrames(frames *runtime.Frames) string {
	var b strings.Builder
	started := false
	for {
		fr, more := frames.Next()
		if strings.HasPrefix(fr.Function, "runtime.") {
			break
		}
		if !started && !internalFrame(fr.Function) {
			started = true
		}
		if started && fr.Function != "" {
			fmt.Fprintf(&b, "%s\n\t%s:%d\n", fr.Function, fr.File, fr.Line)
		}
		if !more {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

func renderPCs(pcs []uintptr) string {
	return renderFrames(runtime.CallersFrames(pcs))
}

// callerStack renders the current goroutine's stack from the first frame
// outside the logging packages.
func callerStack() string {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(2, pcs)
	return renderFrames(runtime.CallersFrames(pcs[:n]))
}

// errorChain lists each distinct message down the Unwrap chain, followed by
// the members of a top-level errors.Join.
func errorChain(err error) []string {
	var out []string
	var prev string
	add := func(s string) {
		if s != prev {
			out = append(out, s)
			prev = s
		}
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		add(e.Error())
	}
	if m, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range m.Unwrap() {
			add(e.Error())
		}
	}
	return out
}

// chainLinks locates each wrap in the chain in source. The first link is
// always present, later ones only when a position is known.
func chainLinks(err error, max int) []map[string]any {
	links := make([]map[string]any, 0, 4)
	for depth, e := 0, err; e != nil && (max <= 0 || depth < max); depth, e = depth+1, errors.Unwrap(e) {
		link := map[string]any{"msg": e.Error()}
		fn, file, line, ok := errorPosition(e)
		if ok {
			link["func"], link["file"], link["line"] = fn, file, line
		}
		if depth == 0 || ok {
			links = append(links, link)
		}
	}
	return links
}

// errorPosition prefers the single call-site PC recorded by Wrap and New and
// falls back to the first external frame of a captured stack.
func errorPosition(e error) (fn, file string, line int, ok bool) {
	if hp, isPC := e.(hasPC); isPC {
		pc := hp.PC()
		if pc == 0 {
			return "", "", 0, false
		}
		fr, _ := runtime.CallersFrames([]uintptr{pc}).Next()
		return fr.Function, fr.File, fr.Line, true
	}
	hs, isStack := e.(hasStack)
	if !isStack {
		return "", "", 0, false
	}
	frames := runtime.CallersFrames(hs.StackPCs())
	for {
		fr, more := frames.Next()
		if fr.Function != "" &&
			!strings.HasPrefix(fr.Function, "runtime.") &&
			!internalFrame(fr.Function) &&
			!strings.Contains(fr.Function, "/internal/xerrors.") {
			return fr.Function, fr.File, fr.Line, true
		}
		if !more {
			return "", "", 0, false
		}
	}
}

// classifyTypes names the first meaningful error type in the chain (skipping
// xerrors and fmt wrappers) and the innermost one.
func classifyTypes(err error) (surface, root string) {
	if err == nil {
		return "", ""
	}
	var last error
	for e := err; e != nil; e = errors.Unwrap(e) {
		last = e
		if surface != "" {
			continue
		}
		t := reflect.TypeOf(e)
		u := t
		for u.Kind() == reflect.Pointer {
			u = u.Elem()
		}
		if strings.Contains(u.PkgPath(), "/internal/xerrors") {
			continue
		}
		if u.PkgPath() == "fmt" && u.Name() == "wrapError" {
			continue
		}
		surface = t.String()
	}
	if surface == "" {
		surface = fmt.Sprintf("%T", err)
	}
	return surface, fmt.Sprintf("%T", last)
}

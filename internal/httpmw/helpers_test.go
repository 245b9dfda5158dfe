package httpmw

import (
	"context"
	"net/http"
	"sync"

	"github.com/goccy/go-json"

	"github.com/keithlinneman/linnemanlabs-api/internal/log"
)

type logEntry struct {
	level string
	msg   string
	err   error
	kv    []any
}

// spyLogger records every call, shared across With() children
type spyLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
	fields  []any
}

func newSpyLogger() *spyLogger {
	return &spyLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (s *spyLogger) With(kv ...any) log.Logger {
	fields := append(append([]any{}, s.fields...), kv...)
	return &spyLogger{mu: s.mu, entries: s.entries, fields: fields}
}

func (s *spyLogger) record(level string, err error, msg string, kv []any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := append(append([]any{}, s.fields...), kv...)
	*s.entries = append(*s.entries, logEntry{level: level, msg: msg, err: err, kv: all})
}

func (s *spyLogger) Debug(_ context.Context, msg string, kv ...any) { s.record("debug", nil, msg, kv) }
func (s *spyLogger) Info(_ context.Context, msg string, kv ...any)  { s.record("info", nil, msg, kv) }
func (s *spyLogger) Warn(_ context.Context, msg string, kv ...any)  { s.record("warn", nil, msg, kv) }
func (s *spyLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	s.record("error", err, msg, kv)
}
func (s *spyLogger) Sync() error { return nil }

func (s *spyLogger) all() []logEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]logEntry{}, *s.entries...)
}

// field returns the value for key in e.kv, or nil
func (e logEntry) field(key string) any {
	for i := 0; i+1 < len(e.kv); i += 2 {
		if k, ok := e.kv[i].(string); ok && k == key {
			return e.kv[i+1]
		}
	}
	return nil
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// jsonNumber is how JSONBody represents numbers in a parsed payload
func jsonNumber(s string) json.Number { return json.Number(s) }

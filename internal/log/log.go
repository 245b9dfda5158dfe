package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type Logger interface {
	With(kv ...any) Logger

	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, err error, msg string, kv ...any)

	Sync() error
}

// Backend selects the logging implementation behind Logger.
type Backend string

const (
	BackendSlog    Backend = "slog"
	BackendZerolog Backend = "zerolog"
)

type Options struct {
	App               string
	Version           string
	Commit            string
	BuildId           string
	Env               string
	Backend           Backend
	Level             slog.Level
	StacktraceLevel   slog.Level
	JsonFormat        bool
	MaxErrorLinks     int
	IncludeErrorLinks bool
	Writer            io.Writer
}

func New(opts Options) (Logger, error) {
	switch opts.Backend {
	case "", BackendSlog:
		return newSlog(opts)
	case BackendZerolog:
		return newZerolog(opts)
	default:
		return nil, fmt.Errorf("unknown log backend %q (valid backends are slog|zerolog)", opts.Backend)
	}
}

func ParseLevel(s string) (slog.Level, error) {
	x := strings.ToLower(strings.TrimSpace(s))
	switch x {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %s (valid levels are debug|info|warn|error)", s)
	}
}

func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendSlog, BackendZerolog:
		return b, nil
	default:
		return "", fmt.Errorf("unknown log backend %s (valid backends are slog|zerolog)", s)
	}
}

package log

import (
	"context"
	"log/slog"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// zeroLogger adapts zerolog to Logger. zerolog is immutable on With so the
// returned loggers are safe to share across goroutines.
type zeroLogger struct {
	zl                zerolog.Logger
	includeErrorLinks bool
	maxErrorLinks     int
}

func newZerolog(opts Options) (Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	if !opts.JsonFormat {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true}
	}

	zc := zerolog.New(w).
		Level(zerologLevel(opts.Level)).
		With().
		Timestamp().
		Str("app", opts.App)
	for _, a := range baseAttrs(opts)[1:] {
		zc = zc.Str(a.Key, a.Value.String())
	}

	if opts.MaxErrorLinks <= 0 {
		opts.MaxErrorLinks = 8
	}
	return &zeroLogger{
		zl:                zc.Logger(),
		includeErrorLinks: opts.IncludeErrorLinks,
		maxErrorLinks:     opts.MaxErrorLinks,
	}, nil
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l <= slog.LevelDebug:
		return zerolog.DebugLevel
	case l <= slog.LevelInfo:
		return zerolog.InfoLevel
	case l <= slog.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (z *zeroLogger) With(kv ...any) Logger {
	zc := z.zl.With()
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			zc = zc.Interface(k, kv[i+1])
		}
	}
	return &zeroLogger{
		zl:                zc.Logger(),
		includeErrorLinks: z.includeErrorLinks,
		maxErrorLinks:     z.maxErrorLinks,
	}
}

func (z *zeroLogger) Debug(ctx context.Context, msg string, kv ...any) {
	z.emit(ctx, z.zl.Debug(), msg, kv)
}

func (z *zeroLogger) Info(ctx context.Context, msg string, kv ...any) {
	z.emit(ctx, z.zl.Info(), msg, kv)
}

func (z *zeroLogger) Warn(ctx context.Context, msg string, kv ...any) {
	z.emit(ctx, z.zl.Warn(), msg, kv)
}

func (z *zeroLogger) Error(ctx context.Context, err error, msg string, kv ...any) {
	ev := z.zl.Error()
	if err != nil {
		d := describeError(err, z.includeErrorLinks, z.maxErrorLinks)
		ev = ev.Err(err).
			Str("error_type", d.surface).
			Str("cause_type", d.root)
		if len(d.chain) > 0 {
			ev = ev.Strs("error_chain", d.chain)
		}
		if d.links != nil {
			ev = ev.Interface("error_links", d.links)
		}
	}
	z.emit(ctx, ev, msg, kv)
}

func (z *zeroLogger) Sync() error { return nil }

// emit is a no-op when the level is disabled (zerolog returns a nil event)
func (z *zeroLogger) emit(ctx context.Context, ev *zerolog.Event, msg string, kv []any) {
	if ev == nil {
		return
	}
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			ev = ev.Str("trace_id", sc.TraceID().String()).
				Str("span_id", sc.SpanID().String())
		}
	}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			ev = ev.Interface(k, kv[i+1])
		}
	}
	ev.Msg(msg)
}

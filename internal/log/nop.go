package log

import "context"

var discard Logger = discardLogger{}

// Nop returns a Logger that drops everything. FromContext falls back to it.
func Nop() Logger { return discard }

type discardLogger struct{}

func (discardLogger) With(...any) Logger                           { return discard }
func (discardLogger) Debug(context.Context, string, ...any)        {}
func (discardLogger) Info(context.Context, string, ...any)         {}
func (discardLogger) Warn(context.Context, string, ...any)         {}
func (discardLogger) Error(context.Context, error, string, ...any) {}
func (discardLogger) Sync() error                                  { return nil }

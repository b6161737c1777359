// Package logger provides utilities for working
// with [zerolog] and [context.Context].
package logger

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FromContext returns the logger attached to the given context.
// When the context carries none, it returns a disabled logger,
// so library code stays silent unless the caller opts in.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// WithContext returns a copy of ctx with l attached to it,
// for [FromContext] to retrieve further down the call stack.
func WithContext(ctx context.Context, l *zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// Fatal logs the given message at the fatal level and exits the
// process. Meant for unrecoverable initialization errors in binaries,
// not for library code.
func Fatal(msg string) {
	log.Fatal().Msg(msg)
}

// FatalError is like [Fatal], with an error attached to the log entry.
func FatalError(msg string, err error) {
	log.Fatal().Err(err).Msg(msg)
}

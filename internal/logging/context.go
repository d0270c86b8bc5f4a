package logging

import (
	"context"

	"github.com/sirupsen/logrus"
)

type loggingContextKeyType struct{}

var loggingContextKey loggingContextKeyType

// Stash stores a logger in the context.
func Stash(ctx context.Context, logger logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, loggingContextKey, logger)
}

// FromContext returns the logger stored with Stash or the standard logger.
func FromContext(ctx context.Context) logrus.FieldLogger {
	l, ok := ctx.Value(loggingContextKey).(logrus.FieldLogger)
	if !ok || l == nil {
		return logrus.StandardLogger()
	}
	return l
}

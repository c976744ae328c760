package logger

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// echoKey is where handlers find the request logger on the echo context.
const echoKey = "logger"

type ctxKey struct{}

// FromContext returns the request-scoped logger carried by ctx. The billing
// core takes a context.Context rather than an echo.Context, so this is how
// reconciler, checkout and detail logs pick up the request id and caller.
// Outside a request (startup, tests) it falls back to the global logger.
func FromContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return GetLogger()
	}
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return GetLogger()
}

// WithContext returns a copy of ctx carrying l.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromEcho returns the logger the middleware chain attached to c.
func FromEcho(c echo.Context) *zap.Logger {
	if l, ok := c.Get(echoKey).(*zap.Logger); ok {
		return l
	}
	return GetLogger()
}

// Attach makes l the request logger for both c and its request context, so
// handlers and the billing calls they make log with the same fields.
func Attach(c echo.Context, l *zap.Logger) {
	c.Set(echoKey, l)
	c.SetRequest(c.Request().WithContext(WithContext(c.Request().Context(), l)))
}

package hlbus

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

type scopeKey struct{}

// scope is what a handler context carries about its dispatch.
type scope struct {
	logger  *xlog.Logger
	clock   xclock.Clock
	subject string
}

func scopeOf(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func withScope(ctx context.Context, edit func(*scope)) context.Context {
	s := scopeOf(ctx)
	edit(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// InjectAll attaches logger and clock for handlers. Nil values leave what ctx
// already carries.
func InjectAll(ctx context.Context, logger *xlog.Logger, clock xclock.Clock) context.Context {
	return withScope(ctx, func(s *scope) {
		if logger != nil {
			s.logger = logger
		}
		if clock != nil {
			s.clock = clock
		}
	})
}

// handlerContext is InjectAll with the logger tagged by the message being handled.
func handlerContext(ctx context.Context, logger *xlog.Logger, clock xclock.Clock, h Header) context.Context {
	if logger != nil {
		logger = logger.With(
			xlog.Str("message_type", h.MessageType),
			xlog.Str("message_id", h.MessageID),
		)
	}
	return InjectAll(ctx, logger, clock)
}

// LoggerFromContext returns the logger the dispatcher attached for handlers.
func LoggerFromContext(ctx context.Context) (*xlog.Logger, bool) {
	l := scopeOf(ctx).logger
	return l, l != nil
}

// ClockFromContext returns the clock the dispatcher attached for handlers.
func ClockFromContext(ctx context.Context) (xclock.Clock, bool) {
	c := scopeOf(ctx).clock
	return c, c != nil
}

// WithSubject records the subject a message arrived on.
func WithSubject(ctx context.Context, subject string) context.Context {
	return withScope(ctx, func(s *scope) { s.subject = subject })
}

// SubjectFromContext returns the subject the handled message arrived on.
func SubjectFromContext(ctx context.Context) string {
	return scopeOf(ctx).subject
}

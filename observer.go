package hlbus

import (
	"github.com/trickstertwo/xlog"
)

// ObserverFunc lets a plain function satisfy Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// LoggingObserver writes bus events to Logger: handler and bus errors at
// error level, other failures and dropped replies at warn, traffic at debug.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnEvent(e Event) {
	if o.Logger == nil {
		return
	}
	l := o.Logger.With(xlog.Str("event", string(e.Type)))
	for _, kv := range [...][2]string{
		{"subject", e.Subject},
		{"message_type", e.MessageType},
		{"message_id", e.MessageID},
		{"correlation_id", e.CorrelationID},
	} {
		if kv[1] != "" {
			l = l.With(xlog.Str(kv[0], kv[1]))
		}
	}
	if e.Duration > 0 {
		l = l.With(xlog.Dur("duration", e.Duration))
	}

	msg := "hlbus: " + string(e.Type)
	switch {
	case e.Type == EventHandlerError || e.Type == EventError:
		l.Error().Err(e.Err).Msg(msg)
	case e.Err != nil:
		l.Warn().Err(e.Err).Msg(msg)
	case e.Type == EventTimeout || e.Type == EventReplyDropped:
		l.Warn().Msg(msg)
	default:
		l.Debug().Msg(msg)
	}
}

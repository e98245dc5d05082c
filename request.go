package hlbus

import (
	"context"
	"fmt"
	"time"
)

// ReplySuffix is appended to a request's message type to name its reply type.
const ReplySuffix = ".reply"

// Request sends env and waits for the reply carrying the same correlation id.
// A fresh correlation id is assigned when env has none. It fails with
// ErrRequestTimeout once timeout elapses (never earlier), with
// ErrDuplicateCorrelation when the id is already in flight, and with
// *TransportError when the send fails. The wait slot is removed on every path.
func (b *Bus) Request(ctx context.Context, subject string, env Envelope, timeout time.Duration) (Envelope, error) {
	if b.closed.Load() {
		return Envelope{}, ErrBusClosed
	}
	if subject == "" {
		return Envelope{}, ErrInvalidSubject
	}
	if timeout <= 0 {
		timeout = b.requestTimeout
	}

	// the timer starts before any work so the deadline is measured from the call
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	inbox, err := b.ensureInbox(ctx)
	if err != nil {
		return Envelope{}, err
	}
	if env.Header.CorrelationID == "" {
		env = env.WithCorrelationID(NewID())
	}
	env = env.WithReplyTo(inbox)
	id := env.Header.CorrelationID

	p, err := b.pending.add(id, b.clock.Now().Add(timeout))
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %s", err, id)
	}
	defer b.pending.remove(id, p)

	b.metrics.requestCount.Add(1)
	start := b.clock.Now()
	if err := b.emit(ctx, EventRequest, subject, env); err != nil {
		return Envelope{}, err
	}

	select {
	case reply := <-p.reply:
		return b.resolved(subject, reply, start), nil
	case <-timer.C:
		// a reply that raced the timer still wins
		select {
		case reply := <-p.reply:
			return b.resolved(subject, reply, start), nil
		default:
		}
		b.metrics.timeoutCount.Add(1)
		e := eventFor(EventTimeout, subject, env.Header)
		e.Duration = b.clock.Since(start)
		e.Err = ErrRequestTimeout
		b.notify(e)
		return Envelope{}, fmt.Errorf("%w: subject %q correlation %s after %s", ErrRequestTimeout, subject, id, timeout)
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case <-b.done:
		return Envelope{}, ErrBusClosed
	}
}

func (b *Bus) resolved(subject string, reply Envelope, start time.Time) Envelope {
	b.metrics.replyCount.Add(1)
	e := eventFor(EventReply, subject, reply.Header)
	e.Duration = b.clock.Since(start)
	b.notify(e)
	return reply
}

// Reply answers req with payload on req's reply subject, echoing its
// correlation id. The reply type is req's type plus ReplySuffix.
func (b *Bus) Reply(ctx context.Context, req Envelope, payload any) error {
	reply, err := b.NewEnvelope(req.Header.MessageType+ReplySuffix, payload)
	if err != nil {
		return err
	}
	return b.ReplyWith(ctx, req, reply)
}

// ReplyWith sends a caller-built reply envelope for req.
func (b *Bus) ReplyWith(ctx context.Context, req Envelope, reply Envelope) error {
	if req.Header.ReplyTo == "" {
		return ErrNoReplySubject
	}
	reply = reply.WithCorrelationID(req.Header.CorrelationID)
	reply.Header.ReplyTo = ""
	return b.emit(ctx, EventSend, req.Header.ReplyTo, reply)
}

// Inbox returns the reply subject of this bus, subscribing it on first use.
func (b *Bus) Inbox(ctx context.Context) (string, error) {
	return b.ensureInbox(ctx)
}

// ensureInbox lazily subscribes the single reply listener. A listener ended
// by the transport is replaced on the next call.
func (b *Bus) ensureInbox(ctx context.Context) (string, error) {
	b.inboxMu.Lock()
	defer b.inboxMu.Unlock()

	if b.inboxSub != nil {
		select {
		case <-b.inboxSub.Done():
			b.logger.Warn().Err(b.inboxSub.Err()).Str("inbox", b.inbox).Msg("hlbus: reply listener ended; resubscribing")
			b.inboxSub = nil
		default:
			return b.inbox, nil
		}
	}
	if b.closed.Load() {
		return "", ErrBusClosed
	}

	inbox := b.inboxPrefix + NewID()
	// The listener outlives the request that created it.
	sub, err := b.transport.Subscribe(context.WithoutCancel(ctx), inbox, b.onReply)
	if err != nil {
		b.metrics.errorCount.Add(1)
		return "", &TransportError{Op: "subscribe", Subject: inbox, Err: err}
	}
	b.inbox = inbox
	b.inboxSub = sub
	return inbox, nil
}

// onReply demultiplexes inbound replies to their waiting requests. The
// first reply for a correlation id wins; later ones are dropped.
func (b *Bus) onReply(m *RawMessage) {
	b.metrics.receiveCount.Add(1)
	env, err := DecodeMessage(m)
	if err != nil {
		b.metrics.errorCount.Add(1)
		b.logger.Warn().Err(err).Str("subject", m.Subject).Msg("hlbus: undecodable reply dropped")
		b.notify(Event{Type: EventDecodeError, Subject: m.Subject, Err: err})
		return
	}
	if b.pending.resolve(env) {
		return
	}
	b.metrics.replyDroppedCount.Add(1)
	b.logger.Debug().
		Str("subject", m.Subject).
		Str("correlation_id", env.Header.CorrelationID).
		Str("message_id", env.Header.MessageID).
		Msg("hlbus: reply without pending request dropped")
	b.notify(eventFor(EventReplyDropped, m.Subject, env.Header))
}

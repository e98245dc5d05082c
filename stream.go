package hlbus

import (
	"context"
	"errors"
	"iter"
	"sync"
)

type streamItem struct {
	env Envelope
	err error
}

// Stream is a lazy, non-restartable sequence of decoded envelopes from one
// subject, in transport delivery order. Decode failures are yielded as errors
// without ending the stream.
type Stream struct {
	subject string
	items   chan streamItem
	sub     Subscription

	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	stopCtx func() bool
}

func newStream(subject string, buffer int) *Stream {
	if buffer < 1 {
		buffer = 1
	}
	return &Stream{
		subject: subject,
		items:   make(chan streamItem, buffer),
		closed:  make(chan struct{}),
	}
}

// Subject returns the subject this stream listens on.
func (s *Stream) Subject() string { return s.subject }

// deliver runs on the transport's delivery goroutine and blocks until the
// consumer takes the item or the stream closes.
func (s *Stream) deliver(m *RawMessage) {
	env, err := DecodeMessage(m)
	select {
	case s.items <- streamItem{env: env, err: err}:
	case <-s.closed:
	}
}

// Next returns the next envelope. It returns a *DecodeError for a message
// that could not be decoded (the stream continues), ErrStreamClosed once the
// stream has ended, or ctx.Err() if ctx is done first.
func (s *Stream) Next(ctx context.Context) (Envelope, error) {
	select {
	case it := <-s.items:
		return it.env, it.err
	default:
	}

	select {
	case it := <-s.items:
		return it.env, it.err
	case <-s.closed:
		return Envelope{}, ErrStreamClosed
	case <-s.sub.Done():
		// flush what the transport handed over before it ended
		select {
		case it := <-s.items:
			return it.env, it.err
		default:
		}
		return Envelope{}, ErrStreamClosed
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

// All ranges over the stream until it ends or ctx is done.
func (s *Stream) All(ctx context.Context) iter.Seq2[Envelope, error] {
	return func(yield func(Envelope, error) bool) {
		for {
			env, err := s.Next(ctx)
			if errors.Is(err, ErrStreamClosed) || (err != nil && ctx.Err() != nil) {
				return
			}
			if !yield(env, err) {
				return
			}
		}
	}
}

// Close cancels the stream and releases the transport subscription.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.mu.Lock()
		stop := s.stopCtx
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		if s.sub != nil {
			err = s.sub.Close()
		}
	})
	return err
}

// closeWith ends the stream when ctx is done.
func (s *Stream) closeWith(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	s.mu.Lock()
	s.stopCtx = stop
	s.mu.Unlock()
}

// Err reports why the stream ended: nil when closed by its owner, wrapping
// ErrConnectionLost when the transport ended it.
func (s *Stream) Err() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Err()
}

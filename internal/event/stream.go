package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/labthings-core/internal/deque"
	"github.com/nerrad567/labthings-core/internal/owner"
)

// Stream is a bounded message history with broadcast notification.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Stream struct {
	emitMu       sync.Mutex // serialises sequence assignment
	signal       *ClientEvent
	history      *deque.Deque[Message]
	staleTimeout time.Duration
}

// NewStream creates a Stream.
//
// Parameters:
//   - historySize: Messages retained for late or slow subscribers
//   - staleTimeout: How long an unconsumed signal may persist before its
//     subscriber is dropped (non-positive uses DefaultStaleTimeout)
func NewStream(historySize int, staleTimeout time.Duration) *Stream {
	if staleTimeout <= 0 {
		staleTimeout = DefaultStaleTimeout
	}
	return &Stream{
		signal:       NewClientEvent(),
		history:      deque.New[Message](historySize),
		staleTimeout: staleTimeout,
	}
}

// SetLogger sets the logger used by the underlying ClientEvent.
func (s *Stream) SetLogger(logger Logger) {
	s.signal.SetLogger(logger)
}

// Emit records m and wakes every subscriber. It returns the sequence number
// assigned to the message.
func (s *Stream) Emit(m Message) uint64 {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	s.emitMu.Lock()
	m.Seq = s.history.LastSeq() + 1
	seq := s.history.Append(m)
	s.emitMu.Unlock()

	s.signal.Set(s.staleTimeout)
	return seq
}

// Since returns retained messages newer than after and the newest sequence.
func (s *Stream) Since(after uint64) ([]Message, uint64) {
	return s.history.Since(after)
}

// LastSeq returns the sequence number of the newest message.
func (s *Stream) LastSeq() uint64 {
	return s.history.LastSeq()
}

// Signal exposes the underlying ClientEvent.
func (s *Stream) Signal() *ClientEvent {
	return s.signal
}

// Next blocks until messages newer than after are available or ctx is done.
//
// ctx must carry an owner.ID unique to the subscriber loop (see
// owner.Fresh). poll bounds each individual wait so a missed signal only
// delays delivery, never loses it. A cursor ahead of the newest message is
// treated as the newest message.
//
// Returns:
//   - []Message: New messages, oldest first
//   - uint64: Cursor to pass to the next call
//   - error: ctx.Err() once ctx is done
func (s *Stream) Next(ctx context.Context, after uint64, poll time.Duration) ([]Message, uint64, error) {
	if _, ok := owner.From(ctx); !ok {
		return nil, after, fmt.Errorf("event: subscriber context carries no owner")
	}
	if last := s.history.LastSeq(); after > last {
		after = last
	}
	s.signal.Subscribe(ctx)

	for {
		if msgs, last := s.history.Since(after); len(msgs) > 0 {
			return msgs, last, nil
		}
		if s.signal.Wait(ctx, poll) {
			s.signal.Clear(ctx)
			continue
		}
		if err := ctx.Err(); err != nil {
			s.signal.Unsubscribe(ctx)
			return nil, after, err
		}
	}
}

// Close removes the subscriber carried by ctx.
func (s *Stream) Close(ctx context.Context) {
	s.signal.Unsubscribe(ctx)
}

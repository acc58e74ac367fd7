package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/labthings-core/internal/owner"
)

func TestNewMessage(t *testing.T) {
	m := NewMessage(MessageActionStatus, "average_data", map[string]any{"status": "running"})

	if m.MessageType != MessageActionStatus {
		t.Errorf("MessageType = %q, want %q", m.MessageType, MessageActionStatus)
	}
	if m.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
	if _, ok := m.Data["average_data"]; !ok {
		t.Errorf("Data = %v, want key average_data", m.Data)
	}
}

func TestStream_EmitAssignsSequence(t *testing.T) {
	s := NewStream(10, time.Second)

	first := s.Emit(NewMessage(MessageEvent, "a", 1))
	second := s.Emit(NewMessage(MessageEvent, "b", 2))
	if first != 1 || second != 2 {
		t.Fatalf("Emit() seqs = %d, %d, want 1, 2", first, second)
	}

	msgs, last := s.Since(first)
	if last != second {
		t.Errorf("Since() last = %d, want %d", last, second)
	}
	if len(msgs) != 1 || msgs[0].Seq != second {
		t.Errorf("Since(%d) = %+v, want the second message only", first, msgs)
	}
}

func TestStream_NextDeliversInOrder(t *testing.T) {
	s := NewStream(10, time.Second)
	ctx := owner.Fresh(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Emit(NewMessage(MessageEvent, "a", 1))
		s.Emit(NewMessage(MessageEvent, "b", 2))
	}()

	var got []Message
	var cursor uint64
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 2 && time.Now().Before(deadline) {
		msgs, next, err := s.Next(ctx, cursor, 50*time.Millisecond)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		cursor = next
		got = append(got, msgs...)
	}

	if len(got) != 2 {
		t.Fatalf("received %d messages, want 2", len(got))
	}
	if got[0].Seq >= got[1].Seq {
		t.Errorf("messages out of order: %d then %d", got[0].Seq, got[1].Seq)
	}
}

func TestStream_NextReturnsBacklogImmediately(t *testing.T) {
	s := NewStream(10, time.Second)
	s.Emit(NewMessage(MessageEvent, "a", 1))

	msgs, next, err := s.Next(owner.Fresh(context.Background()), 0, time.Second)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if len(msgs) != 1 || next != 1 {
		t.Errorf("Next() = %d msgs, cursor %d; want 1, 1", len(msgs), next)
	}
}

func TestStream_NextCursorAheadOfHead(t *testing.T) {
	s := NewStream(10, time.Second)
	s.Emit(NewMessage(MessageEvent, "old", 0))
	ctx, cancel := context.WithTimeout(owner.Fresh(context.Background()), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		for i := 0; i < 5; i++ {
			s.Emit(NewMessage(MessageEvent, "new", i))
		}
	}()

	var got []Message
	cursor := uint64(100)
	for len(got) < 5 {
		msgs, next, err := s.Next(ctx, cursor, 20*time.Millisecond)
		if err != nil {
			t.Fatalf("Next() error = %v after %d messages (last seq %d)", err, len(got), s.LastSeq())
		}
		cursor = next
		got = append(got, msgs...)
	}

	if got[0].Seq != 2 {
		t.Errorf("first message seq = %d, want 2 (the first after the head)", got[0].Seq)
	}
	if cursor != 6 {
		t.Errorf("cursor = %d, want 6", cursor)
	}
}

func TestStream_NextStopsOnContext(t *testing.T) {
	s := NewStream(10, time.Second)
	ctx, cancel := context.WithTimeout(owner.Fresh(context.Background()), 30*time.Millisecond)
	defer cancel()

	_, _, err := s.Next(ctx, 0, 10*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() error = %v, want DeadlineExceeded", err)
	}
	if s.Signal().Len() != 0 {
		t.Error("subscriber still registered after context ended")
	}
}

func TestStream_NextRequiresOwner(t *testing.T) {
	s := NewStream(10, time.Second)
	if _, _, err := s.Next(context.Background(), 0, time.Millisecond); err == nil {
		t.Error("Next() without owner succeeded")
	}
}

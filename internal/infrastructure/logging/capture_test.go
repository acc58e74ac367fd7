package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

type recordSink struct {
	mu      sync.Mutex
	records []Record
}

func (s *recordSink) add(r Record) {
	s.mu.Lock()
	s.records = append(s.records, r)
	s.mu.Unlock()
}

func (s *recordSink) all() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

func TestCaptureHandler_ForwardsAndCaptures(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	sink := &recordSink{}

	logger := slog.New(NewCaptureHandler(inner, sink.add)).With("action_id", "abc")
	logger.Info("acquiring", "frames", 3)

	if !strings.Contains(buf.String(), "acquiring") {
		t.Error("record not forwarded to inner handler")
	}

	recs := sink.all()
	if len(recs) != 1 {
		t.Fatalf("captured %d records, want 1", len(recs))
	}
	r := recs[0]
	if r.Message != "acquiring" {
		t.Errorf("Message = %q, want acquiring", r.Message)
	}
	if r.LevelName != "INFO" || r.LevelNo != 20 {
		t.Errorf("level = %s/%d, want INFO/20", r.LevelName, r.LevelNo)
	}
	if r.Created <= 0 {
		t.Error("Created not set")
	}
	if r.Filename != "capture_test.go" {
		t.Errorf("Filename = %q, want capture_test.go", r.Filename)
	}
	if r.LineNo == 0 {
		t.Error("LineNo not set")
	}
	if r.Attrs["action_id"] != "abc" {
		t.Errorf("Attrs[action_id] = %v, want abc", r.Attrs["action_id"])
	}
	if r.Attrs["frames"] != int64(3) {
		t.Errorf("Attrs[frames] = %v (%T), want int64 3", r.Attrs["frames"], r.Attrs["frames"])
	}
}

func TestCaptureHandler_CapturesBelowInnerLevel(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	sink := &recordSink{}

	logger := slog.New(NewCaptureHandler(inner, sink.add))
	logger.Debug("detail")

	if buf.Len() != 0 {
		t.Errorf("inner handler wrote a debug record: %q", buf.String())
	}
	recs := sink.all()
	if len(recs) != 1 || recs[0].LevelName != "DEBUG" || recs[0].LevelNo != 10 {
		t.Errorf("captured %+v, want one DEBUG record", recs)
	}
}

func TestCaptureHandler_Detach(t *testing.T) {
	sink := &recordSink{}
	h := NewCaptureHandler(nil, sink.add)
	logger := slog.New(h).With("component", "test")

	logger.Warn("before")
	h.Detach()
	logger.Warn("after")

	if !h.Detached() {
		t.Error("Detached() = false after Detach")
	}
	recs := sink.all()
	if len(recs) != 1 || recs[0].Message != "before" {
		t.Errorf("captured %+v, want only the record logged before Detach", recs)
	}
	if recs[0].LevelName != "WARNING" || recs[0].LevelNo != 30 {
		t.Errorf("level = %s/%d, want WARNING/30", recs[0].LevelName, recs[0].LevelNo)
	}
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("detached handler over discard inner reports enabled")
	}
}

func TestCaptureHandler_Groups(t *testing.T) {
	sink := &recordSink{}
	logger := slog.New(NewCaptureHandler(nil, sink.add)).WithGroup("stage").With("axis", "x")
	logger.Error("limit hit", "position", 12)

	recs := sink.all()
	if len(recs) != 1 {
		t.Fatalf("captured %d records, want 1", len(recs))
	}
	if recs[0].Attrs["stage.axis"] != "x" {
		t.Errorf("Attrs = %v, want stage.axis=x", recs[0].Attrs)
	}
	if recs[0].Attrs["stage.position"] != int64(12) {
		t.Errorf("Attrs = %v, want stage.position=12", recs[0].Attrs)
	}
	if recs[0].LevelNo != 40 {
		t.Errorf("LevelNo = %d, want 40", recs[0].LevelNo)
	}
}

func TestLogger_Capture(t *testing.T) {
	var buf bytes.Buffer
	base := &Logger{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	sink := &recordSink{}

	child, h := base.Capture(sink.add)
	child.Info("hello")
	h.Detach()
	child.Info("bye")

	if got := len(sink.all()); got != 1 {
		t.Errorf("captured %d records, want 1", got)
	}
	if strings.Count(buf.String(), "\n") != 2 {
		t.Errorf("inner handler output = %q, want both records", buf.String())
	}
}

package logging

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"
)

// Record is one captured log entry in the shape served to clients.
type Record struct {
	Message   string         `json:"message"`
	LevelName string         `json:"levelname"`
	LevelNo   int            `json:"levelno"`
	Created   float64        `json:"created"`
	Filename  string         `json:"filename"`
	LineNo    int            `json:"lineno"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Sink receives captured records.
type Sink func(Record)

// CaptureHandler is a slog.Handler that forwards every record to an inner
// handler and, until detached, also converts it to a Record for a sink.
//
// Handlers derived with WithAttrs and WithGroup share the parent's detach
// state, so detaching the root stops capture for every derived logger.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type CaptureHandler struct {
	inner    slog.Handler
	sink     Sink
	detached *atomic.Bool
	attrs    []slog.Attr
	group    string
}

// NewCaptureHandler creates a CaptureHandler. A nil inner handler discards
// forwarded records; only the sink sees them.
func NewCaptureHandler(inner slog.Handler, sink Sink) *CaptureHandler {
	if inner == nil {
		inner = discardHandler{}
	}
	return &CaptureHandler{
		inner:    inner,
		sink:     sink,
		detached: new(atomic.Bool),
	}
}

// Enabled implements slog.Handler. Capture is independent of the inner
// handler's level so a debug line still lands in the action log.
func (h *CaptureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if !h.detached.Load() && h.sink != nil {
		return true
	}
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *CaptureHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.detached.Load() && h.sink != nil {
		h.sink(h.toRecord(r))
	}
	if !h.inner.Enabled(ctx, r.Level) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.inner = h.inner.WithAttrs(attrs)
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), qualify(h.group, attrs)...)
	return &clone
}

// WithGroup implements slog.Handler.
func (h *CaptureHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.inner = h.inner.WithGroup(name)
	if h.group != "" {
		clone.group = h.group + "." + name
	} else {
		clone.group = name
	}
	return &clone
}

// Detach stops capture. Records keep flowing to the inner handler.
func (h *CaptureHandler) Detach() {
	h.detached.Store(true)
}

// Detached reports whether capture has stopped.
func (h *CaptureHandler) Detached() bool {
	return h.detached.Load()
}

func (h *CaptureHandler) toRecord(r slog.Record) Record {
	rec := Record{
		Message:   r.Message,
		LevelName: levelName(r.Level),
		LevelNo:   levelNo(r.Level),
		Created:   float64(r.Time.UnixNano()) / float64(time.Second),
	}
	if r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := frames.Next()
		rec.Filename = filepath.Base(f.File)
		rec.LineNo = f.Line
	}

	n := len(h.attrs) + r.NumAttrs()
	if n == 0 {
		return rec
	}
	rec.Attrs = make(map[string]any, n)
	for _, a := range h.attrs {
		rec.Attrs[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		rec.Attrs[key] = a.Value.Resolve().Any()
		return true
	})
	return rec
}

func qualify(group string, attrs []slog.Attr) []slog.Attr {
	if group == "" {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: group + "." + a.Key, Value: a.Value}
	}
	return out
}

// levelName maps slog levels onto the conventional upper-case names.
func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARNING"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// levelNo maps slog levels onto the numeric scale clients expect
// (DEBUG=10, INFO=20, WARNING=30, ERROR=40).
func levelNo(l slog.Level) int {
	switch {
	case l >= slog.LevelError:
		return 40
	case l >= slog.LevelWarn:
		return 30
	case l >= slog.LevelInfo:
		return 20
	default:
		return 10
	}
}

// discardHandler drops everything.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

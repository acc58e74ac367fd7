package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/labthings-core/internal/action"
	"github.com/nerrad567/labthings-core/internal/event"
	"github.com/nerrad567/labthings-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/labthings-core/internal/infrastructure/mqtt"
)

// fakeMQTT records publishes and subscriptions.
type fakeMQTT struct {
	mu        sync.Mutex
	connected bool
	published []published
	handlers  map[string]mqtt.MessageHandler
}

type published struct {
	topic    string
	payload  any
	retained bool
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeMQTT) PublishJSON(topic string, v any, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic, v, retained})
	return nil
}

func (f *fakeMQTT) Route(pattern string, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[pattern] = handler
	return nil
}

func (f *fakeMQTT) Unroute(pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, pattern)
	return nil
}

func (f *fakeMQTT) routed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *fakeMQTT) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeMQTT) all() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

func (f *fakeMQTT) deliver(t *testing.T, pattern, topic string, payload []byte) error {
	t.Helper()
	f.mu.Lock()
	h, ok := f.handlers[pattern]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for %s", pattern)
	}
	return h(topic, payload)
}

type fakeWriter struct {
	mu   sync.Mutex
	runs []influxdb.ActionRun
}

func (w *fakeWriter) WriteActionRun(run influxdb.ActionRun) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runs = append(w.runs, run)
}

func (w *fakeWriter) all() []influxdb.ActionRun {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]influxdb.ActionRun(nil), w.runs...)
}

type harness struct {
	pool     *action.Pool
	registry *action.Registry
	stream   *event.Stream
	mqtt     *fakeMQTT
	metrics  *fakeWriter
	relay    *Relay
}

func newHarness(t *testing.T, defs ...action.Definition) *harness {
	t.Helper()
	h := &harness{
		pool:     action.NewPool(action.Config{}, nil),
		registry: action.NewRegistry(),
		stream:   event.NewStream(100, time.Second),
		mqtt:     newFakeMQTT(),
		metrics:  &fakeWriter{},
	}
	for _, d := range defs {
		if err := h.registry.Register(d); err != nil {
			t.Fatalf("Register(%s) error = %v", d.Name, err)
		}
	}
	r, err := New(Options{
		Pool:     h.pool,
		Registry: h.registry,
		Stream:   h.stream,
		MQTT:     h.mqtt,
		Metrics:  h.metrics,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.relay = r
	h.pool.AddObserver(r.Observe)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(r.Stop)
	return h
}

// settle waits for every action and drains the relay queue.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.pool.Join(ctx); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	h.relay.Stop()
}

func echo(_ context.Context, input any) (any, error) { return input, nil }

func TestNew_RequiresPoolAndRegistry(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New() with no pool = nil error")
	}
}

func TestStart_Twice(t *testing.T) {
	h := newHarness(t)
	if err := h.relay.Start(context.Background()); err == nil {
		t.Error("second Start() = nil error")
	}
}

func TestStart_RoutesCommands(t *testing.T) {
	h := newHarness(t)
	for _, topic := range []string{mqtt.Topics{}.AllActionCommands(), mqtt.Topics{}.AllTaskStops()} {
		if _, ok := h.mqtt.handlers[topic]; !ok {
			t.Errorf("no route for %s", topic)
		}
	}
}

func TestObserve_FansOut(t *testing.T) {
	h := newHarness(t)

	a, err := h.pool.Spawn(context.Background(), "measure", func(ctx context.Context, _ any) (any, error) {
		action.UpdateProgress(ctx, 50)
		action.Logger(ctx).Info("half way")
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	h.settle(t)

	// Stream: every snapshot, the last one terminal.
	msgs, _ := h.stream.Since(0)
	if len(msgs) < 2 {
		t.Fatalf("stream has %d messages, want at least 2", len(msgs))
	}
	last := msgs[len(msgs)-1]
	if last.MessageType != event.MessageActionStatus {
		t.Errorf("MessageType = %s, want actionStatus", last.MessageType)
	}
	snap, ok := last.Data["measure"].(action.Snapshot)
	if !ok || snap.Status != action.StatusCompleted {
		t.Errorf("last stream data = %#v, want completed snapshot", last.Data)
	}

	// MQTT: retained status topic, final state last.
	pubs := h.mqtt.all()
	if len(pubs) == 0 {
		t.Fatal("nothing published")
	}
	final := pubs[len(pubs)-1]
	if final.topic != mqtt.Topics{}.TaskStatus(a.ID()) || !final.retained {
		t.Errorf("final publish = %+v", final)
	}
	if s := final.payload.(action.Snapshot); s.Status != action.StatusCompleted {
		t.Errorf("final published status = %s", s.Status)
	}

	// InfluxDB: exactly one run.
	runs := h.metrics.all()
	if len(runs) != 1 {
		t.Fatalf("wrote %d runs, want 1", len(runs))
	}
	run := runs[0]
	if run.ID != a.ID() || run.Action != "measure" || run.Status != "completed" || run.Progress != 50 || run.LogEntries != 1 {
		t.Errorf("run = %+v", run)
	}
	if run.Started.IsZero() || run.Completed.Before(run.Started) {
		t.Errorf("run times = %v .. %v", run.Started, run.Completed)
	}
}

func TestObserve_DisconnectedSkipsPublish(t *testing.T) {
	h := newHarness(t)
	h.mqtt.connected = false

	_, _ = h.pool.Spawn(context.Background(), "quick", echo)
	h.settle(t)

	if n := len(h.mqtt.all()); n != 0 {
		t.Errorf("published %d messages while disconnected", n)
	}
	if n := len(h.metrics.all()); n != 1 {
		t.Errorf("wrote %d runs, want 1", n)
	}
}

func TestObserve_ProgressNotReported(t *testing.T) {
	h := newHarness(t)
	_, _ = h.pool.Spawn(context.Background(), "quick", echo)
	h.settle(t)

	runs := h.metrics.all()
	if len(runs) != 1 || runs[0].Progress != -1 {
		t.Errorf("runs = %+v, want one with Progress -1", runs)
	}
}

func TestHandleActionCommand(t *testing.T) {
	h := newHarness(t, action.Definition{Name: "echo", Run: echo})

	err := h.mqtt.deliver(t, mqtt.Topics{}.AllActionCommands(), mqtt.Topics{}.ActionCommand("echo"), []byte(`{"n":3}`))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	h.settle(t)

	queue, _ := h.registry.Queue("echo")
	if len(queue) != 1 {
		t.Fatalf("queue length = %d, want 1", len(queue))
	}
	out, ok := queue[0].Output().(map[string]any)
	if !ok || out["n"] != float64(3) {
		t.Errorf("Output() = %#v, want decoded input", queue[0].Output())
	}
}

func TestHandleActionCommand_Errors(t *testing.T) {
	h := newHarness(t, action.Definition{Name: "echo", Run: echo})
	pattern := mqtt.Topics{}.AllActionCommands()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		wantErr error
	}{
		{"unknown action", mqtt.Topics{}.ActionCommand("missing"), nil, action.ErrUnknownAction},
		{"bad json", mqtt.Topics{}.ActionCommand("echo"), []byte("{"), nil},
		{"bad topic", "labthings/command/action", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.mqtt.deliver(t, pattern, tt.topic, tt.payload)
			if err == nil {
				t.Fatal("handler error = nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("handler error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if h.pool.Len() != 0 {
		t.Errorf("pool has %d actions after failed commands", h.pool.Len())
	}
}

func TestHandleActionCommand_AfterContextCancelled(t *testing.T) {
	pool := action.NewPool(action.Config{}, nil)
	registry := action.NewRegistry()
	_ = registry.Register(action.Definition{Name: "echo", Run: echo})
	fm := newFakeMQTT()
	r, _ := New(Options{Pool: pool, Registry: registry, MQTT: fm})

	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer r.Stop()
	cancel()

	err := fm.deliver(t, mqtt.Topics{}.AllActionCommands(), mqtt.Topics{}.ActionCommand("echo"), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("handler error = %v, want context.Canceled", err)
	}
}

func TestHandleTaskStop(t *testing.T) {
	h := newHarness(t)
	a, _ := h.pool.Spawn(context.Background(), "wait", func(ctx context.Context, _ any) (any, error) {
		<-action.Stopping(ctx)
		return nil, action.ErrCancelled
	})
	<-a.Started()

	if err := h.mqtt.deliver(t, mqtt.Topics{}.AllTaskStops(), mqtt.Topics{}.TaskStop(a.ID()), nil); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("action did not stop")
	}
	if a.Status() != action.StatusCancelled {
		t.Errorf("Status() = %s, want cancelled", a.Status())
	}
}

func TestHandleTaskStop_Unknown(t *testing.T) {
	h := newHarness(t)
	if err := h.mqtt.deliver(t, mqtt.Topics{}.AllTaskStops(), mqtt.Topics{}.TaskStop("missing"), nil); err == nil {
		t.Error("stopping an unknown task = nil error")
	}
}

func TestEmitEvent(t *testing.T) {
	h := newHarness(t)
	h.relay.EmitEvent("peak_found", map[string]any{"wavelength": 532.0})
	h.relay.Stop()

	msgs, _ := h.stream.Since(0)
	if len(msgs) != 1 || msgs[0].MessageType != event.MessageEvent {
		t.Fatalf("stream = %+v, want one event message", msgs)
	}
	pubs := h.mqtt.all()
	if len(pubs) != 1 || pubs[0].topic != mqtt.Topics{}.Event("peak_found") || pubs[0].retained {
		t.Errorf("published = %+v", pubs)
	}
}

func TestStop_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.relay.Stop()
	h.relay.Stop()

	if n := h.mqtt.routed(); n != 0 {
		t.Errorf("%d command routes left after Stop, want 0", n)
	}

	// Observing after Stop still reaches the stream.
	h.relay.Observe(action.Snapshot{ID: "x", Action: "late", Status: action.StatusCompleted})
	if _, seq := h.stream.Since(0); seq != 1 {
		t.Errorf("stream LastSeq = %d, want 1", seq)
	}
	if n := len(h.metrics.all()); n != 0 {
		t.Errorf("wrote %d runs after Stop", n)
	}
}

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/labthings-core/internal/action"
	"github.com/nerrad567/labthings-core/internal/event"
	"github.com/nerrad567/labthings-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/labthings-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/labthings-core/internal/owner"
)

// Relay operation constants.
const (
	// defaultQueueSize bounds snapshots waiting for the outbound worker.
	defaultQueueSize = 256
)

// MQTTClient is the subset of *mqtt.Client the relay uses.
// This allows mocking in tests.
type MQTTClient interface {
	// PublishJSON marshals v and publishes it.
	PublishJSON(topic string, v any, retained bool) error

	// Route delivers a command topic pattern to handler.
	Route(pattern string, handler mqtt.MessageHandler) error

	// Unroute stops delivering a command topic pattern.
	Unroute(pattern string) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// RunWriter records finished actions. Satisfied by *influxdb.Client.
type RunWriter interface {
	WriteActionRun(run influxdb.ActionRun)
}

// Logger is the logging surface the relay needs.
// Satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds the collaborators for a Relay. Pool and Registry are
// required; every other field is optional.
type Options struct {
	Pool     *action.Pool
	Registry *action.Registry
	Stream   *event.Stream
	MQTT     MQTTClient
	Metrics  RunWriter
	Logger   Logger

	// QueueSize bounds the outbound worker's backlog. Zero uses 256.
	QueueSize int
}

// outbound is one unit of work for the worker.
type outbound struct {
	topic    string
	payload  any
	retained bool
	run      *influxdb.ActionRun
}

// Relay connects the action pool to the event stream, MQTT and InfluxDB.
//
// Thread Safety: All methods are safe for concurrent use.
type Relay struct {
	pool     *action.Pool
	registry *action.Registry
	stream   *event.Stream
	mqtt     MQTTClient
	metrics  RunWriter
	logger   Logger

	queue chan outbound

	mu      sync.Mutex
	ctx     context.Context
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Relay. Call Start to begin command intake and outbound
// publishing.
func New(opts Options) (*Relay, error) {
	if opts.Pool == nil || opts.Registry == nil {
		return nil, errors.New("relay: pool and registry are required")
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Relay{
		pool:     opts.Pool,
		registry: opts.Registry,
		stream:   opts.Stream,
		mqtt:     opts.MQTT,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		queue:    make(chan outbound, opts.QueueSize),
		ctx:      context.Background(),
	}, nil
}

// Start subscribes to the command topics (when MQTT is configured) and
// starts the outbound worker.
//
// ctx is the parent for actions invoked over MQTT. Actions outlive it; its
// cancellation only stops further intake.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("relay: already started")
	}
	r.started = true
	r.ctx = ctx
	r.mu.Unlock()

	r.wg.Add(1)
	go r.worker()

	if r.mqtt == nil {
		return nil
	}

	topics := mqtt.Topics{}
	if err := r.mqtt.Route(topics.AllActionCommands(), r.handleActionCommand); err != nil {
		return fmt.Errorf("routing action commands: %w", err)
	}
	if err := r.mqtt.Route(topics.AllTaskStops(), r.handleTaskStop); err != nil {
		return fmt.Errorf("routing task stops: %w", err)
	}
	r.logger.Info("relay routing commands",
		"actions", topics.AllActionCommands(),
		"stops", topics.AllTaskStops())
	return nil
}

// Stop stops command intake, drains the outbound queue and stops the
// worker. Snapshots observed afterwards still reach the stream but are not
// published.
func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.queue)
	r.mu.Unlock()

	if r.mqtt != nil {
		topics := mqtt.Topics{}
		for _, pattern := range []string{topics.AllActionCommands(), topics.AllTaskStops()} {
			if err := r.mqtt.Unroute(pattern); err != nil {
				r.logger.Debug("unrouting command topic", "topic", pattern, "error", err)
			}
		}
	}
	r.wg.Wait()
}

// Observe is an action.Observer. It emits s on the stream and queues it for
// MQTT and InfluxDB.
//
// Intermediate snapshots are dropped when the queue is full. Terminal ones
// wait for room so the last published state is always the final one.
func (r *Relay) Observe(s action.Snapshot) {
	if r.stream != nil {
		r.stream.Emit(event.NewMessage(event.MessageActionStatus, s.Action, s))
	}

	var work []outbound
	if r.mqtt != nil {
		work = append(work, outbound{
			topic:    mqtt.Topics{}.TaskStatus(s.ID),
			payload:  s,
			retained: true,
		})
	}
	if r.metrics != nil && s.Status.Terminal() {
		run := actionRun(s)
		work = append(work, outbound{run: &run})
	}

	for _, w := range work {
		r.enqueue(w, s.Status.Terminal())
	}
}

// EmitEvent publishes a named Thing event on the stream and over MQTT.
func (r *Relay) EmitEvent(name string, payload any) {
	if r.stream != nil {
		r.stream.Emit(event.NewMessage(event.MessageEvent, name, payload))
	}
	if r.mqtt != nil {
		r.enqueue(outbound{topic: mqtt.Topics{}.Event(name), payload: payload}, false)
	}
}

func (r *Relay) enqueue(w outbound, mustDeliver bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || r.stopped {
		return
	}

	if mustDeliver {
		// Holding r.mu keeps Stop from closing the queue under us. The
		// worker never takes r.mu, so it keeps draining.
		r.queue <- w
		return
	}
	select {
	case r.queue <- w:
	default:
		r.logger.Warn("relay queue full, dropping update", "topic", w.topic)
	}
}

func (r *Relay) worker() {
	defer r.wg.Done()
	for w := range r.queue {
		if w.run != nil {
			r.metrics.WriteActionRun(*w.run)
			continue
		}
		if !r.mqtt.IsConnected() {
			continue
		}
		if err := r.mqtt.PublishJSON(w.topic, w.payload, w.retained); err != nil {
			r.logger.Warn("relay publish failed", "topic", w.topic, "error", err)
		}
	}
}

// handleActionCommand invokes the action named in topic with the JSON
// payload as input. No handoff lock is used: there is no caller waiting,
// so every error is recorded on the action.
func (r *Relay) handleActionCommand(topic string, payload []byte) error {
	name, ok := mqtt.Topics{}.ParseActionCommand(topic)
	if !ok {
		return fmt.Errorf("relay: unrecognised action topic %q", topic)
	}

	input, err := decodeInput(payload)
	if err != nil {
		return fmt.Errorf("relay: action %s: %w", name, err)
	}

	r.mu.Lock()
	parent := r.ctx
	r.mu.Unlock()
	if parent.Err() != nil {
		return fmt.Errorf("relay: action %s: intake stopped: %w", name, parent.Err())
	}

	a, err := r.registry.Invoke(owner.Fresh(parent), r.pool, name, action.WithInput(input))
	if err != nil {
		return fmt.Errorf("relay: invoking %s: %w", name, err)
	}
	r.logger.Info("action invoked over mqtt", "action", name, "action_id", a.ID())
	return nil
}

// handleTaskStop stops the task named in topic. The stop runs in its own
// goroutine because it may wait for the action's stop timeout.
func (r *Relay) handleTaskStop(topic string, _ []byte) error {
	id, ok := mqtt.Topics{}.ParseTaskStop(topic)
	if !ok {
		return fmt.Errorf("relay: unrecognised stop topic %q", topic)
	}
	a, ok := r.pool.Get(id)
	if !ok {
		return fmt.Errorf("relay: stop %s: task not found", id)
	}
	if a.Dead() {
		return nil
	}

	r.logger.Info("stopping task over mqtt", "action_id", id, "action", a.Name())
	go a.Stop(-1)
	return nil
}

// decodeInput turns an MQTT payload into action input. An empty payload is
// no input.
func decodeInput(payload []byte) (any, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var input any
	if err := json.Unmarshal(payload, &input); err != nil {
		return nil, fmt.Errorf("decoding input: %w", err)
	}
	return input, nil
}

// actionRun converts a terminal snapshot into an InfluxDB run record.
func actionRun(s action.Snapshot) influxdb.ActionRun {
	run := influxdb.ActionRun{
		ID:         s.ID,
		Action:     s.Action,
		Status:     string(s.Status),
		Progress:   -1,
		LogEntries: len(s.Log),
	}
	if s.Progress != nil {
		run.Progress = *s.Progress
	}
	if s.TimeStarted != nil {
		run.Started = *s.TimeStarted
	}
	if s.TimeCompleted != nil {
		run.Completed = *s.TimeCompleted
	}
	return run
}

package action

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/labthings-core/internal/deque"
)

// Definition describes a named action a Thing offers.
type Definition struct {
	// Name identifies the action in URLs and MQTT topics.
	Name string

	// Description is shown to clients.
	Description string

	// Run is the action body.
	Run Func

	// WaitFor is how long a synchronous invocation waits for the action to
	// finish before replying with its running state. Zero uses the server
	// default.
	WaitFor time.Duration

	// StopTimeout overrides the pool's cooperative stop timeout.
	StopTimeout time.Duration

	// QueueSize bounds how many recent invocations are listed for this
	// action. Zero uses deque.DefaultCapacity.
	QueueSize int
}

type registryEntry struct {
	def   Definition
	queue *deque.Deque[*Action]
}

// Registry maps action names to definitions and remembers recent
// invocations of each.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Register adds def.
//
// Returns:
//   - error: ErrInvalidDefinition if def has no name or body,
//     ErrDuplicateAction if the name is taken
func (r *Registry) Register(def Definition) error {
	if def.Name == "" || def.Run == nil {
		return fmt.Errorf("%w: name and run are required", ErrInvalidDefinition)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[def.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, def.Name)
	}
	r.entries[def.Name] = &registryEntry{
		def:   def,
		queue: deque.New[*Action](def.QueueSize),
	}
	return nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Definition{}, false
	}
	return e.def, true
}

// List returns every definition sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Record appends a to name's invocation queue. Unknown names are ignored.
func (r *Registry) Record(name string, a *Action) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if ok {
		e.queue.Append(a)
	}
}

// Queue returns name's recent invocations, oldest first.
func (r *Registry) Queue(name string) ([]*Action, bool) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.queue.Items(), true
}

// Invoke spawns the action registered under name on pool and records it in
// the action's queue. The definition's stop timeout is applied before opts.
//
// Returns:
//   - *Action: The running action
//   - error: ErrUnknownAction, or any error from Pool.Spawn
func (r *Registry) Invoke(ctx context.Context, pool *Pool, name string, opts ...Option) (*Action, error) {
	def, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}

	all := make([]Option, 0, len(opts)+1)
	if def.StopTimeout > 0 {
		all = append(all, WithStopTimeout(def.StopTimeout))
	}
	all = append(all, opts...)

	a, err := pool.Spawn(ctx, def.Name, def.Run, all...)
	if err != nil {
		return nil, err
	}
	r.Record(def.Name, a)
	return a, nil
}

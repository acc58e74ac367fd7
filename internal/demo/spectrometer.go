package demo

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nerrad567/labthings-core/internal/action"
)

// Spectrometer defaults.
const (
	DefaultIntegrationTime = 200 * time.Millisecond
	DefaultAverages        = 20

	// defaultNoise is the amplitude of uniform noise added to each sample.
	defaultNoise = 1.0 / 200

	xMin = -100
	xMax = 100

	peakSigma = 25.0
)

// EventEmitter publishes named Thing events. Satisfied by *relay.Relay.
type EventEmitter interface {
	EmitEvent(name string, payload any)
}

// Option configures a Spectrometer.
type Option func(*Spectrometer)

// WithIntegrationTime sets how long each acquisition takes.
func WithIntegrationTime(d time.Duration) Option {
	return func(s *Spectrometer) { s.integrationTime = d }
}

// WithEvents sets where peak_found events go.
func WithEvents(e EventEmitter) Option {
	return func(s *Spectrometer) { s.events = e }
}

// WithSeed makes the noise reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Spectrometer) { s.rng = rand.New(rand.NewPCG(seed, seed)) }
}

// Spectrometer is a pretend instrument producing a noisy Gaussian trace.
//
// Thread Safety: All methods are safe for concurrent use.
type Spectrometer struct {
	mu              sync.Mutex
	integrationTime time.Duration
	noise           float64
	rng             *rand.Rand
	events          EventEmitter
}

// NewSpectrometer creates a Spectrometer.
func NewSpectrometer(opts ...Option) *Spectrometer {
	s := &Spectrometer{
		integrationTime: DefaultIntegrationTime,
		noise:           defaultNoise,
		rng:             rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IntegrationTime returns the acquisition time.
func (s *Spectrometer) IntegrationTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.integrationTime
}

// SetIntegrationTime changes the acquisition time for later acquisitions.
func (s *Spectrometer) SetIntegrationTime(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("integration time must be positive, got %v", d)
	}
	s.mu.Lock()
	s.integrationTime = d
	s.mu.Unlock()
	return nil
}

// Wavelengths returns the x axis of every trace.
func Wavelengths() []float64 {
	out := make([]float64, 0, xMax-xMin)
	for x := xMin; x < xMax; x++ {
		out = append(out, float64(x))
	}
	return out
}

// trace generates one noisy trace without waiting.
func (s *Spectrometer) trace() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]float64, 0, xMax-xMin)
	for x := xMin; x < xMax; x++ {
		z := float64(x) / peakSigma
		v := math.Exp(-z*z/2) / math.Sqrt(2*math.Pi) / peakSigma
		out = append(out, v+s.noise*s.rng.Float64())
	}
	return out
}

// Acquire waits one integration time and returns a trace. A stop request
// or cancellation of ctx interrupts the wait.
func (s *Spectrometer) Acquire(ctx context.Context) ([]float64, error) {
	if err := action.Sleep(ctx, s.IntegrationTime()); err != nil {
		return nil, err
	}
	return s.trace(), nil
}

// emit forwards an event if an emitter is configured.
func (s *Spectrometer) emit(name string, payload any) {
	if s.events != nil {
		s.events.EmitEvent(name, payload)
	}
}

package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/nerrad567/labthings-core/internal/action"
)

// Definitions returns the spectrometer's actions.
func (s *Spectrometer) Definitions() []action.Definition {
	return []action.Definition{
		{
			Name:        "average_data",
			Description: "Average n acquisitions. Input: {\"averages\": n}. Stops cleanly between acquisitions.",
			Run:         s.averageData,
		},
		{
			Name:        "integrate_forever",
			Description: "Acquire until terminated. Ignores cooperative stop requests.",
			Run:         s.integrateForever,
			StopTimeout: time.Second,
		},
		{
			Name:        "find_peak",
			Description: "Locate the peak near a wavelength. Input: {\"wavelength\": x, \"tolerance\": t}. Fails with 404 if none is found.",
			Run:         s.findPeak,
			WaitFor:     5 * time.Second,
		},
	}
}

// RegisterAll registers every spectrometer action with r.
func (s *Spectrometer) RegisterAll(r *action.Registry) error {
	for _, def := range s.Definitions() {
		if err := r.Register(def); err != nil {
			return fmt.Errorf("registering %s: %w", def.Name, err)
		}
	}
	return nil
}

func (s *Spectrometer) averageData(ctx context.Context, input any) (any, error) {
	n, err := intArg(input, "averages", DefaultAverages)
	if err != nil {
		return nil, action.Abort(http.StatusBadRequest, err.Error())
	}
	if n <= 0 {
		return nil, action.Abort(http.StatusBadRequest, fmt.Sprintf("averages must be positive, got %d", n))
	}

	log := action.Logger(ctx)
	log.Warn("starting an averaged measurement, this may take a while", "averages", n)

	var sum []float64
	for i := 0; i < n; i++ {
		trace, err := s.Acquire(ctx)
		if err != nil {
			log.Info("measurement stopped", "completed", i)
			return nil, err
		}
		if sum == nil {
			sum = make([]float64, len(trace))
		}
		for j, v := range trace {
			sum[j] += v
		}

		action.UpdateProgress(ctx, (i+1)*100/n)
		action.UpdateData(ctx, map[string]any{"acquired": i + 1})
	}

	for j := range sum {
		sum[j] /= float64(n)
	}
	log.Info("measurement finished", "averages", n)
	return sum, nil
}

// integrateForever only returns when its context is cancelled, which
// happens on forced termination.
func (s *Spectrometer) integrateForever(ctx context.Context, _ any) (any, error) {
	log := action.Logger(ctx)
	for count := 1; ; count++ {
		select {
		case <-ctx.Done():
			log.Info("integration interrupted", "acquisitions", count-1)
			return nil, context.Cause(ctx)
		case <-time.After(s.IntegrationTime()):
		}
		_ = s.trace()
		action.UpdateData(ctx, map[string]any{"acquisitions": count})
	}
}

// Peak is the result of find_peak.
type Peak struct {
	Wavelength float64 `json:"wavelength"`
	Height     float64 `json:"height"`
}

func (s *Spectrometer) findPeak(ctx context.Context, input any) (any, error) {
	target, err := floatArg(input, "wavelength", 0)
	if err != nil {
		return nil, action.Abort(http.StatusBadRequest, err.Error())
	}
	tolerance, err := floatArg(input, "tolerance", 10)
	if err != nil {
		return nil, action.Abort(http.StatusBadRequest, err.Error())
	}

	trace, err := s.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	xs := Wavelengths()
	best := 0
	for i, v := range trace {
		if v > trace[best] {
			best = i
		}
	}
	peak := Peak{Wavelength: xs[best], Height: trace[best]}

	if math.Abs(peak.Wavelength-target) > tolerance {
		return nil, action.Abort(http.StatusNotFound,
			fmt.Sprintf("no peak within %g of %g", tolerance, target))
	}

	action.Logger(ctx).Info("peak found", "wavelength", peak.Wavelength)
	s.emit("peak_found", peak)
	return peak, nil
}

// intArg reads an integer field from decoded JSON input.
func intArg(input any, key string, def int) (int, error) {
	f, err := floatArg(input, key, float64(def))
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%s must be an integer, got %g", key, f)
	}
	return int(f), nil
}

// floatArg reads a numeric field from decoded JSON input. Missing input or
// a missing key yields def.
func floatArg(input any, key string, def float64) (float64, error) {
	if input == nil {
		return def, nil
	}
	m, ok := input.(map[string]any)
	if !ok {
		return 0, fmt.Errorf("input must be an object, got %T", input)
	}
	v, ok := m[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}

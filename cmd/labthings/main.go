// LabThings - long-running hardware actions over HTTP, WebSocket and MQTT.
//
// This is the main entry point for a LabThings server. It hosts one Thing
// (a simulated spectrometer by default) whose actions run in the background,
// report progress and logs while they run, and can be stopped by clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/labthings-core/internal/action"
	"github.com/nerrad567/labthings-core/internal/api"
	"github.com/nerrad567/labthings-core/internal/demo"
	"github.com/nerrad567/labthings-core/internal/event"
	"github.com/nerrad567/labthings-core/internal/infrastructure/config"
	"github.com/nerrad567/labthings-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/labthings-core/internal/infrastructure/logging"
	"github.com/nerrad567/labthings-core/internal/infrastructure/metrics"
	"github.com/nerrad567/labthings-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/labthings-core/internal/relay"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting LabThings",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	pool := action.NewPool(action.Config{
		MaxLen:      cfg.Actions.MaxLen,
		StopTimeout: cfg.Actions.StopTimeout,
		LogCapacity: cfg.Actions.LogCapacity,
	}, log)
	registry := action.NewRegistry()

	collector := metrics.New()
	pool.AddObserver(collector.Observe)

	stream := event.NewStream(cfg.Events.HistorySize, cfg.Events.StaleTimeout)
	stream.SetLogger(log)

	checks := make(map[string]api.HealthChecker)
	relayOpts := relay.Options{
		Pool:     pool,
		Registry: registry,
		Stream:   stream,
		Logger:   log,
	}

	// Connect to MQTT broker (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT, cfg.Thing.ID)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
			"thing_id", mqttClient.ThingID(),
		)
		relayOpts.MQTT = mqttClient
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Thing.ID)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		relayOpts.Metrics = influxClient
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	r, err := relay.New(relayOpts)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}
	pool.AddObserver(r.Observe)
	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("starting relay: %w", err)
	}
	defer func() {
		log.Info("stopping relay")
		r.Stop()
	}()

	spectrometer := demo.NewSpectrometer(demo.WithEvents(r))
	if err := spectrometer.RegisterAll(registry); err != nil {
		return fmt.Errorf("registering actions: %w", err)
	}
	log.Info("actions registered", "count", len(registry.List()))

	// Deferred before the API server so running actions are stopped after
	// the listener has closed.
	defer func() {
		if forced := pool.Kill(cfg.Actions.StopTimeout); forced > 0 {
			log.Warn("actions terminated at shutdown", "count", forced)
		}
	}()

	srv, err := api.New(api.Deps{
		Thing:    cfg.Thing,
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Actions:  cfg.Actions,
		Logger:   log,
		Pool:     pool,
		Registry: registry,
		Stream:   stream,
		Checks:   checks,
		Metrics:  collector.Handler(),
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal",
		"thing", cfg.Thing.ID,
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. Running actions
	// 3. Relay
	// 4. InfluxDB (if enabled)
	// 5. MQTT (if enabled)

	return nil
}

// getConfigPath returns the configuration file path.
// Uses LABTHINGS_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	return config.PathFromEnv()
}

// healthCheck verifies every optional backend is reachable.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, check := range checks {
		if err := check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

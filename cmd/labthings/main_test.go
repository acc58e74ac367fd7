package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/labthings-core/internal/api"
	"github.com/nerrad567/labthings-core/internal/infrastructure/config"
)

// writeConfig writes a minimal config to a temp dir and points
// LABTHINGS_CONFIG at it.
func writeConfig(t *testing.T, content string) {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "test-config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("LABTHINGS_CONFIG", configPath)
}

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func testConfig(port int, extra string) string {
	return fmt.Sprintf(`
thing:
  id: test-thing

api:
  host: "127.0.0.1"
  port: %d

logging:
  level: error
  format: text
  output: stdout
%s`, port, extra)
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("LABTHINGS_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_ValidationFailure verifies run rejects a config that fails validation.
func TestRun_ValidationFailure(t *testing.T) {
	writeConfig(t, testConfig(8080, `
actions:
  max_len: 0
`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with actions.max_len 0")
	}
}

// TestRun_SuccessfulStartupAndShutdown starts the server with every optional
// backend disabled, waits for /health and shuts down cleanly.
func TestRun_SuccessfulStartupAndShutdown(t *testing.T) {
	port := freePort(t)
	writeConfig(t, testConfig(port, ""))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url) //nolint:gosec // test URL
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("health status = %d, want 200", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never became healthy: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run() error = %v, want nil", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}
}

// TestRun_MQTTUnavailable verifies run fails when MQTT is enabled but the
// broker cannot be reached.
func TestRun_MQTTUnavailable(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the MQTT connect timeout")
	}
	writeConfig(t, testConfig(freePort(t), `
mqtt:
  enabled: true
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "test-client"
`))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail without an MQTT broker")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("LABTHINGS_CONFIG", "")

	if path := getConfigPath(); path != config.DefaultPath {
		t.Errorf("getConfigPath() = %q, want %q", path, config.DefaultPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("LABTHINGS_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

// TestHealthCheck reports the failing backend by name.
func TestHealthCheck(t *testing.T) {
	ctx := context.Background()
	if err := healthCheck(ctx, nil); err != nil {
		t.Errorf("healthCheck(nil) = %v, want nil", err)
	}

	err := healthCheck(ctx, map[string]api.HealthChecker{
		"influxdb": fakeChecker{err: fmt.Errorf("unreachable")},
	})
	if err == nil || err.Error() != "influxdb: unreachable" {
		t.Errorf("healthCheck() = %v, want influxdb: unreachable", err)
	}
}

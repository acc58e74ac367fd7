package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
thing:
  id: "spectrometer-1"
  name: "Bench spectrometer"
api:
  host: "127.0.0.1"
  port: 8080
actions:
  max_len: 20
  stop_timeout: 250ms
mqtt:
  broker:
    host: "broker.local"
    port: 1883
  qos: 1
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Thing.ID != "spectrometer-1" {
		t.Errorf("Thing.ID = %q, want %q", cfg.Thing.ID, "spectrometer-1")
	}
	if cfg.Actions.MaxLen != 20 {
		t.Errorf("Actions.MaxLen = %d, want 20", cfg.Actions.MaxLen)
	}
	if cfg.Actions.StopTimeout != 250*time.Millisecond {
		t.Errorf("Actions.StopTimeout = %v, want 250ms", cfg.Actions.StopTimeout)
	}
	// Untouched sections keep their defaults.
	if cfg.Actions.LogCapacity != 100 {
		t.Errorf("Actions.LogCapacity = %d, want default 100", cfg.Actions.LogCapacity)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfig(t, `
thing:
  id: ""
`))
	if err == nil {
		t.Error("Load() expected validation error for empty thing.id, got nil")
	}
}

func TestLoad_BadEnvOverride(t *testing.T) {
	t.Setenv("LABTHINGS_API_PORT", "not-a-number")
	_, err := Load(writeConfig(t, "thing:\n  id: x\n"))
	if err == nil {
		t.Error("Load() expected error for malformed LABTHINGS_API_PORT, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}, wantErr: false},
		{name: "missing thing ID", mutate: func(c *Config) { c.Thing.ID = "" }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "zero pool size", mutate: func(c *Config) { c.Actions.MaxLen = 0 }, wantErr: true},
		{name: "zero stop timeout", mutate: func(c *Config) { c.Actions.StopTimeout = 0 }, wantErr: true},
		{name: "zero log capacity", mutate: func(c *Config) { c.Actions.LogCapacity = 0 }, wantErr: true},
		{name: "negative wait", mutate: func(c *Config) { c.Actions.WaitFor = -time.Second }, wantErr: true},
		{name: "zero history", mutate: func(c *Config) { c.Events.HistorySize = 0 }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{
			name: "influx enabled without URL",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("LABTHINGS_THING_ID", "microscope")
	t.Setenv("LABTHINGS_API_HOST", "192.168.1.1")
	t.Setenv("LABTHINGS_API_PORT", "9000")
	t.Setenv("LABTHINGS_ACTIONS_MAX_LEN", "7")
	t.Setenv("LABTHINGS_ACTIONS_STOP_TIMEOUT", "2s")
	t.Setenv("LABTHINGS_MQTT_HOST", "mqtt.example.com")
	t.Setenv("LABTHINGS_MQTT_USERNAME", "testuser")
	t.Setenv("LABTHINGS_MQTT_PASSWORD", "testpass")
	t.Setenv("LABTHINGS_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("LABTHINGS_LOG_LEVEL", "debug")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Thing.ID != "microscope" {
		t.Errorf("Thing.ID = %q, want %q", cfg.Thing.ID, "microscope")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	if cfg.Actions.MaxLen != 7 {
		t.Errorf("Actions.MaxLen = %d, want 7", cfg.Actions.MaxLen)
	}
	if cfg.Actions.StopTimeout != 2*time.Second {
		t.Errorf("Actions.StopTimeout = %v, want 2s", cfg.Actions.StopTimeout)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v, want testuser/testpass", cfg.MQTT.Auth)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("LABTHINGS_CONFIG", "")
	if got := PathFromEnv(); got != DefaultPath {
		t.Errorf("PathFromEnv() = %q, want %q", got, DefaultPath)
	}
	t.Setenv("LABTHINGS_CONFIG", "/etc/labthings.yaml")
	if got := PathFromEnv(); got != "/etc/labthings.yaml" {
		t.Errorf("PathFromEnv() = %q, want /etc/labthings.yaml", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Actions.MaxLen != 100 {
		t.Errorf("defaultConfig Actions.MaxLen = %d, want 100", cfg.Actions.MaxLen)
	}
	if cfg.Actions.StopTimeout != 5*time.Second {
		t.Errorf("defaultConfig Actions.StopTimeout = %v, want 5s", cfg.Actions.StopTimeout)
	}
	if cfg.Events.StaleTimeout != 5*time.Second {
		t.Errorf("defaultConfig Events.StaleTimeout = %v, want 5s", cfg.Events.StaleTimeout)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}

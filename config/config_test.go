package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	c := Default()
	c.Security.APIKey = "test-key"
	c.Schedule.Timezone = "UTC"
	return c
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", modify: func(c *Config) {}},
		{name: "invalid port - zero", modify: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "invalid port - too large", modify: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "missing database path", modify: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "missing API key", modify: func(c *Config) { c.Security.APIKey = "" }, wantErr: true},
		{name: "missing snapshot dir", modify: func(c *Config) { c.Snapshot.Dir = "" }, wantErr: true},
		{name: "zero tick interval", modify: func(c *Config) { c.Engine.TickInterval = 0 }, wantErr: true},
		{name: "negative allowance", modify: func(c *Config) { c.Engine.EmergencyAllowance = -1 }, wantErr: true},
		{name: "zero allowance is allowed", modify: func(c *Config) { c.Engine.EmergencyAllowance = 0 }},
		{name: "unknown timezone", modify: func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "unknown authority", modify: func(c *Config) { c.Restriction.Authority = "firewall" }, wantErr: true},
		{name: "webhook without url", modify: func(c *Config) { c.Restriction.Authority = "webhook" }, wantErr: true},
		{
			name: "webhook with url",
			modify: func(c *Config) {
				c.Restriction.Authority = "webhook"
				c.Restriction.Webhook.URL = "http://127.0.0.1:9000/restrictions"
			},
		},
		{name: "bad log format", modify: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.modify(c)
			err := c.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"server": {"host": "0.0.0.0", "port": 9090},
		"database": {"path": "/var/lib/focusgate/focusgate.db"},
		"security": {"api_key": "secret"},
		"engine": {"emergency_allowance": 5, "tick_interval": "500ms"},
		"schedule": {"timezone": "Europe/Berlin", "reconcile_interval": "30s"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Security.APIKey)
	assert.Equal(t, 5, cfg.Engine.EmergencyAllowance)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.TickInterval.Std())
	assert.Equal(t, 30*time.Second, cfg.Schedule.ReconcileInterval.Std())
	// untouched values keep their defaults
	assert.Equal(t, 24*time.Hour, cfg.Engine.QuotaPeriod.Std())
	assert.Equal(t, "passive", cfg.Restriction.Authority)
	assert.Equal(t, 200, cfg.Snapshot.MaxCompleted)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 8181
security:
  api_key: yaml-secret
schedule:
  timezone: UTC
restriction:
  authority: webhook
  webhook:
    url: http://127.0.0.1:9000/restrictions
    timeout: 2s
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "webhook", cfg.Restriction.Authority)
	assert.Equal(t, 2*time.Second, cfg.Restriction.Webhook.Timeout.Std())
	assert.Equal(t, "text", cfg.Logging.Format)

	loc, err := cfg.Schedule.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"security":{"api_key":"k"},"engine":{"tick_interval":"soon"}}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"port":8080}}`), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FOCUSGATE_SERVER_PORT", "9191")
	t.Setenv("FOCUSGATE_SECURITY_API_KEY", "env-secret")
	t.Setenv("FOCUSGATE_SNAPSHOT_DIR", "/tmp/focusgate-snapshots")
	t.Setenv("FOCUSGATE_ENGINE_QUOTA_PERIOD", "12h")
	t.Setenv("FOCUSGATE_SCHEDULE_TIMEZONE", "UTC")
	t.Setenv("FOCUSGATE_RESTRICTION_AUTHORITY", "webhook")
	t.Setenv("FOCUSGATE_RESTRICTION_WEBHOOK_URL", "http://127.0.0.1:9000/restrictions")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "env-secret", cfg.Security.APIKey)
	assert.Equal(t, "/tmp/focusgate-snapshots", cfg.Snapshot.Dir)
	assert.Equal(t, 12*time.Hour, cfg.Engine.QuotaPeriod.Std())
	assert.Equal(t, "http://127.0.0.1:9000/restrictions", cfg.Restriction.Webhook.URL)
	// defaults survive when the variable is unset
	assert.Equal(t, "./focusgate.db", cfg.Database.Path)
}

func TestLoadFromEnv_MissingAPIKey(t *testing.T) {
	t.Setenv("FOCUSGATE_SECURITY_API_KEY", "")

	_, err := LoadFromEnv()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

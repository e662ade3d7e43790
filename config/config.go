// Package config loads focusgate settings from a JSON or YAML file or from
// FOCUSGATE_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv
const EnvPrefix = "FOCUSGATE"

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `json:"server" yaml:"server"`
	Database    DatabaseConfig    `json:"database" yaml:"database"`
	Security    SecurityConfig    `json:"security" yaml:"security"`
	Snapshot    SnapshotConfig    `json:"snapshot" yaml:"snapshot"`
	Engine      EngineConfig      `json:"engine" yaml:"engine"`
	Schedule    ScheduleConfig    `json:"schedule" yaml:"schedule"`
	Restriction RestrictionConfig `json:"restriction" yaml:"restriction"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `json:"host" yaml:"host" split_words:"true"`
	Port int    `json:"port" yaml:"port" split_words:"true"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path" split_words:"true"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	APIKey string `json:"api_key" yaml:"api_key" split_words:"true"`
}

// SnapshotConfig locates the shared snapshot directory read by extension
// processes
type SnapshotConfig struct {
	Dir          string `json:"dir" yaml:"dir" split_words:"true"`
	MaxCompleted int    `json:"max_completed" yaml:"max_completed" split_words:"true"`
}

// EngineConfig tunes the session engine and the emergency quota
type EngineConfig struct {
	TickInterval       Duration `json:"tick_interval" yaml:"tick_interval" split_words:"true"`
	EmergencyAllowance int      `json:"emergency_allowance" yaml:"emergency_allowance" split_words:"true"`
	QuotaPeriod        Duration `json:"quota_period" yaml:"quota_period" split_words:"true"`
}

// ScheduleConfig controls schedule evaluation and the reconciler
type ScheduleConfig struct {
	Timezone          string   `json:"timezone" yaml:"timezone" split_words:"true"`
	ReconcileInterval Duration `json:"reconcile_interval" yaml:"reconcile_interval" split_words:"true"`
}

// RestrictionConfig selects the authority that enforces blocked targets
type RestrictionConfig struct {
	Authority string        `json:"authority" yaml:"authority" split_words:"true"`
	Webhook   WebhookConfig `json:"webhook" yaml:"webhook"`
}

// WebhookConfig configures the webhook authority
type WebhookConfig struct {
	URL      string   `json:"url" yaml:"url" split_words:"true"`
	APIKey   string   `json:"api_key" yaml:"api_key" split_words:"true"`
	Timeout  Duration `json:"timeout" yaml:"timeout" split_words:"true"`
	RetryMax int      `json:"retry_max" yaml:"retry_max" split_words:"true"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" split_words:"true"`
	Format string `json:"format" yaml:"format" split_words:"true"`
}

// Default returns a configuration with every optional value filled in
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "127.0.0.1", Port: 8080},
		Database: DatabaseConfig{Path: "./focusgate.db"},
		Snapshot: SnapshotConfig{Dir: "./snapshots", MaxCompleted: 200},
		Engine: EngineConfig{
			TickInterval:       Duration(time.Second),
			EmergencyAllowance: 3,
			QuotaPeriod:        Duration(24 * time.Hour),
		},
		Schedule: ScheduleConfig{
			Timezone:          "Local",
			ReconcileInterval: Duration(time.Minute),
		},
		Restriction: RestrictionConfig{
			Authority: "passive",
			Webhook: WebhookConfig{
				Timeout:  Duration(5 * time.Second),
				RetryMax: 3,
			},
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port", ErrInvalidConfig)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}

	if c.Security.APIKey == "" {
		return fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}

	if c.Snapshot.Dir == "" {
		return fmt.Errorf("%w: snapshot directory is required", ErrInvalidConfig)
	}
	if c.Snapshot.MaxCompleted <= 0 {
		return fmt.Errorf("%w: snapshot max_completed must be positive", ErrInvalidConfig)
	}

	if c.Engine.TickInterval.Std() <= 0 {
		return fmt.Errorf("%w: engine tick_interval must be positive", ErrInvalidConfig)
	}
	if c.Engine.EmergencyAllowance < 0 {
		return fmt.Errorf("%w: emergency_allowance cannot be negative", ErrInvalidConfig)
	}
	if c.Engine.QuotaPeriod.Std() <= 0 {
		return fmt.Errorf("%w: quota_period must be positive", ErrInvalidConfig)
	}

	if _, err := c.Schedule.Location(); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Schedule.Timezone, err)
	}
	if c.Schedule.ReconcileInterval.Std() <= 0 {
		return fmt.Errorf("%w: reconcile_interval must be positive", ErrInvalidConfig)
	}

	switch c.Restriction.Authority {
	case "passive":
	case "webhook":
		if c.Restriction.Webhook.URL == "" {
			return fmt.Errorf("%w: webhook url is required for the webhook authority", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown restriction authority %q", ErrInvalidConfig, c.Restriction.Authority)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log format must be json or text", ErrInvalidConfig)
	}

	return nil
}

// Location resolves the configured timezone
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

// Load loads configuration from a JSON or YAML file. Values absent from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigFileNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromEnv loads configuration from FOCUSGATE_* environment variables,
// e.g. FOCUSGATE_SERVER_PORT or FOCUSGATE_RESTRICTION_WEBHOOK_URL
func LoadFromEnv() (*Config, error) {
	config := Default()
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Duration is a time.Duration written as "90s" or "15m" in files and
// environment variables
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Decode implements envconfig.Decoder
func (d *Duration) Decode(value string) error {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	return d.Decode(s)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.Decode(value.Value)
}

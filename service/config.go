package service

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/atomic"
	"gopkg.in/yaml.v3"

	"github.com/courtmix/courtmix/scheduler"
)

// Snapshot storage backends.
const (
	StorageBackendMemory   = "memory"
	StorageBackendFile     = "file"
	StorageBackendPostgres = "postgres"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var activeConfig = atomic.NewPointer((*Config)(nil))

// ActiveConfig returns the process-wide service configuration, or nil before
// StoreConfig has run.
func ActiveConfig() *Config {
	return activeConfig.Load()
}

// StoreConfig publishes cfg as the process-wide configuration.
func StoreConfig(cfg *Config) {
	activeConfig.Store(cfg)
}

// Config is the full service configuration: identity, logging, the HTTP and
// WebSocket surface, the scheduler tuning handed to new sessions, and the
// snapshot storage backend.
type Config struct {
	Name      string            `yaml:"name" json:"name" validate:"required"`
	Logger    LoggerConfig      `yaml:"logger" json:"logger"`
	API       APIConfig         `yaml:"api" json:"api"`
	Socket    SocketConfig      `yaml:"socket" json:"socket"`
	Metrics   MetricsConfig     `yaml:"metrics" json:"metrics"`
	Scheduler *scheduler.Config `yaml:"scheduler" json:"scheduler"`
	Storage   StorageConfig     `yaml:"storage" json:"storage"`
}

type LoggerConfig struct {
	Level      string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb" validate:"min=1"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups" validate:"min=0"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days" validate:"min=0"`
}

type APIConfig struct {
	Address        string   `yaml:"address" json:"address" validate:"required"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	ReadTimeoutMs  int      `yaml:"read_timeout_ms" json:"read_timeout_ms" validate:"min=0"`
	IdleTimeoutMs  int      `yaml:"idle_timeout_ms" json:"idle_timeout_ms" validate:"min=0"`
}

type SocketConfig struct {
	PingPeriodMs         int     `yaml:"ping_period_ms" json:"ping_period_ms" validate:"min=1"`
	PongWaitMs           int     `yaml:"pong_wait_ms" json:"pong_wait_ms" validate:"min=1"`
	WriteWaitMs          int     `yaml:"write_wait_ms" json:"write_wait_ms" validate:"min=1"`
	MaxMessageSizeBytes  int64   `yaml:"max_message_size_bytes" json:"max_message_size_bytes" validate:"min=1"`
	ReadBufferSizeBytes  int     `yaml:"read_buffer_size_bytes" json:"read_buffer_size_bytes" validate:"min=1"`
	WriteBufferSizeBytes int     `yaml:"write_buffer_size_bytes" json:"write_buffer_size_bytes" validate:"min=1"`
	EventRateLimit       float64 `yaml:"event_rate_limit" json:"event_rate_limit" validate:"min=0"`
	EventRateBurst       int     `yaml:"event_rate_burst" json:"event_rate_burst" validate:"min=1"`
}

type MetricsConfig struct {
	Prefix           string `yaml:"prefix" json:"prefix"`
	ReportingFreqSec int    `yaml:"reporting_freq_sec" json:"reporting_freq_sec" validate:"min=1"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend" json:"backend" validate:"oneof=memory file postgres"`
	Dir         string `yaml:"dir" json:"dir" validate:"required_if=Backend file"`
	PostgresDSN string `yaml:"postgres_dsn" json:"postgres_dsn" validate:"required_if=Backend postgres"`
}

// NewConfig returns the default service configuration.
func NewConfig() *Config {
	return &Config{
		Name: "courtmix",
		Logger: LoggerConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		API: APIConfig{
			Address:        ":8080",
			AllowedOrigins: []string{"*"},
			ReadTimeoutMs:  10000,
			IdleTimeoutMs:  60000,
		},
		Socket: SocketConfig{
			PingPeriodMs:         15000,
			PongWaitMs:           25000,
			WriteWaitMs:          5000,
			MaxMessageSizeBytes:  4096,
			ReadBufferSizeBytes:  4096,
			WriteBufferSizeBytes: 4096,
			EventRateLimit:       16,
			EventRateBurst:       32,
		},
		Metrics: MetricsConfig{
			Prefix:           "courtmix",
			ReportingFreqSec: 60,
		},
		Scheduler: scheduler.NewConfig(),
		Storage: StorageConfig{
			Backend: StorageBackendMemory,
			Dir:     "./data",
		},
	}
}

// Validate checks the service configuration, including the embedded
// scheduler tuning.
func (c *Config) Validate() error {
	if c.Scheduler == nil {
		c.Scheduler = scheduler.NewConfig()
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("invalid scheduler configuration: %w", err)
	}
	return nil
}

// LoadConfig builds the configuration from defaults overlaid with the YAML
// file at path, when one is given, and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Package config loads server configuration.  Values come from built-in
// defaults, then an optional YAML file, then BIOGATE_* environment
// variables, and are validated once before anything is constructed.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/biometric/codec"
)

const EnvPrefix = "BIOGATE_"

type Config struct {
	Env       string          `yaml:"env" env:"ENV"` // "dev" | "prod"
	HTTP      HTTPConfig      `yaml:"http" envPrefix:"HTTP_"`
	Storage   StorageConfig   `yaml:"storage" envPrefix:"STORAGE_"`
	Biometric BiometricConfig `yaml:"biometric" envPrefix:"BIOMETRIC_"`
	Devices   DevicesConfig   `yaml:"devices" envPrefix:"DEVICES_"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat" envPrefix:"HEARTBEAT_"`
	MQTT      MQTTConfig      `yaml:"mqtt" envPrefix:"MQTT_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr" env:"ADDR"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver" env:"DRIVER"` // memory | sqlite | postgres
	SQLitePath  string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	PostgresDSN string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
}

type BiometricConfig struct {
	// EncryptionKey is the process-wide template secret.
	EncryptionKey         string        `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
	MatchThreshold        float64       `yaml:"match_threshold" env:"MATCH_THRESHOLD"`
	CaptureTimeout        time.Duration `yaml:"capture_timeout" env:"CAPTURE_TIMEOUT"`
	MaxConcurrentAttempts int           `yaml:"max_concurrent_attempts" env:"MAX_CONCURRENT_ATTEMPTS"`
	Reader                ReaderConfig  `yaml:"reader" envPrefix:"READER_"`
}

type ReaderConfig struct {
	Mode       string        `yaml:"mode" env:"MODE"` // simulated | hardware
	Addr       string        `yaml:"addr" env:"ADDR"`
	DeviceID   string        `yaml:"device_id" env:"DEVICE_ID"`
	SessionKey string        `yaml:"session_key" env:"SESSION_KEY"`
	ReadDelay  time.Duration `yaml:"read_delay" env:"READ_DELAY"`
}

type DevicesConfig struct {
	// Known readers.  When empty any reader may submit verifications.
	Known []string `yaml:"known" env:"KNOWN"`
}

type HeartbeatConfig struct {
	RetentionDays      int `yaml:"retention_days" env:"RETENTION_DAYS"` // 0 = keep forever
	PruneIntervalHours int `yaml:"prune_interval_hours" env:"PRUNE_INTERVAL_HOURS"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	Broker      string `yaml:"broker" env:"BROKER"` // e.g. tcp://localhost:1883
	ClientID    string `yaml:"client_id" env:"CLIENT_ID"`
	Username    string `yaml:"username" env:"USERNAME"`
	Password    string `yaml:"password" env:"PASSWORD"`
	TopicPrefix string `yaml:"topic_prefix" env:"TOPIC_PREFIX"`
	QoS         int    `yaml:"qos" env:"QOS"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"` // json | text
	Output string `yaml:"output" env:"OUTPUT"` // stdout | stderr
}

// Load builds the configuration.  path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.Biometric.Reader.Mode = strings.ToLower(strings.TrimSpace(cfg.Biometric.Reader.Mode))
	cfg.Devices.Known = trimList(cfg.Devices.Known)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Env: "dev",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: "./data/biogate.db",
		},
		Biometric: BiometricConfig{
			MatchThreshold:        1.0,
			CaptureTimeout:        10 * time.Second,
			MaxConcurrentAttempts: 8,
			Reader: ReaderConfig{
				Mode:     "simulated",
				DeviceID: "SIM-READER-001",
			},
		},
		Heartbeat: HeartbeatConfig{
			RetentionDays:      30,
			PruneIntervalHours: 6,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "biogate",
			TopicPrefix: "biogate",
			QoS:         1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

var ErrInvalid = errors.New("configuration errors")

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Env != "dev" && c.Env != "prod" {
		errs = append(errs, "env must be dev or prod")
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, "http.addr is required")
	}

	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			errs = append(errs, "storage.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, "storage.postgres_dsn is required for the postgres driver")
		}
	default:
		errs = append(errs, "storage.driver must be memory, sqlite or postgres")
	}

	b := c.Biometric
	if b.EncryptionKey == "" {
		errs = append(errs, "biometric.encryption_key is required (set BIOGATE_BIOMETRIC_ENCRYPTION_KEY)")
	} else if len(b.EncryptionKey) < codec.MinSecretLen {
		errs = append(errs, fmt.Sprintf("biometric.encryption_key must be at least %d bytes", codec.MinSecretLen))
	}
	if math.IsNaN(b.MatchThreshold) || b.MatchThreshold <= 0 || b.MatchThreshold > 1 {
		errs = append(errs, "biometric.match_threshold must be in (0,1]")
	}
	if b.CaptureTimeout <= 0 {
		errs = append(errs, "biometric.capture_timeout must be positive")
	}
	if b.MaxConcurrentAttempts < 1 {
		errs = append(errs, "biometric.max_concurrent_attempts must be at least 1")
	}
	switch b.Reader.Mode {
	case "simulated":
		if len(b.Reader.SessionKey) > 64 {
			errs = append(errs, "biometric.reader.session_key must be at most 64 bytes")
		}
	case "hardware":
		if b.Reader.Addr == "" {
			errs = append(errs, "biometric.reader.addr is required in hardware mode")
		}
	default:
		errs = append(errs, "biometric.reader.mode must be simulated or hardware")
	}

	if c.Heartbeat.RetentionDays < 0 || c.Heartbeat.PruneIntervalHours < 0 {
		errs = append(errs, "heartbeat settings must not be negative")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			errs = append(errs, "mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, "logging.level: "+err.Error())
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, "logging.format must be json or text")
	}
	if c.Logging.Output != "stdout" && c.Logging.Output != "stderr" {
		errs = append(errs, "logging.output must be stdout or stderr")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

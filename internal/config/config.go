// Package config provides configuration for the Kartograph core: layered
// loading from defaults, YAML files, and environment variables, validation
// of the merged result, and hot reloading of tunable knobs in development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the merged configuration of both cores.
type Config struct {
	Environment Environment `yaml:"environment" validate:"required,oneof=development staging production"`

	Database     Database     `yaml:"database"`
	PolicyEngine PolicyEngine `yaml:"policy_engine"`
	Worker       Worker       `yaml:"worker"`
	Loader       Loader       `yaml:"loader"`
	Metrics      Metrics      `yaml:"metrics"`
	Tracing      Tracing      `yaml:"tracing"`
	Logging      Logging      `yaml:"logging"`

	// LoadedFrom records which sources contributed, in overlay order.
	LoadedFrom []string `yaml:"-"`
}

// Database configures the PostgreSQL pool both cores share.
type Database struct {
	URL            string        `yaml:"url" validate:"required"`
	MaxConns       int32         `yaml:"max_conns" validate:"gt=0"`
	MinConns       int32         `yaml:"min_conns" validate:"gte=0"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" validate:"gt=0"`
}

// PolicyEngine configures the relationship store client.
type PolicyEngine struct {
	Endpoint    string        `yaml:"endpoint" validate:"required"`
	Token       string        `yaml:"token" validate:"required"`
	Insecure    bool          `yaml:"insecure"`
	CallTimeout time.Duration `yaml:"call_timeout" validate:"gt=0"`
}

// Worker configures the outbox worker.
type Worker struct {
	BatchSize    int           `yaml:"batch_size" validate:"gt=0"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
	MaxRetries   int           `yaml:"max_retries" validate:"gte=0"`
	// Push disables the LISTEN channel when false; the poll floor remains.
	Push bool `yaml:"push"`
}

// Loader configures the bulk loader.
type Loader struct {
	GraphName string `yaml:"graph_name" validate:"required"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Tracing configures the OTLP trace exporter.
type Tracing struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" validate:"gte=0,lte=1"`
	Insecure   bool    `yaml:"insecure"`
}

// Logging configures the process logger.
type Logging struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Default returns the configuration every source overlays.
func Default(env Environment) *Config {
	return &Config{
		Environment: env,
		Database: Database{
			URL:            "postgres://localhost:5432/kartograph",
			MaxConns:       10,
			MinConns:       2,
			ConnectTimeout: 5 * time.Second,
		},
		PolicyEngine: PolicyEngine{
			Endpoint:    "localhost:50051",
			Token:       "dev-preshared-key",
			Insecure:    env == Development,
			CallTimeout: 10 * time.Second,
		},
		Worker: Worker{
			BatchSize:    100,
			PollInterval: 5 * time.Second,
			MaxRetries:   5,
			Push:         true,
		},
		Loader: Loader{
			GraphName: "kartograph",
		},
		Metrics: Metrics{
			Enabled:   true,
			Addr:      ":9090",
			Path:      "/metrics",
			Namespace: "kartograph",
		},
		Tracing: Tracing{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			SampleRate: 0,
			Insecure:   env == Development,
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// getEnvironment resolves the deployment environment from APP_ENV.
func getEnvironment() Environment {
	switch strings.ToLower(os.Getenv("APP_ENV")) {
	case "production", "prod":
		return Production
	case "staging":
		return Staging
	default:
		return Development
	}
}

// applyEnv overlays environment variables, the highest-priority source.
func applyEnv(cfg *Config) {
	setString(&cfg.Database.URL, "DATABASE_URL")
	setInt32(&cfg.Database.MaxConns, "DATABASE_MAX_CONNS")
	setInt32(&cfg.Database.MinConns, "DATABASE_MIN_CONNS")
	setDuration(&cfg.Database.ConnectTimeout, "DATABASE_CONNECT_TIMEOUT")

	setString(&cfg.PolicyEngine.Endpoint, "POLICY_ENGINE_ENDPOINT")
	setString(&cfg.PolicyEngine.Token, "POLICY_ENGINE_TOKEN")
	setBool(&cfg.PolicyEngine.Insecure, "POLICY_ENGINE_INSECURE")
	setDuration(&cfg.PolicyEngine.CallTimeout, "POLICY_ENGINE_CALL_TIMEOUT")

	setInt(&cfg.Worker.BatchSize, "WORKER_BATCH_SIZE")
	setDuration(&cfg.Worker.PollInterval, "WORKER_POLL_INTERVAL")
	setInt(&cfg.Worker.MaxRetries, "WORKER_MAX_RETRIES")
	setBool(&cfg.Worker.Push, "WORKER_PUSH")

	setString(&cfg.Loader.GraphName, "GRAPH_NAME")

	setBool(&cfg.Metrics.Enabled, "METRICS_ENABLED")
	setString(&cfg.Metrics.Addr, "METRICS_ADDR")
	setString(&cfg.Metrics.Path, "METRICS_PATH")

	setBool(&cfg.Tracing.Enabled, "TRACING_ENABLED")
	setString(&cfg.Tracing.Endpoint, "TRACING_ENDPOINT")
	setFloat(&cfg.Tracing.SampleRate, "TRACING_SAMPLE_RATE")
	setBool(&cfg.Tracing.Insecure, "TRACING_INSECURE")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setBool(dst *bool, key string) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			*dst = parsed
		}
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			*dst = parsed
		}
	}
}

func setInt32(dst *int32, key string) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 32); err == nil {
			*dst = int32(parsed)
		}
	}
}

func setFloat(dst *float64, key string) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			*dst = parsed
		}
	}
}

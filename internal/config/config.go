package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pixil98/go-errors"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendNats     = "nats"
)

type Config struct {
	Port      int    `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	StoreBackend string `yaml:"store_backend"`
	DatabaseURL  string `yaml:"database_url"`

	NatsURL      string `yaml:"nats_url"`
	NatsEmbedded bool   `yaml:"nats_embedded"`
	NatsBucket   string `yaml:"nats_bucket"`
	NatsStoreDir string `yaml:"nats_store_dir"`

	// Embedded server listener; port -1 picks a free port.
	NatsEmbeddedHost string `yaml:"nats_embedded_host"`
	NatsEmbeddedPort int    `yaml:"nats_embedded_port"`
	NatsStartTimeout string `yaml:"nats_start_timeout"`

	TickRate          int  `yaml:"tick_rate"`
	PickupBatch       int  `yaml:"pickup_batch"`
	AbsorptionEnabled bool `yaml:"absorption_enabled"`
}

func defaults() *Config {
	return &Config{
		Port:         8080,
		LogLevel:     "info",
		LogFormat:    "text",
		StoreBackend: BackendMemory,
		DatabaseURL:  "postgres://localhost:5432/netraiders?sslmode=disable",
		NatsBucket:   "netraiders",

		NatsEmbeddedHost: "127.0.0.1",
		NatsEmbeddedPort: 4222,
		NatsStartTimeout: "10s",
		TickRate:     20,
		PickupBatch:  5,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE if set, then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.Port = getEnvInt("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.StoreBackend = getEnv("STORE_BACKEND", cfg.StoreBackend)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.NatsURL = getEnv("NATS_URL", cfg.NatsURL)
	cfg.NatsEmbedded = getEnvBool("NATS_EMBEDDED", cfg.NatsEmbedded)
	cfg.NatsBucket = getEnv("NATS_BUCKET", cfg.NatsBucket)
	cfg.NatsStoreDir = getEnv("NATS_STORE_DIR", cfg.NatsStoreDir)
	cfg.NatsEmbeddedHost = getEnv("NATS_EMBEDDED_HOST", cfg.NatsEmbeddedHost)
	cfg.NatsEmbeddedPort = getEnvInt("NATS_EMBEDDED_PORT", cfg.NatsEmbeddedPort)
	cfg.NatsStartTimeout = getEnv("NATS_START_TIMEOUT", cfg.NatsStartTimeout)
	cfg.TickRate = getEnvInt("TICK_RATE", cfg.TickRate)
	cfg.PickupBatch = getEnvInt("PICKUP_BATCH", cfg.PickupBatch)
	cfg.AbsorptionEnabled = getEnvBool("ABSORPTION_ENABLED", cfg.AbsorptionEnabled)

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	el := errors.NewErrorList()

	if c.Port < 1 || c.Port > 65535 {
		el.Add(fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		el.Add(fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		el.Add(fmt.Errorf("unknown log format %q", c.LogFormat))
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			el.Add(fmt.Errorf("database_url is required for the postgres backend"))
		}
	case BackendNats:
		if c.NatsURL == "" && !c.NatsEmbedded {
			el.Add(fmt.Errorf("nats_url is required unless nats_embedded is set"))
		}
		if c.NatsBucket == "" {
			el.Add(fmt.Errorf("nats_bucket is required for the nats backend"))
		}
		if c.NatsEmbedded {
			if c.NatsEmbeddedHost == "" {
				el.Add(fmt.Errorf("nats_embedded_host is required when nats_embedded is set"))
			}
			if c.NatsEmbeddedPort < -1 || c.NatsEmbeddedPort == 0 || c.NatsEmbeddedPort > 65535 {
				el.Add(fmt.Errorf("nats_embedded_port %d out of range", c.NatsEmbeddedPort))
			}
			if _, err := c.StartTimeout(); err != nil {
				el.Add(err)
			}
		}
	default:
		el.Add(fmt.Errorf("unknown store backend %q", c.StoreBackend))
	}

	if c.TickRate < 1 || c.TickRate > 1000 {
		el.Add(fmt.Errorf("tick_rate %d out of range", c.TickRate))
	}
	if c.PickupBatch < 0 {
		el.Add(fmt.Errorf("pickup_batch must not be negative"))
	}

	return el.Err()
}

// StartTimeout parses NatsStartTimeout.
func (c *Config) StartTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.NatsStartTimeout)
	if err != nil {
		return 0, fmt.Errorf("parsing nats_start_timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("nats_start_timeout must be positive")
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

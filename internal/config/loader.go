package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "novalink.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "NOVALINK_PORT")
	setString(&cfg.Server.CORSOrigin, "NOVALINK_CORS_ORIGIN")
	setString(&cfg.Store.Driver, "NOVALINK_STORE_DRIVER")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "NOVALINK_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "NOVALINK_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "NOVALINK_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "NOVALINK_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "NOVALINK_PG_HEALTH_CHECK")
	setBool(&cfg.NATS.Enabled, "NOVALINK_NATS_ENABLED")
	setString(&cfg.NATS.URL, "NATS_URL")
	setDuration(&cfg.Auth.SessionTTL, "NOVALINK_SESSION_TTL")
	setInt(&cfg.Auth.BcryptCost, "NOVALINK_BCRYPT_COST")
	setInt64(&cfg.Sim.Seed, "NOVALINK_SIM_SEED")
	setDuration(&cfg.Broadcast.WelcomeDelay, "NOVALINK_WELCOME_DELAY")
	setDuration(&cfg.Broadcast.FollowUpDelay, "NOVALINK_FOLLOWUP_DELAY")
	setInt64(&cfg.Cache.MaxSizeMB, "NOVALINK_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "NOVALINK_CACHE_TTL")
	setString(&cfg.Logging.Level, "NOVALINK_LOG_LEVEL")
	setString(&cfg.Logging.Service, "NOVALINK_LOG_SERVICE")
	setString(&cfg.Telemetry.OTLPEndpoint, "NOVALINK_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver must be postgres or memory, got %q", cfg.Store.Driver)
	}
	if cfg.NATS.Enabled && cfg.NATS.URL == "" {
		return errors.New("nats.url is required when the relay is enabled")
	}
	if cfg.Auth.SessionTTL <= 0 {
		return errors.New("auth.session_ttl must be positive")
	}
	if cfg.Broadcast.FollowUpDelay <= 0 {
		return errors.New("broadcast.follow_up_delay must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

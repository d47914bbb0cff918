package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds pricectl configuration loaded from the environment.
type Config struct {
	AppEnv      string
	DatabaseURL string
	RedisURL    string

	RulesFile           string
	RulesReloadInterval time.Duration
	RulesReloadChannel  string
	RulesLockTTL        time.Duration
	RulesStartAttempts  int
	QuoteCacheTTL       time.Duration
	QuoteCachePrefix    string

	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	EnableTracing    bool
	OTLPEndpoint     string
	TraceSampleRatio float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:              valueOrDefault(k.String("APP_ENV"), "development"),
		DatabaseURL:         strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:            strings.TrimSpace(k.String("REDIS_URL")),
		RulesFile:           strings.TrimSpace(k.String("RULES_FILE")),
		RulesReloadInterval: parseDuration(k.String("RULES_RELOAD_INTERVAL"), "5m"),
		RulesReloadChannel:  valueOrDefault(k.String("RULES_RELOAD_CHANNEL"), "pricecore:rules:reload"),
		RulesLockTTL:        parseDuration(k.String("RULES_LOCK_TTL"), "30s"),
		RulesStartAttempts:  intOrDefault(k.Int("RULES_START_ATTEMPTS"), 5),
		QuoteCacheTTL:       parseDuration(k.String("QUOTE_CACHE_TTL"), "10m"),
		QuoteCachePrefix:    valueOrDefault(k.String("QUOTE_CACHE_PREFIX"), "pricecore:quote:"),
		LogFormat:           valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:            valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace:    valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "pricecore"),
		EnableTracing:       parseBool(k.String("OBS_ENABLE_TRACING")),
		OTLPEndpoint:        strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TraceSampleRatio:    k.Float64("OBS_TRACE_SAMPLE_RATIO"),
	}

	if cfg.RulesFile == "" && cfg.DatabaseURL == "" {
		return nil, errors.New("either RULES_FILE or DATABASE_URL is required")
	}
	if cfg.RulesReloadInterval < 0 {
		return nil, errors.New("RULES_RELOAD_INTERVAL must not be negative")
	}
	if cfg.EnableTracing && cfg.OTLPEndpoint == "" {
		return nil, errors.New("OBS_OTLP_ENDPOINT is required when tracing is enabled")
	}

	return cfg, nil
}

// RulesFromDatabase reports whether rules are served from Postgres rather than a file.
func (c *Config) RulesFromDatabase() bool {
	return c.RulesFile == "" && c.DatabaseURL != ""
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func intOrDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}

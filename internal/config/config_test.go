package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// clean blanks every key Load reads so the host environment cannot leak into a case.
func clean(overrides map[string]string) map[string]string {
	env := map[string]string{
		"APP_ENV": "", "DATABASE_URL": "", "REDIS_URL": "", "RULES_FILE": "",
		"RULES_RELOAD_INTERVAL": "", "RULES_RELOAD_CHANNEL": "", "RULES_LOCK_TTL": "", "RULES_START_ATTEMPTS": "",
		"QUOTE_CACHE_TTL": "", "QUOTE_CACHE_PREFIX": "", "OBS_LOG_FORMAT": "", "OBS_LOG_LEVEL": "",
		"OBS_METRICS_NAMESPACE": "", "OBS_ENABLE_TRACING": "", "OBS_OTLP_ENDPOINT": "",
		"OBS_TRACE_SAMPLE_RATIO": "",
	}
	for k, v := range overrides {
		env[k] = v
	}
	return env
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(clean(map[string]string{"RULES_FILE": "rules.json"}))
	require.NoError(t, err)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, 5*time.Minute, cfg.RulesReloadInterval)
	require.Equal(t, 10*time.Minute, cfg.QuoteCacheTTL)
	require.Equal(t, "pricecore:rules:reload", cfg.RulesReloadChannel)
	require.Equal(t, 5, cfg.RulesStartAttempts)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, "pricecore", cfg.MetricsNamespace)
	require.False(t, cfg.EnableTracing)
	require.False(t, cfg.RulesFromDatabase())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(clean(map[string]string{
		"DATABASE_URL":          "postgres://localhost/pricing",
		"RULES_RELOAD_INTERVAL": "30s",
		"QUOTE_CACHE_TTL":       "not-a-duration",
		"OBS_ENABLE_TRACING":    "yes",
		"OBS_OTLP_ENDPOINT":     "http://collector:4318",
	}))
	require.NoError(t, err)
	require.True(t, cfg.RulesFromDatabase())
	require.Equal(t, 30*time.Second, cfg.RulesReloadInterval)
	require.Equal(t, 10*time.Minute, cfg.QuoteCacheTTL)
	require.True(t, cfg.EnableTracing)
}

func TestLoadRequiresRuleSource(t *testing.T) {
	_, err := LoadForTests(clean(nil))
	require.Error(t, err)
}

func TestLoadRequiresEndpointForTracing(t *testing.T) {
	_, err := LoadForTests(clean(map[string]string{"RULES_FILE": "rules.json", "OBS_ENABLE_TRACING": "true"}))
	require.Error(t, err)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, BackendMemory, cfg.Ledger.Backend)
	assert.Equal(t, 30*time.Second, cfg.Ledger.ClaimTimeout())
	assert.Equal(t, 5*time.Second, cfg.Ledger.WaitTimeout())
	assert.Equal(t, 72*time.Hour, cfg.Ledger.Retention())
	assert.Equal(t, "*/15 * * * *", cfg.Ledger.PurgeSchedule)
	assert.Equal(t, BackendMemory, cfg.Records.Backend)
	assert.Equal(t, BackendMemory, cfg.Jobs.Backend)
	assert.Empty(t, cfg.Rules.Path)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("LEDGER_BACKEND", "SQLite")
	t.Setenv("LEDGER_CLAIM_TIMEOUT_SECONDS", "45")
	t.Setenv("LEDGER_WAIT_SECONDS", "2")
	t.Setenv("SQLITE_PATH", "/tmp/ledger.db")
	t.Setenv("JOBS_BACKEND", "redis")
	t.Setenv("RULES_PATH", "/etc/dispatch/rules.yaml")
	t.Setenv("RULES_WATCH", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, BackendSQLite, cfg.Ledger.Backend)
	assert.Equal(t, 45*time.Second, cfg.Ledger.ClaimTimeout())
	assert.Equal(t, 2*time.Second, cfg.Ledger.WaitTimeout())
	assert.Equal(t, "/tmp/ledger.db", cfg.SQLite.Path)
	assert.Equal(t, BackendRedis, cfg.Jobs.Backend)
	assert.Equal(t, "/etc/dispatch/rules.yaml", cfg.Rules.Path)
	assert.True(t, cfg.Rules.Watch)
}

func TestLoadRejectsBadBackends(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown ledger":       {"LEDGER_BACKEND": "etcd"},
		"unknown records":      {"RECORD_BACKEND": "redis"},
		"postgres without dsn": {"LEDGER_BACKEND": "postgres"},
		"auth off in prod":     {"APP_ENV": "production", "AUTH_DISABLED": "true"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadInvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "one")
	_, err := Load()
	assert.ErrorContains(t, err, "REDIS_DB")
}

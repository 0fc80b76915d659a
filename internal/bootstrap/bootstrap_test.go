package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/dispatch-engine/internal/catalog"
	"github.com/spec-kit/dispatch-engine/internal/config"
	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/service"
)

func baseConfig() *config.Config {
	return &config.Config{
		Ledger:  config.LedgerConfig{Backend: config.BackendMemory, ClaimTimeoutSeconds: 30, WaitSeconds: 1},
		Records: config.RecordsConfig{Backend: config.BackendMemory},
		Jobs:    config.JobsConfig{Backend: config.BackendMemory, Queue: "jobs"},
	}
}

func TestNewMemory(t *testing.T) {
	app, err := New(context.Background(), baseConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	assert.Empty(t, app.Health)
	assert.Equal(t, catalog.Default().Version, app.Rules.Current().Version)

	res, err := app.Dispatch.Process(context.Background(), service.ProcessInput{
		Text:    "i was overcharged on my last invoice",
		Channel: domain.ChannelChat,
		Caller:  domain.CallerContext{Phone: "312-555-0142"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnsupported, res.Action)
}

func TestNewSQLiteLedger(t *testing.T) {
	cfg := baseConfig()
	cfg.Ledger.Backend = config.BackendSQLite
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "ledger.db")

	app, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	require.Contains(t, app.Health, "sqlite")
	assert.NoError(t, app.Health["sqlite"].Ping(context.Background()))

	in := service.ProcessInput{
		Text:    "how much is a diagnostic visit?",
		Channel: domain.ChannelChat,
		Caller:  domain.CallerContext{Email: "pat@acme.com", CustomerTier: "commercial"},
	}
	first, err := app.Dispatch.Process(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, first.Action)
	again, err := app.Dispatch.Process(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.IdempotencyKey, again.IdempotencyKey)
}

func TestNewRejectsBadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: broken\n"), 0o600))
	cfg := baseConfig()
	cfg.Rules.Path = path

	_, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/spec-kit/dispatch-engine/internal/config"
)

// OpenSQLite opens the ledger database, creating its directory, and applies
// the embedded sqlite migrations.
func OpenSQLite(ctx context.Context, cfg config.SQLiteConfig, logger *zap.Logger) (*sql.DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer keeps claim transactions serialized inside this process.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := RunSQLiteMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("opened sqlite ledger", zap.String("path", cfg.Path))
	return db, nil
}

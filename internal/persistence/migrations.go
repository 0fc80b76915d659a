package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

type migration struct {
	name string
	sql  string
}

// loadMigrations lists the embedded scripts for dialect ("postgres" or "sqlite")
// in filename order. Every script is idempotent.
func loadMigrations(dialect string) ([]migration, error) {
	dir := "migrations/" + dialect
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		content, err := migrationsFS.ReadFile(dir + "/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, migration{name: name, sql: string(content)})
	}
	return out, nil
}

// RunMigrations applies the postgres scripts.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	if pool == nil {
		logger.Warn("no postgres pool available; skipping migrations")
		return nil
	}
	migrations, err := loadMigrations("postgres")
	if err != nil {
		return err
	}
	for _, m := range migrations {
		logger.Info("applying migration", zap.String("file", m.name))
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	logger.Info("migrations applied", zap.Int("count", len(migrations)))
	return nil
}

// RunSQLiteMigrations applies the sqlite scripts.
func RunSQLiteMigrations(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	migrations, err := loadMigrations("sqlite")
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply sqlite migration %s: %w", m.name, err)
		}
	}
	logger.Debug("sqlite migrations applied", zap.Int("count", len(migrations)))
	return nil
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	goosedb "github.com/pressly/goose/v3/database"
	gooselock "github.com/pressly/goose/v3/lock"
	"github.com/rs/zerolog"

	"skillbase/migrations"
)

const migrationLockID int64 = 7029001

// MigrationSource returns the embedded migrations, or dir when it is set.
func MigrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func newProvider(pool *pgxpool.Pool, source fs.FS) (*goose.Provider, *sql.DB, error) {
	if source == nil {
		return nil, nil, fmt.Errorf("migration source is required")
	}

	locker, err := gooselock.NewPostgresSessionLocker(gooselock.WithLockID(migrationLockID))
	if err != nil {
		return nil, nil, fmt.Errorf("create migration locker: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	provider, err := goose.NewProvider(goosedb.DialectPostgres, db, source, goose.WithSessionLocker(locker))
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create migration provider: %w", err)
	}
	return provider, db, nil
}

// ApplyMigrations brings the schema up to date. Concurrent callers are
// serialised through a Postgres advisory lock.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool, source fs.FS, logger zerolog.Logger) error {
	provider, db, err := newProvider(pool, source)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := provider.Up(ctx)
	logResults(logger, "migration applied", results...)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// RollbackMigration reverts the most recently applied migration.
func RollbackMigration(ctx context.Context, pool *pgxpool.Pool, source fs.FS, logger zerolog.Logger) error {
	provider, db, err := newProvider(pool, source)
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := provider.Down(ctx)
	logResults(logger, "migration rolled back", result)
	if err != nil {
		return fmt.Errorf("roll back migration: %w", err)
	}
	return nil
}

type MigrationState struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, source fs.FS) ([]MigrationState, error) {
	provider, db, err := newProvider(pool, source)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	out := make([]MigrationState, 0, len(statuses))
	for _, st := range statuses {
		if st == nil || st.Source == nil {
			continue
		}
		out = append(out, MigrationState{
			Version:   st.Source.Version,
			Path:      st.Source.Path,
			Applied:   st.State == goose.StateApplied,
			AppliedAt: st.AppliedAt,
		})
	}
	return out, nil
}

func logResults(logger zerolog.Logger, msg string, results ...*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		logger.Info().
			Int64("version", res.Source.Version).
			Str("path", res.Source.Path).
			Dur("duration", res.Duration).
			Msg(msg)
	}
}

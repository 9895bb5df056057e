package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"skillbase/internal/config"
	"skillbase/internal/database"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	pool, err := database.Connect(cfg.DatabaseURL, database.PoolOptions{MaxConns: 2})
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	source := database.MigrationSource(cfg.MigrationsDir)
	switch cmd {
	case "up":
		err = database.ApplyMigrations(ctx, pool, source, logger)
	case "down":
		err = database.RollbackMigration(ctx, pool, source, logger)
	case "status":
		var states []database.MigrationState
		states, err = database.MigrationStatus(ctx, pool, source)
		for _, st := range states {
			applied := "pending"
			if st.Applied {
				applied = st.AppliedAt.Format(time.RFC3339)
			}
			fmt.Printf("%05d  %-40s %s\n", st.Version, st.Path, applied)
		}
	default:
		logger.Fatal().Str("command", cmd).Msg("usage: migrate [up|down|status]")
	}
	if err != nil {
		logger.Fatal().Err(err).Str("command", cmd).Msg("migration failed")
	}
	logger.Info().Str("command", cmd).Msg("done")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"skillbase/internal/config"
	"skillbase/internal/database"
	"skillbase/internal/email"
	"skillbase/internal/logging"
	"skillbase/internal/pages"
	"skillbase/internal/routes"
	"skillbase/internal/server"
)

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("config error")
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		boot.Fatal().Err(err).Msg("log setup error")
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(cfg.DatabaseURL, database.PoolOptions{MaxConns: cfg.DBMaxConns})
	if err != nil {
		logger.Fatal().Err(err).Msg("database error")
	}
	defer pool.Close()

	if err := database.ApplyMigrations(ctx, pool, database.MigrationSource(cfg.MigrationsDir), logger); err != nil {
		logger.Fatal().Err(err).Msg("migration error")
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis error")
	}
	defer redisClient.Close()

	routesFS := os.DirFS(cfg.RoutesDir)
	found, err := routes.Discover(routesFS, routes.Options{Ignore: routeIgnore(cfg.RouteIgnore)})
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.RoutesDir).Msg("route discovery error")
	}
	logger.Info().Int("routes", len(found)).Str("dir", cfg.RoutesDir).Msg("routes discovered")

	api, err := server.NewServer(cfg, server.Deps{
		DB:     pool,
		Redis:  redisClient,
		Mailer: email.NewSender(cfg.Email),
		Pages:  pages.NewRenderer(routesFS, cfg.Public),
		Routes: found,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("server init error")
	}
	go api.RunJanitor(ctx, time.Hour)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", srv.Addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
}

// routeIgnore appends configured patterns to the defaults without touching
// the shared DefaultIgnore slice.
func routeIgnore(extra []string) []string {
	out := make([]string, 0, len(routes.DefaultIgnore)+len(extra))
	out = append(out, routes.DefaultIgnore...)
	return append(out, extra...)
}

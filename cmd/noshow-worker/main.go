package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/carewell/telemed-scheduling/internal/appointment"
	"github.com/carewell/telemed-scheduling/internal/config"
	"github.com/carewell/telemed-scheduling/internal/db"
	"github.com/carewell/telemed-scheduling/internal/directory"
	redisclient "github.com/carewell/telemed-scheduling/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("config load error")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", "noshow-worker").Logger()

	log.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Dur("grace", cfg.NoShowGrace).
		Msg("no-show worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	repo := appointment.NewPgRepository(pgPool)
	dir := directory.NewPgRepository(pgPool)
	// The sweep never books, so it does not need the schedule lock.
	svc := appointment.NewService(repo, dir, redisclient.NoopLocker{}, log)

	runOnce(rootCtx, svc, cfg, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping no-show worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg, log)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, cfg config.Config, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	marked, err := svc.MarkOverdueNoShows(runCtx, cfg.NoShowGrace)
	if err != nil {
		log.Error().Err(err).Msg("no-show sweep error")
		return
	}
	log.Info().Int("marked", marked).Dur("took", time.Since(start)).Msg("no-show sweep complete")
}

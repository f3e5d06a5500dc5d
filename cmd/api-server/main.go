package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carewell/telemed-scheduling/internal/api"
	"github.com/carewell/telemed-scheduling/internal/appointment"
	"github.com/carewell/telemed-scheduling/internal/config"
	"github.com/carewell/telemed-scheduling/internal/db"
	"github.com/carewell/telemed-scheduling/internal/directory"
	redisclient "github.com/carewell/telemed-scheduling/internal/redis"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("config load error")
	}

	log := newLogger(cfg)
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Bool("demo", cfg.DemoMode).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		pgPool   *pgxpool.Pool
		rdb      *redis.Client
		apptRepo appointment.Repository
		dirRepo  directory.Repository
	)

	if cfg.DemoMode {
		memAppts := appointment.NewMemoryRepository()
		memDir := directory.NewMemoryRepository()
		seedDemoDirectory(memDir, log)
		apptRepo, dirRepo = memAppts, memDir
		log.Info().Msg("demo mode: running on in-memory stores")
	} else {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connection error")
		}
		defer pgPool.Close()
		log.Info().Msg("connected to Postgres")

		apptRepo = appointment.NewPgRepository(pgPool)
		dirRepo = directory.NewPgRepository(pgPool)
	}

	locker := redisclient.Locker(redisclient.NoopLocker{})
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing redis")
			}
		}()
		locker = redisclient.NewRedisScheduleLocker(rdb, cfg.LockTTL)
		log.Info().Str("addr", cfg.RedisAddr).Msg("schedule lock enabled")
	} else {
		log.Warn().Msg("REDIS_ADDR not set, booking without the schedule lock")
	}

	svc := appointment.NewService(apptRepo, dirRepo, locker, log)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		PgPool:  pgPool,
		Redis:   rdb,
		Log:     log,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", "api-server").Logger()
	if cfg.Env == "dev" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return logger
}

// seedDemoDirectory fills the in-memory directory with a handful of
// generated doctors so slot queries have something to answer with.
func seedDemoDirectory(dir *directory.MemoryRepository, log zerolog.Logger) {
	faker := gofakeit.New(0)
	specialties := []string{"General Medicine", "Cardiology", "Dermatology", "Pediatrics", "Psychiatry"}

	for i := 0; i < 5; i++ {
		doc := directory.DoctorProfile{
			ID:        uuid.New(),
			FullName:  "Dr. " + faker.Name(),
			Specialty: specialties[i%len(specialties)],
			Segments: []directory.WeeklySegment{
				{DayOfWeek: 1, StartTime: "09:00", EndTime: "12:30", SlotDuration: 30},
				{DayOfWeek: 3, StartTime: "13:00", EndTime: "17:00", SlotDuration: 30},
				{DayOfWeek: 5, StartTime: "10:00", EndTime: "14:00", SlotDuration: 15},
			},
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		dir.AddDoctor(doc)
		log.Info().Str("doctor_id", doc.ID.String()).Str("name", doc.FullName).Msg("seeded demo doctor")
	}
}

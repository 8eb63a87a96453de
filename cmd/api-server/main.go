package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logger"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/seed"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "json")
		boot.Fatal().Err(err).Msg("config load error")
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store", cfg.StoreBackend).
		Str("lock", cfg.LockBackend).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repo   appointment.Repository
		pgPool *pgxpool.Pool
		rdb    *redis.Client
		locker redisclient.Locker
	)

	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: int32(cfg.DBMaxConns)})
		if err == nil {
			err = db.Migrate(pgCtx, pgPool)
		}
		cancelPg()
		if err != nil {
			log.Fatal().Err(err).Msg("postgres setup error")
		}
		defer pgPool.Close()
		log.Info().Msg("connected to Postgres")
		repo = appointment.NewPgRepository(pgPool)
	default:
		repo = demoRepository(cfg, log)
	}

	switch cfg.LockBackend {
	case config.LockBackendRedis:
		rdb, err = redisclient.NewRedisClient(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing redis")
			}
		}()
		log.Info().Msg("connected to Redis")
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
	default:
		locker = redisclient.NewLocalLocker(cfg.LockWait)
	}

	svc := appointment.NewService(repo, locker, cfg.Scheduling(), log)

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Service: svc,
			PgPool:  pgPool,
			Redis:   rdb,
			Logger:  log,
			Env:     cfg.Env,
			Version: version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return rootCtx },
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	case <-rootCtx.Done():
	}

	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	log.Info().Msg("server stopped")
}

// demoRepository seeds an in-memory store so the API is usable without a
// database.
func demoRepository(cfg config.Config, log zerolog.Logger) *appointment.MemoryRepository {
	repo := appointment.NewMemoryRepository()
	fixtures := seed.Generate(gofakeit.New(0), 5, 50, cfg.Scheduling().ClinicHours)
	seed.LoadMemory(repo, fixtures)

	log.Warn().
		Int("practitioners", len(fixtures.Practitioners)).
		Int("patients", len(fixtures.Patients)).
		Msg("using in-memory store with demo data; bookings are lost on restart")
	for _, p := range fixtures.Practitioners {
		log.Info().Str("practitioner_id", p.ID.String()).Str("name", p.Name).Msg("demo practitioner")
	}
	if len(fixtures.Patients) > 0 {
		log.Info().Str("patient_id", fixtures.Patients[0].ID.String()).Msg("demo patient")
	}
	return repo
}

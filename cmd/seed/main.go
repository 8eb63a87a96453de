package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/joho/godotenv"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logger"
	"github.com/hackgods/clinic-scheduling/internal/seed"
)

func main() {
	_ = godotenv.Load()

	log := logger.New(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "console"))
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{})
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	clinic := appointment.DefaultSettings().ClinicHours
	if v := os.Getenv("CLINIC_OPEN"); v != "" {
		if t, err := appointment.ParseTimeOfDay(v); err == nil {
			clinic.Open = t
		}
	}
	if v := os.Getenv("CLINIC_CLOSE"); v != "" {
		if t, err := appointment.ParseTimeOfDay(v); err == nil {
			clinic.Close = t
		}
	}

	practitioners := getInt("SEED_PRACTITIONERS", 20)
	patients := getInt("SEED_PATIENTS", 2000)
	log.Info().Int("practitioners", practitioners).Int("patients", patients).Msg("generating fixtures")

	fixtures := seed.Generate(gofakeit.New(0), practitioners, patients, clinic)
	if err := seed.InsertPostgres(ctx, pool, fixtures, log); err != nil {
		log.Fatal().Err(err).Msg("seed")
	}

	log.Info().Msg("seed complete")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

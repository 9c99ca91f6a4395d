// Package config loads AIVERSE's runtime settings from an optional .env
// file overlaid with process environment variables.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds every tunable the World and API layers need.
type Config struct {
	ListenAddr string

	// TickInterval is wall-clock time between World.Tick() calls.
	TickInterval time.Duration

	// DailyIncome is both the starting balance join() grants and the
	// per-day grant the daily cycle hands out.
	DailyIncome float64

	// DividendRate is the fraction of a public company's revenue paid
	// out as dividends each daily cycle.
	DividendRate float64

	// TicksPerDay is how many Tick() calls make up one daily cycle.
	TicksPerDay int

	// SystemStartingBalance seeds the bootstrap "system" agent.
	SystemStartingBalance float64
}

// Default returns AIVERSE's baseline runtime settings.
func Default() Config {
	return Config{
		ListenAddr:            "0.0.0.0:8080",
		TickInterval:          time.Second,
		DailyIncome:           1_000.0,
		DividendRate:          0.10,
		TicksPerDay:           1_440,
		SystemStartingBalance: 1_000_000_000.0,
	}
}

// Load reads an optional .env file (missing is not an error; it logs and
// continues) and overlays any matching environment variables onto the
// defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, using process environment and defaults")
	}

	cfg := Default()
	cfg.ListenAddr = getString("AIVERSE_LISTEN_ADDR", cfg.ListenAddr)
	cfg.TickInterval = getDuration("AIVERSE_TICK_INTERVAL", cfg.TickInterval)
	cfg.DailyIncome = getFloat("AIVERSE_DAILY_INCOME", cfg.DailyIncome)
	cfg.DividendRate = getFloat("AIVERSE_DIVIDEND_RATE", cfg.DividendRate)
	cfg.TicksPerDay = getInt("AIVERSE_TICKS_PER_DAY", cfg.TicksPerDay)
	cfg.SystemStartingBalance = getFloat("AIVERSE_SYSTEM_BALANCE", cfg.SystemStartingBalance)
	return cfg
}

func getString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid float env override, using default")
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid int env override, using default")
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid duration env override, using default")
	}
	return fallback
}

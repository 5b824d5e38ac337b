package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

const DATE_FORMAT = "2006-01-02"

var (
	API_ENV       = os.Getenv("API_ENV")
	APP_HOST      = os.Getenv("APP_HOST")
	CURRENCY      = getEnv("CURRENCY", "bdt")
	EVENTS_DRIVER = getEnv("EVENTS_DRIVER", "log")
	EVENTS_TOPIC  = getEnv("EVENTS_TOPIC", "booking-events")
	EVENTS_QUEUE  = getEnv("EVENTS_QUEUE", "BookingEvents")
)

// Reload re-reads the package level settings, for when the environment changes after start up.
func Reload() {
	API_ENV = os.Getenv("API_ENV")
	APP_HOST = os.Getenv("APP_HOST")
	CURRENCY = getEnv("CURRENCY", "bdt")
	EVENTS_DRIVER = getEnv("EVENTS_DRIVER", "log")
	EVENTS_TOPIC = getEnv("EVENTS_TOPIC", "booking-events")
	EVENTS_QUEUE = getEnv("EVENTS_QUEUE", "BookingEvents")
}

type FailurePolicy string

const (
	// FAILURE_RELEASE cancels a booking whose payment failed and frees its dates.
	FAILURE_RELEASE FailurePolicy = "release"
	// FAILURE_KEEP leaves the booking confirmed for manual follow up.
	FAILURE_KEEP FailurePolicy = "keep"
)

type WithholdPolicy string

const (
	WITHHOLD_UNTIL_COMPLETION WithholdPolicy = "completion"
	WITHHOLD_UNTIL_PAYMENT    WithholdPolicy = "payment"
)

type Config struct {
	HoldWindow       time.Duration
	SweepInterval    time.Duration
	FailurePolicy    FailurePolicy
	WithholdPolicy   WithholdPolicy
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	BalanceCacheTTL  time.Duration
}

// Load reads engine policies from the environment. Unknown policy values fall back to the defaults.
func Load() *Config {
	cfg := &Config{
		HoldWindow:       getEnvDuration("HOLD_WINDOW", 24*time.Hour),
		SweepInterval:    getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		FailurePolicy:    FailurePolicy(getEnv("PAYMENT_FAILURE_POLICY", string(FAILURE_RELEASE))),
		WithholdPolicy:   WithholdPolicy(getEnv("PAYOUT_WITHHOLD_POLICY", string(WITHHOLD_UNTIL_COMPLETION))),
		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   getEnvDuration("RETRY_BASE_DELAY", 200*time.Millisecond),
		BalanceCacheTTL:  getEnvDuration("BALANCE_CACHE_TTL", 5*time.Minute),
	}
	if cfg.FailurePolicy != FAILURE_RELEASE && cfg.FailurePolicy != FAILURE_KEEP {
		log.Printf("[config] unknown PAYMENT_FAILURE_POLICY %q, using %q\n", cfg.FailurePolicy, FAILURE_RELEASE)
		cfg.FailurePolicy = FAILURE_RELEASE
	}
	if cfg.WithholdPolicy != WITHHOLD_UNTIL_COMPLETION && cfg.WithholdPolicy != WITHHOLD_UNTIL_PAYMENT {
		log.Printf("[config] unknown PAYOUT_WITHHOLD_POLICY %q, using %q\n", cfg.WithholdPolicy, WITHHOLD_UNTIL_COMPLETION)
		cfg.WithholdPolicy = WITHHOLD_UNTIL_COMPLETION
	}
	return cfg
}

func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := getEnv("DATABASE_TIMEZONE", "UTC")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
	return dsn
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
		log.Printf("[config] invalid duration for %s: %s\n", key, err.Error())
	}
	return fallback
}

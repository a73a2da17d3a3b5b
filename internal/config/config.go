// Package config loads application configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env          string // application environment (dev, test, prod)
	Port         string // HTTP port to listen on
	DBUser       string
	DBPass       string // empty allowed
	DBHost       string
	DBPort       string
	DBName       string
	JWTSecret    string // secret used to verify bearer tokens
	AccessTTLMin int    // lifetime of tokens minted by reservectl

	RabbitURL      string // empty disables confirmation events
	BookingLogPath string // file the confirmation consumer appends to

	Payment PaymentConfig

	GapHorizonDays       int
	AvailabilityCacheTTL time.Duration
	PendingExpiry        time.Duration // default age for expire-pending
	PendingSweepInterval time.Duration // 0 disables the in-process sweep
}

// PaymentConfig configures the hosted-checkout gateway.
type PaymentConfig struct {
	BaseURL     string
	SecretKey   string
	Currency    string
	CallbackURL string
	ReturnURL   string
	Timeout     time.Duration
}

// Load reads a .env file when present, then builds a Config from the
// environment.  Missing required variables stop the program.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Env:          must("APP_ENV"),
		Port:         must("APP_PORT"),
		DBUser:       must("DB_USER"),
		DBPass:       os.Getenv("DB_PASS"),
		DBHost:       must("DB_HOST"),
		DBPort:       must("DB_PORT"),
		DBName:       must("DB_NAME"),
		JWTSecret:    must("JWT_SECRET"),
		AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 60),

		RabbitURL:      os.Getenv("RABBITMQ_URL"),
		BookingLogPath: envStr("BOOKING_LOG_PATH", "logs/booking.log"),

		Payment: LoadPaymentConfig(),

		GapHorizonDays:       envInt("GAP_HORIZON_DAYS", 45),
		AvailabilityCacheTTL: envDur("AVAILABILITY_CACHE_TTL", 30*time.Second),
		PendingExpiry:        envDur("PENDING_EXPIRY", 30*time.Minute),
		PendingSweepInterval: envDur("PENDING_SWEEP_INTERVAL", 0),
	}
}

// LoadPaymentConfig reads the PAYMENT_* variables.
func LoadPaymentConfig() PaymentConfig {
	return PaymentConfig{
		BaseURL:     envStr("PAYMENT_BASE_URL", "https://api.chapa.co/v1"),
		SecretKey:   os.Getenv("PAYMENT_SECRET_KEY"),
		Currency:    envStr("PAYMENT_CURRENCY", "ETB"),
		CallbackURL: os.Getenv("PAYMENT_CALLBACK_URL"),
		ReturnURL:   envStr("PAYMENT_RETURN_URL", "http://localhost:3000/payment/return"),
		Timeout:     envDur("PAYMENT_TIMEOUT", 15*time.Second),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// =======================
// CONFIG
// =======================

type Config struct {
	AppEnv string
	Port   string

	// Database
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	DBSSLMode  string

	// Session token
	JWTSecret  string
	SessionTTL time.Duration

	// CRM backend
	CRMBaseURL string
	CRMAPIKey  string
	CRMTimeout time.Duration

	// Payment provider
	StripeSecretKey       string
	PaymentLegacyCardFlow bool
	SecretPollAttempts    int
	SecretPollDelay       time.Duration

	// Funnel entry
	LandingURL    string
	DevAccessHash string
	AdminAPIKey   string

	AllowedOrigins []string
}

// LoadEnv loads .env (except on Railway) and then reads Config from the environment.
func LoadEnv() Config {
	if os.Getenv("RAILWAY_ENVIRONMENT") == "" {
		if err := godotenv.Load(); err != nil {
			log.Warn().Msg("no .env file found, using system environment")
		} else {
			log.Info().Msg(".env file loaded")
		}
	} else {
		log.Info().Msg("running in Railway, using system environment")
	}
	return FromEnv()
}

// FromEnv reads the configuration without touching .env files.
func FromEnv() Config {
	cfg := Config{
		AppEnv: GetEnv("APP_ENV", "production"),
		Port:   GetEnv("PORT", "3000"),

		DBUser:     GetEnv("DB_USER"),
		DBPassword: GetEnv("DB_PASSWORD"),
		DBHost:     GetEnv("DB_HOST"),
		DBPort:     GetEnv("DB_PORT", "5432"),
		DBName:     GetEnv("DB_NAME"),
		DBSSLMode:  GetEnv("DB_SSLMODE", "require"),

		JWTSecret:  GetEnv("JWT_SECRET"),
		SessionTTL: GetDuration("SESSION_TTL", 72*time.Hour),

		CRMBaseURL: strings.TrimRight(GetEnv("CRM_BASE_URL"), "/"),
		CRMAPIKey:  GetEnv("CRM_API_KEY"),
		CRMTimeout: GetDuration("CRM_TIMEOUT", 10*time.Second),

		StripeSecretKey:       GetEnv("STRIPE_SECRET_KEY"),
		PaymentLegacyCardFlow: GetBool("PAYMENT_LEGACY_CARD_FLOW", false),
		SecretPollAttempts:    GetInt("SECRET_POLL_ATTEMPTS", 10),
		SecretPollDelay:       GetDuration("SECRET_POLL_DELAY", time.Second),

		LandingURL:    GetEnv("LANDING_URL", "/"),
		DevAccessHash: GetEnv("DEV_ACCESS_HASH"),
		AdminAPIKey:   GetEnv("ADMIN_API_KEY"),

		AllowedOrigins: splitList(GetEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
	}

	if cfg.JWTSecret == "" {
		log.Error().Msg("JWT_SECRET is not set")
	}
	if cfg.CRMBaseURL == "" {
		log.Error().Msg("CRM_BASE_URL is not set")
	}
	if cfg.StripeSecretKey == "" {
		log.Warn().Msg("STRIPE_SECRET_KEY is not set, payment confirmation will fail")
	}
	return cfg
}

func (c Config) IsDevelopment() bool { return c.AppEnv == "development" }

// DSN builds the postgres URL with a statement timeout.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&application_name=funnel&options=-c statement_timeout=3000",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// =======================
// ENV HELPERS
// =======================

func GetEnv(key string, defaultValue ...string) string {
	value, exists := os.LookupEnv(key)
	if !exists && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

func GetInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid int env, using default")
	}
	return def
}

func GetBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid bool env, using default")
	}
	return def
}

func GetDuration(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid duration env, using default")
	}
	return def
}

func splitList(s string) []string {
	out := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// =======================
// LOGGER
// =======================

// NewLogger builds the service logger; development gets the console writer.
func NewLogger(appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger
}

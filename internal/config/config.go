package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

type Config struct {
	// Application
	AppName string
	AppEnv  string
	AppURL  string
	Port    string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Security
	JWTSecret       string
	JWTExpiry       time.Duration
	LoginRateLimit  int
	LoginRateWindow time.Duration

	// Observability (optional)
	SentryDSN string

	// Records
	DefaultCurrency string
	MaxUploadSize   int64

	// Attachment storage: "local" keeps files in a flat directory, "s3" uses any S3-compatible bucket
	StorageDriver string
	UploadsPath   string
	S3Region      string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
	S3Endpoint    string // Optional: for S3-compatible services (MinIO, DO Spaces, R2, etc.)
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		AppName: envString("APP_NAME", "Fintrack"),
		AppEnv:  envRequired("APP_ENV"), // Required: 'development' or 'production'
		AppURL:  envString("APP_URL", "http://localhost:8090"),
		Port:    envString("PORT", "8090"),

		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/fintrack.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"),

		JWTSecret:       envRequired("JWT_SECRET"),
		JWTExpiry:       envDuration("JWT_EXPIRY", 168*time.Hour), // 7 days
		LoginRateLimit:  int(envInt64("LOGIN_RATE_LIMIT", 5)),
		LoginRateWindow: envDuration("LOGIN_RATE_WINDOW", 15*time.Minute),

		SentryDSN: envString("SENTRY_DSN", ""),

		DefaultCurrency: envString("DEFAULT_CURRENCY", "USD"),
		MaxUploadSize:   envInt64("MAX_UPLOAD_SIZE", 10<<20), // 10MB

		StorageDriver: envString("STORAGE_DRIVER", StorageDriverLocal),
		UploadsPath:   envString("UPLOADS_PATH", "public"),
		S3Endpoint:    envString("S3_ENDPOINT", ""),
	}

	// S3 credentials are only needed when attachments live in a bucket
	if cfg.StorageDriver == StorageDriverS3 {
		cfg.S3Region = envRequired("S3_REGION")
		cfg.S3Bucket = envRequired("S3_BUCKET")
		cfg.S3AccessKey = envRequired("S3_ACCESS_KEY")
		cfg.S3SecretKey = envRequired("S3_SECRET_KEY")
	}

	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validateProduction refuses settings that are only acceptable on a developer machine.
func validateProduction(cfg *Config) {
	if len(cfg.JWTSecret) < 32 {
		slog.Error("production deployment requires a JWT_SECRET of at least 32 characters")
		os.Exit(1)
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envInt64(key string, def int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		slog.Warn("config invalid integer, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

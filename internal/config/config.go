package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr               string
	DatabaseURL        string
	StoreDriver        string
	StoreTimeout       time.Duration
	CORSAllowedOrigins []string
	Env                string
	LogDebug           bool
	APIMaxBodyBytes    int64
	ImportMaxFileBytes int64
	ImportMaxRows      int
	ImportRatePerMin   int
	ReadHeaderTimeout  time.Duration
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	RateLimitMaxIPs    int
	RedisURL           string
	CacheTTL           time.Duration
	ArchiveBucket      string
	ArchivePrefix      string
	AWSRegion          string
	AWSProfile         string
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:         getEnv("API_ADDR", ":8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StoreDriver:  strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		StoreTimeout: time.Duration(getEnvInt("STORE_TIMEOUT_SEC", 30)) * time.Second,
		CORSAllowedOrigins: getEnvCSV("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),
		Env:                getEnv("APP_ENV", "dev"),
		LogDebug:           getEnvBool("LOG_DEBUG", false),
		APIMaxBodyBytes:    int64(getEnvInt("API_MAX_BODY_MB", 10)) * 1024 * 1024,
		ImportMaxFileBytes: int64(getEnvInt("IMPORT_MAX_FILE_MB", 50)) * 1024 * 1024,
		ImportMaxRows:      getEnvInt("IMPORT_MAX_ROWS", 200000),
		ImportRatePerMin:   getEnvInt("IMPORT_RATE_LIMIT_PER_MIN", 20),
		ReadHeaderTimeout:  time.Duration(getEnvInt("API_READ_HEADER_TIMEOUT_SEC", 5)) * time.Second,
		ReadTimeout:        time.Duration(getEnvInt("API_READ_TIMEOUT_SEC", 60)) * time.Second,
		WriteTimeout:       time.Duration(getEnvInt("API_WRITE_TIMEOUT_SEC", 300)) * time.Second,
		IdleTimeout:        time.Duration(getEnvInt("API_IDLE_TIMEOUT_SEC", 60)) * time.Second,
		RateLimitMaxIPs:    getEnvInt("RATE_LIMIT_MAX_IPS", 10000),
		RedisURL:           os.Getenv("REDIS_URL"),
		CacheTTL:           time.Duration(getEnvInt("ANALYTICS_CACHE_TTL_SEC", 300)) * time.Second,
		ArchiveBucket:      os.Getenv("IMPORT_ARCHIVE_BUCKET"),
		ArchivePrefix:      os.Getenv("IMPORT_ARCHIVE_PREFIX"),
		AWSRegion:          os.Getenv("AWS_REGION"),
		AWSProfile:         os.Getenv("AWS_PROFILE"),
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required")
		}
	case DriverMemory:
	default:
		return Config{}, fmt.Errorf("STORE_DRIVER must be %s or %s, got %q", DriverPostgres, DriverMemory, cfg.StoreDriver)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvCSV(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}

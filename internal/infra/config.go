package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv          string
	Port            string
	AppBaseURL      string
	DatabaseURL     string
	SessionSecret   string
	RunnerBaseURL   string
	RunnerToken     string
	FileProxySecret string
	UploadDir       string
	RunnerWakeDir   string
	GeoIPDBPath     string
	AllowedOrigins  []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. The runner credentials and the file-proxy
// secret are hard requirements: without them no job can be dispatched
// or served, so startup fails instead of deferring the error to the
// first request.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		AppBaseURL:       getEnv("APP_BASE_URL", "http://localhost:8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		RunnerBaseURL:    os.Getenv("RUNNER_BASE_URL"),
		RunnerToken:      firstEnv("RUNNER_SHARED_TOKEN", "RUNNER_TOKEN"),
		FileProxySecret:  os.Getenv("FILE_PROXY_SECRET"),
		UploadDir:        getEnv("UPLOAD_DIR", "uploads"),
		RunnerWakeDir:    getEnv("RUNNER_WAKE_DIR", "runner-triggers"),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		AllowedOrigins:   splitCSV(getEnv("ALLOWED_ORIGINS", "*")),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 180)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	for _, req := range []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"SESSION_SECRET", cfg.SessionSecret},
		{"RUNNER_BASE_URL", cfg.RunnerBaseURL},
		{"RUNNER_SHARED_TOKEN", cfg.RunnerToken},
		{"FILE_PROXY_SECRET", cfg.FileProxySecret},
	} {
		if req.value == "" {
			return nil, fmt.Errorf("%s is required", req.name)
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

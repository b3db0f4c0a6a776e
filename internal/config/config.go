package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/youpoison/YM-Logs-API/internal/archive"
	"github.com/youpoison/YM-Logs-API/internal/notify"
	"github.com/youpoison/YM-Logs-API/internal/sink"
)

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Token             string
	APIBaseURL        string
	RequestsPerSecond float64
	PollInterval      time.Duration

	Sink    sink.Config
	SMTP    notify.SMTPConfig
	Archive archive.Config

	DataPath    string
	ProjectsDir string
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// 1. Executable's directory first, so a deployed binary finds its own .env
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Then the working directory
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		if exeDir != "" {
			dataPath = exeDir
		} else {
			dataPath = "."
		}
	}

	pollSecs := getEnvPositiveInt("YM_POLL_INTERVAL_SECONDS", 6)
	rps, _ := strconv.ParseFloat(getEnv("YM_REQUESTS_PER_SECOND", "3"), 64)
	batch := getEnvPositiveInt("DB_BATCH_SIZE", sink.DefaultBatchSize)
	smtpPort := getEnvPositiveInt("SMTP_PORT", 465)

	cfg := &AppConfig{
		Token:             getEnv("YM_TOKEN", ""),
		APIBaseURL:        getEnv("YM_API_URL", ""),
		RequestsPerSecond: rps,
		PollInterval:      time.Duration(pollSecs) * time.Second,
		Sink: sink.Config{
			Dialect:   sink.Dialect(getEnv("DB_DIALECT", string(sink.SQLite))),
			DSN:       getEnv("DB_DSN", ""),
			BatchSize: batch,
		},
		SMTP: notify.SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     smtpPort,
			Username: getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
		},
		Archive: archive.Config{
			Dir:       getEnv("ARCHIVE_DIR", ""),
			Endpoint:  getEnv("ARCHIVE_ENDPOINT", ""),
			AccessKey: getEnv("ARCHIVE_ACCESS_KEY", ""),
			SecretKey: getEnv("ARCHIVE_SECRET_KEY", ""),
			Bucket:    getEnv("ARCHIVE_BUCKET", ""),
			Region:    getEnv("ARCHIVE_REGION", ""),
			UseSSL:    getEnvBool("ARCHIVE_USE_SSL", false),
		},
		DataPath:    dataPath,
		ProjectsDir: getEnv("PROJECTS_DIR", filepath.Join(dataPath, "projects")),
	}

	return cfg, nil
}

// RequireToken fails when no OAuth token is configured.
func (c *AppConfig) RequireToken() error {
	if c.Token == "" {
		return errors.New("YM_TOKEN is not set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvPositiveInt falls back when the value is unset, malformed or not positive.
func getEnvPositiveInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		log.Warn().Str("key", key).Str("value", value).Int("fallback", fallback).Msg("Invalid setting, using default")
		return fallback
	}
	return n
}

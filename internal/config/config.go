package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIPort  string `yaml:"api_port"`
	LogLevel string `yaml:"log_level"`

	ExtractorBaseURL        string `yaml:"extractor_base_url"`
	ExtractorTimeoutSeconds int    `yaml:"extractor_timeout_seconds"`
	ValidatorBaseURL        string `yaml:"validator_base_url"`
	ValidatorTimeoutSeconds int    `yaml:"validator_timeout_seconds"`

	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Empty DSN disables the audit log; session state is never persisted
	// either way.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Empty URL disables event publishing.
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	APIRateLimitRPS   float64 `yaml:"api_rate_limit_rps"`
	APIRateLimitBurst int     `yaml:"api_rate_limit_burst"`

	MaxConcurrentSubmits int `yaml:"max_concurrent_submits"`

	RetryMaxAttempts      int `yaml:"retry_max_attempts"`
	BreakerOpenTimeoutSec int `yaml:"breaker_open_timeout_seconds"`
}

// Load reads configuration from the environment, then lets an optional YAML
// file named by CONFIG_FILE override any field it sets.
func Load() (Config, error) {
	cfg := Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		ExtractorBaseURL:        mustEnv("EXTRACTOR_BASE_URL", "http://localhost:8000"),
		ExtractorTimeoutSeconds: mustEnvInt("EXTRACTOR_TIMEOUT_SECONDS", 120),
		ValidatorBaseURL:        mustEnv("VALIDATOR_BASE_URL", "http://localhost:8000"),
		ValidatorTimeoutSeconds: mustEnvInt("VALIDATOR_TIMEOUT_SECONDS", 60),

		MaxUploadBytes: int64(mustEnvInt("MAX_UPLOAD_BYTES", 50<<20)),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "documents.pipeline"),

		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 40),

		MaxConcurrentSubmits: mustEnvInt("MAX_CONCURRENT_SUBMITS", 4),

		RetryMaxAttempts:      mustEnvInt("RETRY_MAX_ATTEMPTS", 3),
		BreakerOpenTimeoutSec: mustEnvInt("BREAKER_OPEN_TIMEOUT_SECONDS", 30),
	}

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return cfg, nil
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

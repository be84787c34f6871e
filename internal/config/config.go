package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHTTPAddr       = ":8080"
	DefaultRelayCount     = 2
	DefaultHistorySize    = 200
	DefaultSweepInterval  = 30 * time.Second
	DefaultWebhookTimeout = 5 * time.Second
)

// AuthConfig holds bearer token settings. An empty secret disables auth.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LogConfig enables rotating file output next to stdout.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Config is the relay server configuration.
type Config struct {
	HTTPAddr       string        `yaml:"http_addr"`
	RelayCount     int           `yaml:"relay_count"`
	Auth           AuthConfig    `yaml:"auth"`
	DatabaseURL    string        `yaml:"database_url"`
	WebhookURL     string        `yaml:"webhook_url"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
	InFlightTTL    time.Duration `yaml:"inflight_ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	HistorySize    int           `yaml:"history_size"`
	Log            LogConfig     `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:       DefaultHTTPAddr,
		RelayCount:     DefaultRelayCount,
		WebhookTimeout: DefaultWebhookTimeout,
		SweepInterval:  DefaultSweepInterval,
		HistorySize:    DefaultHistorySize,
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

// Load applies defaults, then the YAML file named by RELAY_CONFIG, then
// environment overrides, and validates the result.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("RELAY_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.RelayCount = getenvIntDefault("RELAY_COUNT", cfg.RelayCount)
	cfg.Auth.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.Auth.JWTSecret))
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.WebhookURL = getenvDefault("RELAY_WEBHOOK_URL", cfg.WebhookURL)
	cfg.WebhookTimeout = getenvDuration("RELAY_WEBHOOK_TIMEOUT", cfg.WebhookTimeout)
	cfg.InFlightTTL = getenvDuration("RELAY_INFLIGHT_TTL", cfg.InFlightTTL)
	cfg.SweepInterval = getenvDuration("RELAY_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.HistorySize = getenvIntDefault("RELAY_HISTORY_SIZE", cfg.HistorySize)
	cfg.Log.File = getenvDefault("LOG_FILE", cfg.Log.File)
	cfg.Log.MaxSizeMB = getenvIntDefault("LOG_MAX_SIZE_MB", cfg.Log.MaxSizeMB)
	cfg.Log.MaxBackups = getenvIntDefault("LOG_MAX_BACKUPS", cfg.Log.MaxBackups)
	cfg.Log.MaxAgeDays = getenvIntDefault("LOG_MAX_AGE_DAYS", cfg.Log.MaxAgeDays)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: http_addr required")
	}
	if c.RelayCount < 1 {
		return fmt.Errorf("config: relay_count must be >= 1, got %d", c.RelayCount)
	}
	if c.WebhookTimeout < 0 || c.InFlightTTL < 0 || c.SweepInterval < 0 {
		return errors.New("config: durations must not be negative")
	}
	if c.InFlightTTL > 0 && c.SweepInterval == 0 {
		return errors.New("config: sweep_interval required when inflight_ttl is set")
	}
	if c.HistorySize < 0 {
		return errors.New("config: history_size must not be negative")
	}
	return nil
}

// LogWriter returns stdout, or stdout plus a rotating file when a log file is
// configured. The returned closer releases the file.
func (c Config) LogWriter(stdout io.Writer) (io.Writer, io.Closer) {
	if c.Log.File == "" {
		return stdout, nopCloser{}
	}
	rotator := &lumberjack.Logger{
		Filename:   c.Log.File,
		MaxSize:    c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAgeDays,
	}
	return io.MultiWriter(stdout, rotator), rotator
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

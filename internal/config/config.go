// Package config loads gateway and predictor settings from the environment
// and an optional .env file using Viper.
package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// ListenAddr is where the intake gateway listens (e.g. :3000).
	ListenAddr string `mapstructure:"LISTEN_ADDR"`
	// SinkPath is the append-only CSV file records are written to.
	SinkPath string `mapstructure:"SINK_PATH"`
	// PredictorURL is the full URL of the prediction endpoint.
	PredictorURL string `mapstructure:"PREDICTOR_URL"`
	// MaxBodyBytes caps the accepted request body.
	MaxBodyBytes int64 `mapstructure:"MAX_BODY_BYTES"`
	// CORSAllowedOrigins is a comma-separated origin list; "*" allows any.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// RedisURL enables verdict publishing when set (e.g. redis://127.0.0.1/).
	RedisURL string `mapstructure:"REDIS_URL"`
	// VerdictQueue is the Redis list verdict events are pushed to.
	VerdictQueue string `mapstructure:"VERDICT_QUEUE"`
	// PublishTimeout bounds each verdict publish so Redis cannot delay responses.
	PublishTimeout time.Duration `mapstructure:"PUBLISH_TIMEOUT"`

	// PredictorAddr is where cmd/predictor listens.
	PredictorAddr string `mapstructure:"PREDICTOR_ADDR"`
	// HumanThreshold is how many behavioural signals the predictor needs
	// before it calls a submission human.
	HumanThreshold int `mapstructure:"HUMAN_THRESHOLD"`

	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", ":3000")
	v.SetDefault("SINK_PATH", "data.csv")
	v.SetDefault("PREDICTOR_URL", "http://localhost:5000/predict")
	v.SetDefault("MAX_BODY_BYTES", 100<<10)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("VERDICT_QUEUE", "botcheck_verdict_queue")
	v.SetDefault("PUBLISH_TIMEOUT", "1s")
	v.SetDefault("PREDICTOR_ADDR", ":5000")
	v.SetDefault("HUMAN_THRESHOLD", 3)
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.ListenAddr == "" {
		return nil, errors.New("config: LISTEN_ADDR must be set")
	}
	if cfg.SinkPath == "" {
		return nil, errors.New("config: SINK_PATH must be set")
	}
	if cfg.PredictorURL == "" {
		return nil, errors.New("config: PREDICTOR_URL must be set")
	}
	if cfg.MaxBodyBytes <= 0 {
		return nil, errors.New("config: MAX_BODY_BYTES must be positive")
	}
	if cfg.RedisURL != "" && cfg.VerdictQueue == "" {
		return nil, errors.New("config: VERDICT_QUEUE must be set when REDIS_URL is set")
	}
	if cfg.HumanThreshold < 1 || cfg.HumanThreshold > 6 {
		return nil, errors.New("config: HUMAN_THRESHOLD must be between 1 and 6")
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}

	return &cfg, nil
}

// AllowedOrigins splits CORSAllowedOrigins into a list.
func (c *Config) AllowedOrigins() []string {
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// SlogLevel maps LogLevel to a slog.Level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

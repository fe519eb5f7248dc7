// Package config handles process settings and environment loading.
package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultShutdownTimeout bounds how long serve waits for in-flight calls.
const DefaultShutdownTimeout = 10 * time.Second

// Settings holds the process settings read from the environment. The
// locator string is not part of it; it is always passed explicitly.
type Settings struct {
	LogLevel  string // debug, info, warn, error (default "info")
	LogFormat string // text or json (default "text")
	LogStdout bool   // log to stdout instead of stderr

	// MetricsAddr is the HTTP listen address for /metrics and /healthz.
	// Empty disables the ops listener.
	MetricsAddr string

	// Rate limiting per peer. Zero RPS disables it.
	RateLimitRPS   float64
	RateLimitBurst int

	ShutdownTimeout time.Duration

	// Warnings collects non-fatal problems found while loading. They are
	// logged by the caller once the logger exists.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (s *Settings) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
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

// LoadFromEnv loads settings from environment variables.
func LoadFromEnv() (*Settings, error) {
	s := &Settings{
		LogLevel:    strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		LogFormat:   strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))),
		LogStdout:   parseBoolEnvDefault("LOG_STDOUT", false),
		MetricsAddr: strings.TrimSpace(os.Getenv("METRICS_ADDR")),
	}

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("RATE_LIMIT_RPS must be a non-negative number, got %q", v)
		}
		s.RateLimitRPS = f
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("RATE_LIMIT_BURST must be a non-negative integer, got %q", v)
		}
		s.RateLimitBurst = n
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse SHUTDOWN_TIMEOUT: %w", err)
		}
		s.ShutdownTimeout = d
	}

	// Defaults
	switch strings.ToLower(s.LogLevel) {
	case "":
		s.LogLevel = "info"
	case "debug", "info", "warn", "warning", "error":
	default:
		s.Warnings = append(s.Warnings, fmt.Sprintf("unknown LOG_LEVEL %q, using info", s.LogLevel))
		s.LogLevel = "info"
	}
	switch s.LogFormat {
	case "":
		s.LogFormat = "text"
	case "text", "json":
	default:
		s.Warnings = append(s.Warnings, fmt.Sprintf("unknown LOG_FORMAT %q, using text", s.LogFormat))
		s.LogFormat = "text"
	}
	if s.ShutdownTimeout <= 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.RateLimitRPS > 0 && s.RateLimitBurst == 0 {
		s.RateLimitBurst = max(1, int(s.RateLimitRPS))
	}

	return s, nil
}

// NewLogger builds the process logger described by the settings.
func NewLogger(s *Settings) *slog.Logger {
	var w io.Writer = os.Stderr
	if s.LogStdout {
		w = os.Stdout
	}
	return newLogger(w, s)
}

func newLogger(w io.Writer, s *Settings) *slog.Logger {
	opts := &slog.HandlerOptions{Level: s.SlogLevel()}
	if s.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// EnvFile returns the dotenv file to load: RUDDY_ENV_FILE, or .env.
func EnvFile() string {
	if v := strings.TrimSpace(os.Getenv("RUDDY_ENV_FILE")); v != "" {
		return v
	}
	return ".env"
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch v {
	case "0", "false", "no", "off":
		return false
	case "1", "true", "yes", "on":
		return true
	}
	return defaultVal
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("setenv %s: %w", key, err)
		}
	}
	return scanner.Err()
}

// stripQuotes removes one pair of matching surrounding quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

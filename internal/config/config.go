// Package config reads process configuration from the environment, with an
// optional .env file for local runs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"dinner-chat/internal/usecase"
)

type Config struct {
	// Credential sources, in precedence order.
	OpenAIAPIKey   string
	ViteAPIKey     string
	OpenAIKeyParam string

	OpenAIBaseURL string
	OpenAITimeout time.Duration
	Chat          usecase.Settings

	ArchiveTable string
	MaxSessions  int

	Port      string
	LogLevel  slog.Level
	LogFormat string
}

// Load reads the given .env files (default ".env"; missing files are
// ignored) and then the environment. Values already set in the environment
// win over .env entries.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (Config, error) {
	var errs []error

	temperature, err := envFloat("OPENAI_TEMPERATURE", usecase.DefaultTemperature)
	errs = append(errs, err)
	maxTokens, err := envInt("OPENAI_MAX_TOKENS", usecase.DefaultMaxTokens)
	errs = append(errs, err)
	timeout, err := envDuration("OPENAI_TIMEOUT", 0)
	errs = append(errs, err)
	maxSessions, err := envInt("MAX_SESSIONS", 1000)
	errs = append(errs, err)
	level, err := parseLevel(envOr("LOG_LEVEL", "info"))
	errs = append(errs, err)

	defaultFormat := "text"
	if InLambda() {
		defaultFormat = "json"
	}
	format := strings.ToLower(envOr("LOG_FORMAT", defaultFormat))
	if format != "text" && format != "json" {
		errs = append(errs, fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", format))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	return Config{
		OpenAIAPIKey:   strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		ViteAPIKey:     strings.TrimSpace(os.Getenv("VITE_OPENAI_API_KEY")),
		OpenAIKeyParam: strings.TrimSpace(os.Getenv("OPENAI_KEY_PARAM")),
		OpenAIBaseURL:  envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAITimeout:  timeout,
		Chat: usecase.Settings{
			Model:        envOr("OPENAI_MODEL", usecase.DefaultModel),
			SystemPrompt: envOr("SYSTEM_PROMPT", usecase.DefaultSystemPrompt),
			Temperature:  temperature,
			MaxTokens:    maxTokens,
		},
		ArchiveTable: strings.TrimSpace(os.Getenv("ARCHIVE_TABLE")),
		MaxSessions:  maxSessions,
		Port:         envOr("PORT", "8080"),
		LogLevel:     level,
		LogFormat:    format,
	}, nil
}

// InLambda reports whether the process runs inside the AWS Lambda runtime.
func InLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// APIKeyCandidates lists the directly configured keys in precedence order.
func (c Config) APIKeyCandidates() []string {
	return []string{c.OpenAIAPIKey, c.ViteAPIKey}
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a number: %w", key, err)
	}
	return f, nil
}

// envDuration accepts Go durations ("30s") or a bare number of seconds.
func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a duration: %w", key, err)
	}
	return d, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return level, nil
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"photowall/internal/config"
)

const logLevelEnvKey = "PHOTOWALL_LOG_LEVEL"

type levelSource string

const (
	levelFromFlag    levelSource = "flag"
	levelFromEnv     levelSource = "env"
	levelFromConfig  levelSource = "config"
	levelFromDefault levelSource = "default"
)

// configureLoggerForCLI installs the default slog logger. An invalid flag is
// an error; an invalid env or config value falls back to the default level
// and yields a warning line for stderr.
func configureLoggerForCLI(flagLevel, configLevel string) (string, error) {
	envLevel := os.Getenv(logLevelEnvKey)
	raw, source := selectedLogLevel(flagLevel, envLevel, configLevel)

	level, err := parseLogLevel(raw)
	if err == nil {
		slog.SetDefault(newLogger(level))
		return "", nil
	}
	if source == levelFromFlag {
		return "", fmt.Errorf("invalid --log-level %q", flagLevel)
	}

	fallback, _ := parseLogLevel("")
	slog.SetDefault(newLogger(fallback))
	switch source {
	case levelFromEnv:
		return fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", logLevelEnvKey, envLevel, config.DefaultLogLevel), nil
	case levelFromConfig:
		return fmt.Sprintf("warning: invalid log_level=%q; defaulting to %s", configLevel, config.DefaultLogLevel), nil
	default:
		return "", nil
	}
}

// selectedLogLevel applies flag > env > config precedence.
func selectedLogLevel(flagLevel, envLevel, configLevel string) (string, levelSource) {
	for _, candidate := range []struct {
		value  string
		source levelSource
	}{
		{flagLevel, levelFromFlag},
		{envLevel, levelFromEnv},
		{configLevel, levelFromConfig},
	} {
		if strings.TrimSpace(candidate.value) != "" {
			return candidate.value, candidate.source
		}
	}
	return "", levelFromDefault
}

func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "":
		value = config.DefaultLogLevel
	case "warning":
		value = "warn"
	}

	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

package gcp

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetEnvInt reads an integer variable, falling back on absence or parse failure.
func GetEnvInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Ignoring malformed integer environment variable", "key", key, "value", raw)
		return fallback
	}
	return v
}

// GetEnvBool reads a boolean variable, falling back on absence or parse failure.
func GetEnvBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("Ignoring malformed boolean environment variable", "key", key, "value", raw)
		return fallback
	}
	return v
}

// GetEnvDuration reads a time.ParseDuration value, falling back on absence or parse failure.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Ignoring malformed duration environment variable", "key", key, "value", raw)
		return fallback
	}
	return v
}

// Package env reads typed configuration values from the environment.
// Malformed values fall back to the default rather than failing startup;
// pkg/config validates the values that must be sane.
package env

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

func lookup(key string) (string, bool) {
	value := os.Getenv(key)
	return value, value != ""
}

// GetString returns the variable's value, or the default when unset
func GetString(key, defaultValue string) string {
	if value, ok := lookup(key); ok {
		return value
	}
	return defaultValue
}

// GetStringFromFile resolves secrets: when <key>_FILE names a readable file
// (a mounted Docker secret), its trimmed content wins; otherwise the plain
// variable is used.
func GetStringFromFile(key, defaultValue string) string {
	if path, ok := lookup(key + "_FILE"); ok {
		if content, err := os.ReadFile(filepath.Clean(path)); err == nil {
			return string(bytes.TrimSpace(content))
		}
	}
	return GetString(key, defaultValue)
}

// GetInt returns the variable parsed as an integer, or the default
func GetInt(key string, defaultValue int) int {
	if raw, ok := lookup(key); ok {
		if value, err := strconv.Atoi(raw); err == nil {
			return value
		}
	}
	return defaultValue
}

// GetDuration returns the variable parsed as a time.Duration, or the default
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	if raw, ok := lookup(key); ok {
		if value, err := time.ParseDuration(raw); err == nil {
			return value
		}
	}
	return defaultValue
}

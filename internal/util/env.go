// Package util holds small helpers with no home of their own.
package util

import (
	"log/slog"
	"os"
	"strings"
)

// ParseBoolEnv reads a boolean from the environment. Accepted spellings
// are true/1/yes/on and false/0/no/off, case-insensitive; unset or
// unrecognized values fall back to def.
func ParseBoolEnv(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	slog.Warn("Ignoring unrecognized boolean environment value", "key", key, "value", raw, "default", def)
	return def
}

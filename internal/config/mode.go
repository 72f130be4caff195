package config

import (
	"log/slog"
	"os"
	"strings"
)

// Mode selects between serving straight from sources and a built output tree.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeRelease     Mode = "release"
)

// ModeEnvVar overrides the configured mode when set.
const ModeEnvVar = "ASSETFORGE_MODE"

// NormalizeMode maps user input to a Mode. Unknown values come back lowercased and
// unchanged so Validate can report them.
func NormalizeMode(raw string) Mode {
	switch s := strings.ToLower(strings.TrimSpace(raw)); s {
	case "development", "dev":
		return ModeDevelopment
	case "release", "prod", "production":
		return ModeRelease
	default:
		return Mode(s)
	}
}

// IsRelease reports whether m is the release mode.
func (m Mode) IsRelease() bool { return m == ModeRelease }

// ResolveEffectiveMode determines the mode for this invocation.
// Precedence:
// 1. ASSETFORGE_MODE
// 2. mode from configuration
// 3. fallback: development
func ResolveEffectiveMode(cfg *Config) Mode {
	if env := os.Getenv(ModeEnvVar); env != "" {
		m := NormalizeMode(env)
		if m == ModeDevelopment || m == ModeRelease {
			if cfg != nil && cfg.Mode != m {
				slog.Info("Overriding configured mode from environment", "configured", cfg.Mode, "effective", m)
			}
			return m
		}
		slog.Warn("Ignoring unknown mode in environment", slog.String("value", env))
	}
	if cfg == nil {
		return ModeDevelopment
	}
	if cfg.Mode == ModeRelease {
		return ModeRelease
	}
	return ModeDevelopment
}

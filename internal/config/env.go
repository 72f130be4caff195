package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	aerrors "git.home.luguber.info/inful/assetforge/internal/errors"
)

// envFiles are tried in order; the first one present is loaded.
var envFiles = []string{".env", ".env.local"}

// loadEnvFile loads the first .env file found into the process environment.
// Variables already set are not overwritten. A missing file is not an error;
// a malformed one is.
func loadEnvFile() (string, error) {
	for _, p := range envFiles {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return "", aerrors.ConfigInvalid("env", p+": "+err.Error())
		}
		slog.Debug("Loaded environment variables", slog.String("file", p))
		return p, nil
	}
	return "", nil
}

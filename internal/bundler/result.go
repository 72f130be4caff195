package bundler

import (
	"time"

	"git.home.luguber.info/inful/assetforge/internal/config"
)

// Result describes a finished build.
type Result struct {
	ID   string
	Mode config.Mode

	// Directories the serving switch should read from: the sources in
	// development, the output tree in release.
	AssetsDir string
	PublicDir string

	ManifestPath string // Empty in development
	ReportPath   string // Empty in development
	EnvPath      string

	Manifest map[string]string

	Stylesheets  int
	Opaque       int
	PublicFiles  int
	Compressed   int
	BytesWritten int64
	Duration     time.Duration
}

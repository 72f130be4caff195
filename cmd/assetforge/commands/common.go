package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/assetforge/internal/config"
	aerrors "git.home.luguber.info/inful/assetforge/internal/errors"
)

// LogLevelEnvVar overrides the log level chosen by --verbose.
const LogLevelEnvVar = "ASSETFORGE_LOG_LEVEL"

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer // user-facing output; os.Stdout unless a test replaces it
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags - used by commands that need access to root config.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"assetforge.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build    BuildCmd    `cmd:"" help:"Build assets for the configured mode"`
	Serve    ServeCmd    `cmd:"" help:"Serve assets and the public tree over HTTP"`
	Resolve  ResolveCmd  `cmd:"" help:"Print the URL for logical asset keys"`
	Discover DiscoverCmd `cmd:"" help:"List the assets a build would publish"`
	Init     InitCmd     `cmd:"" help:"Initialize a new configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	slog.SetDefault(newLogger(os.Stderr, c.Verbose))
	return nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLogLevel(verbose)}))
}

// parseLogLevel honours ASSETFORGE_LOG_LEVEL first, then --verbose.
func parseLogLevel(verbose bool) slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(LogLevelEnvVar))) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// loadConfig reads the configuration file. The default file name may be absent,
// in which case defaults apply; an explicitly named file must exist.
func loadConfig(path string) (*config.Config, error) {
	if path == "" || path == config.DefaultFileName {
		return config.LoadOrDefault(config.DefaultFileName)
	}
	return config.Load(path)
}

// modeOverride parses a --mode flag value. Empty means no override.
func modeOverride(raw string) (config.Mode, bool, error) {
	if raw == "" {
		return "", false, nil
	}
	m := config.NormalizeMode(raw)
	if m != config.ModeDevelopment && m != config.ModeRelease {
		return "", false, aerrors.ConfigInvalid("--mode", "must be development or release, got "+raw)
	}
	return m, true, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

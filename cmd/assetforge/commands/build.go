package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"git.home.luguber.info/inful/assetforge/internal/bundler"
	"git.home.luguber.info/inful/assetforge/internal/config"
	"git.home.luguber.info/inful/assetforge/internal/logfields"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Mode string `short:"m" help:"Build mode (development|release). Precedence: --mode > ASSETFORGE_MODE > config."`
	Out  string `short:"o" help:"Output directory (overrides output.dir)"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config)
	if err != nil {
		return err
	}
	if b.Out != "" {
		cfg.Output.Dir = b.Out
	}

	var opts []bundler.Option
	m, ok, err := modeOverride(b.Mode)
	if err != nil {
		return err
	}
	if ok {
		slog.Info("Mode overridden via CLI flag", logfields.Mode(string(m)))
		opts = append(opts, bundler.WithMode(m))
	}

	ctx, cancel := signalContext()
	defer cancel()

	_, err = RunBuild(ctx, g.out(), cfg, opts...)
	return err
}

// RunBuild runs one build and prints a summary to out.
func RunBuild(ctx context.Context, out io.Writer, cfg *config.Config, opts ...bundler.Option) (*bundler.Result, error) {
	builder, err := bundler.NewBuilder(cfg, opts...)
	if err != nil {
		return nil, err
	}

	_, _ = fmt.Fprintf(out, "Starting assetforge build (%s)\n", builder.Mode())
	res, err := builder.Build(ctx)
	if err != nil {
		_, _ = fmt.Fprintln(out, "Build failed")
		return nil, err
	}

	if res.Mode.IsRelease() {
		_, _ = fmt.Fprintf(out, "Published %d stylesheet(s) and %d other asset(s) to %s\n", res.Stylesheets, res.Opaque, res.AssetsDir)
		_, _ = fmt.Fprintf(out, "Copied %d public file(s), wrote %d precompressed sibling(s)\n", res.PublicFiles, res.Compressed)
		_, _ = fmt.Fprintf(out, "Manifest: %s\n", res.ManifestPath)
	} else {
		_, _ = fmt.Fprintf(out, "Development build: serving %s and %s from source\n", res.AssetsDir, res.PublicDir)
	}
	_, _ = fmt.Fprintf(out, "Environment: %s\n", res.EnvPath)
	_, _ = fmt.Fprintln(out, "Build completed successfully")
	return res, nil
}

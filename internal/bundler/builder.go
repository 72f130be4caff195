// Package bundler drives a build: it walks the asset root, publishes every asset
// and writes the manifest, env file and build report.
package bundler

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/assetforge/internal/assets"
	"git.home.luguber.info/inful/assetforge/internal/config"
	aerrors "git.home.luguber.info/inful/assetforge/internal/errors"
	"git.home.luguber.info/inful/assetforge/internal/git"
	"git.home.luguber.info/inful/assetforge/internal/logfields"
	"git.home.luguber.info/inful/assetforge/internal/lookup"
	"git.home.luguber.info/inful/assetforge/internal/manifest"
	"git.home.luguber.info/inful/assetforge/internal/metrics"
	"git.home.luguber.info/inful/assetforge/internal/version"
)

// Stage names used in logs and metrics.
const (
	StageClean       = "clean"
	StagePublic      = "public"
	StageOpaque      = "opaque"
	StageStylesheets = "stylesheets"
	StageManifest    = "manifest"
	StagePrecompress = "precompress"
	StageReport      = "report"
)

// Builder runs one build. It owns the manifest for that build; create a new
// Builder for every build.
type Builder struct {
	cfg      *config.Config
	mode     config.Mode
	source   *assets.Source
	manifest *manifest.Manifest
	recorder metrics.Recorder
	revision func(string) (string, error)
	now      func() time.Time
	newID    func() string

	bytesWritten atomic.Int64
	ran          atomic.Bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(b *Builder) {
		if r != nil {
			b.recorder = r
		}
	}
}

// WithMode overrides the mode resolved from configuration and environment.
func WithMode(m config.Mode) Option {
	return func(b *Builder) { b.mode = m }
}

// WithRevisionFunc replaces the source revision lookup used for the build report.
func WithRevisionFunc(fn func(string) (string, error)) Option {
	return func(b *Builder) { b.revision = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder validates cfg and walks the asset root. A missing root fails here,
// before anything is written.
func NewBuilder(cfg *config.Config, opts ...Option) (*Builder, error) {
	if cfg == nil {
		return nil, aerrors.InternalError("nil configuration", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Builder{
		cfg:      cfg,
		mode:     config.ResolveEffectiveMode(cfg),
		manifest: manifest.New(),
		recorder: metrics.NoopRecorder{},
		revision: git.ReadRepoHead,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}

	src, err := assets.Walk(cfg.Assets.Dir, assets.Options{
		IgnorePrefix: cfg.Assets.IgnorePrefix,
		Exclude:      cfg.Assets.Exclude,
	})
	if err != nil {
		return nil, err
	}
	b.source = src
	return b, nil
}

// Mode returns the mode this builder runs in.
func (b *Builder) Mode() config.Mode { return b.mode }

// Source returns the classified asset root.
func (b *Builder) Source() *assets.Source { return b.source }

// Manifest returns the manifest populated by Build.
func (b *Builder) Manifest() *manifest.Manifest { return b.manifest }

// Build runs the build once.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	if !b.ran.CompareAndSwap(false, true) {
		return nil, aerrors.InternalError("builder already used; create a new one per build", nil)
	}

	start := b.now()
	id := b.newID()
	slog.Info("Build started", logfields.BuildID(id), logfields.Mode(string(b.mode)))

	var (
		res *Result
		err error
	)
	if b.mode.IsRelease() {
		res, err = b.buildRelease(ctx, id, start)
	} else {
		res, err = b.buildDevelopment(id)
	}

	elapsed := b.now().Sub(start)
	b.recorder.ObserveBuildDuration(elapsed)
	switch {
	case err == nil:
		b.recorder.IncBuildOutcome(metrics.BuildOutcomeSuccess)
	case stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded):
		b.recorder.IncBuildOutcome(metrics.BuildOutcomeCanceled)
	default:
		b.recorder.IncBuildOutcome(metrics.BuildOutcomeFailed)
	}
	if err != nil {
		slog.Error("Build failed", logfields.BuildID(id), logfields.Error(err))
		return nil, err
	}

	res.Duration = elapsed
	slog.Info("Build completed",
		logfields.BuildID(id),
		logfields.Mode(string(b.mode)),
		logfields.Count(len(res.Manifest)),
		logfields.Bytes(res.BytesWritten),
		logfields.DurationMS(float64(elapsed.Microseconds())/1000))
	return res, nil
}

func (b *Builder) buildDevelopment(id string) (*Result, error) {
	assetsDir := b.source.Root
	publicDir, err := filepath.Abs(b.cfg.Public.Dir)
	if err != nil {
		return nil, aerrors.DirectoryNotFound("public", b.cfg.Public.Dir, err)
	}

	if err := os.MkdirAll(b.cfg.Output.Dir, 0o750); err != nil {
		return nil, aerrors.IOError("mkdir", b.cfg.Output.Dir, err)
	}
	envPath := filepath.Join(b.cfg.Output.Dir, lookup.EnvFileName)
	env := lookup.Env{
		Release:   false,
		PublicDir: publicDir,
		AssetsDir: assetsDir,
		AssetsURL: b.assetsURL(),
	}
	if err := lookup.WriteEnv(envPath, env); err != nil {
		return nil, aerrors.IOError("write", envPath, err)
	}

	return &Result{
		ID:          id,
		Mode:        b.mode,
		AssetsDir:   assetsDir,
		PublicDir:   publicDir,
		EnvPath:     envPath,
		Manifest:    map[string]string{},
		Stylesheets: len(b.source.Stylesheets),
		Opaque:      len(b.source.Opaque),
	}, nil
}

func (b *Builder) buildRelease(ctx context.Context, id string, start time.Time) (*Result, error) {
	outDir := b.cfg.Output.Dir
	outPublic := b.cfg.OutputPublicPath()
	outAssets := b.cfg.OutputAssetsPath()
	res := &Result{ID: id, Mode: b.mode}

	err := b.runStage(StageClean, func() error {
		if err := os.RemoveAll(outDir); err != nil {
			return aerrors.IOError("remove", outDir, err)
		}
		if err := os.MkdirAll(outAssets, 0o750); err != nil {
			return aerrors.IOError("mkdir", outAssets, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = b.runStage(StagePublic, func() error {
		info, statErr := os.Stat(b.cfg.Public.Dir)
		if statErr != nil || !info.IsDir() {
			slog.Warn("Public directory not found, skipping copy", logfields.Path(b.cfg.Public.Dir))
			return nil
		}
		files, n, err := copyTree(b.cfg.Public.Dir, outPublic)
		if err != nil {
			return aerrors.IOError("copy", b.cfg.Public.Dir, err)
		}
		res.PublicFiles = files
		b.bytesWritten.Add(n)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := b.runStage(StageOpaque, func() error { return b.processOpaque(ctx, outAssets) }); err != nil {
		return nil, err
	}
	if err := b.runStage(StageStylesheets, func() error { return b.processStylesheets(ctx, outAssets) }); err != nil {
		return nil, err
	}

	manifestPath := filepath.Join(outDir, manifest.FileName)
	err = b.runStage(StageManifest, func() error {
		if err := b.manifest.WriteFile(manifestPath); err != nil {
			return aerrors.SerializationError(manifestPath, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if b.cfg.Release.Precompress {
		err = b.runStage(StagePrecompress, func() error {
			n, size, err := b.precompressTree(outPublic)
			if err != nil {
				return aerrors.IOError("precompress", outPublic, err)
			}
			res.Compressed = n
			b.bytesWritten.Add(size)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	absPublic, _ := filepath.Abs(outPublic)
	absAssets, _ := filepath.Abs(outAssets)
	absManifest, _ := filepath.Abs(manifestPath)
	res.AssetsDir = absAssets
	res.PublicDir = absPublic
	res.ManifestPath = manifestPath
	res.Manifest = b.manifest.Entries()
	res.Stylesheets = len(b.source.Stylesheets)
	res.Opaque = len(b.source.Opaque)

	err = b.runStage(StageReport, func() error {
		res.EnvPath = filepath.Join(outDir, lookup.EnvFileName)
		env := lookup.Env{
			Release:   true,
			PublicDir: absPublic,
			AssetsDir: absAssets,
			AssetsURL: b.assetsURL(),
			Manifest:  absManifest,
		}
		if err := lookup.WriteEnv(res.EnvPath, env); err != nil {
			return aerrors.IOError("write", res.EnvPath, err)
		}

		res.ReportPath = filepath.Join(outDir, manifest.ReportFileName)
		res.BytesWritten = b.bytesWritten.Load()
		report, err := b.report(res, start)
		if err != nil {
			return err
		}
		if err := report.WriteFile(res.ReportPath); err != nil {
			return aerrors.SerializationError(res.ReportPath, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.recorder.AddBytesWritten(res.BytesWritten)
	return res, nil
}

func (b *Builder) report(res *Result, start time.Time) (*manifest.BuildReport, error) {
	manifestHash, err := b.manifest.Hash()
	if err != nil {
		return nil, aerrors.SerializationError(res.ManifestPath, err)
	}

	revision, err := b.revision(b.source.Root)
	if err != nil {
		slog.Debug("No source revision for build report", logfields.Error(err))
		revision = ""
	}

	return &manifest.BuildReport{
		ID:        res.ID,
		Timestamp: start.UTC(),
		Version:   version.Version,
		Inputs: manifest.Inputs{
			AssetRoot:  b.source.Root,
			PublicRoot: b.cfg.Public.Dir,
			Revision:   revision,
			Stylesheet: len(b.source.Stylesheets),
			Opaque:     len(b.source.Opaque),
		},
		Options: manifest.Options{
			Mode:        string(b.mode),
			Hashed:      b.cfg.Release.Hashed,
			Flatten:     b.cfg.Release.Flatten,
			Minify:      b.cfg.Release.Minify,
			Precompress: b.cfg.Release.Precompress,
		},
		Outputs: manifest.Outputs{
			ManifestHash: manifestHash,
			Entries:      b.manifest.Len(),
			PublicFiles:  res.PublicFiles,
			Compressed:   res.Compressed,
			BytesWritten: res.BytesWritten,
		},
		Status:   "success",
		Duration: b.now().Sub(start).Milliseconds(),
	}, nil
}

// runStage times fn and records its result.
func (b *Builder) runStage(name string, fn func() error) error {
	start := b.now()
	err := fn()
	elapsed := b.now().Sub(start)
	b.recorder.ObserveStageDuration(name, elapsed)

	switch {
	case err == nil:
		b.recorder.IncStageResult(name, metrics.ResultSuccess)
		slog.Debug("Stage completed", logfields.Stage(name), logfields.DurationMS(float64(elapsed.Microseconds())/1000))
	case stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded):
		b.recorder.IncStageResult(name, metrics.ResultCanceled)
	default:
		b.recorder.IncStageResult(name, metrics.ResultFailed)
	}
	return err
}

func (b *Builder) assetsURL() string {
	return strings.Trim(b.cfg.Serve.AssetsPrefix, "/")
}

func (b *Builder) workers() int {
	if b.cfg.Release.Workers > 0 {
		return b.cfg.Release.Workers
	}
	return runtime.NumCPU()
}

// failures collects per-asset errors from concurrent workers.
type failures struct {
	mu   sync.Mutex
	errs []error
}

func (f *failures) add(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *failures) join(stage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) == 0 {
		return nil
	}
	return aerrors.BuildFailed(stage, fmt.Errorf("%d asset(s) failed: %w", len(f.errs), stderrors.Join(f.errs...)))
}

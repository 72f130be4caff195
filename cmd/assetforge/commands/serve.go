package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/natefinch/lumberjack.v2"

	"git.home.luguber.info/inful/assetforge/internal/bundler"
	"git.home.luguber.info/inful/assetforge/internal/config"
	aerrors "git.home.luguber.info/inful/assetforge/internal/errors"
	"git.home.luguber.info/inful/assetforge/internal/livereload"
	"git.home.luguber.info/inful/assetforge/internal/logfields"
	"git.home.luguber.info/inful/assetforge/internal/metrics"
	"git.home.luguber.info/inful/assetforge/internal/server"
	"git.home.luguber.info/inful/assetforge/internal/server/middleware"
)

const shutdownTimeout = 10 * time.Second

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Addr         string `help:"Listen address (overrides serve.addr)"`
	Mode         string `short:"m" help:"Serving mode (development|release). Precedence: --mode > ASSETFORGE_MODE > config."`
	Build        bool   `help:"Run a release build before serving"`
	Metrics      bool   `help:"Expose Prometheus metrics at /metrics (or set serve.metrics)"`
	NoLiveReload bool   `name:"no-live-reload" help:"Disable live reload in development mode"`
	LogFile      string `name:"log-file" help:"Also write logs to this file, rotated by size"`
	LogMaxSizeMB int    `name:"log-max-size" default:"50" help:"Rotate the log file after this many megabytes"`
}

func (s *ServeCmd) Run(_ *Global, root *CLI) error {
	if s.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   s.LogFile,
			MaxSize:    s.LogMaxSizeMB,
			MaxBackups: 3,
			Compress:   true,
		}
		defer func() { _ = rotator.Close() }()
		slog.SetDefault(newLogger(io.MultiWriter(os.Stderr, rotator), root.Verbose))
	}

	cfg, err := loadConfig(root.Config)
	if err != nil {
		return err
	}
	if s.Addr != "" {
		cfg.Serve.Addr = s.Addr
	}
	mode := config.ResolveEffectiveMode(cfg)
	m, ok, err := modeOverride(s.Mode)
	if err != nil {
		return err
	}
	if ok {
		mode = m
	}
	if mode.IsRelease() && !cfg.URLPrefixServed() {
		slog.Warn("Rewritten stylesheet references fall outside the served assets prefix",
			slog.String("url_prefix", cfg.Release.URLPrefix),
			slog.String("assets_prefix", cfg.Serve.AssetsPrefix),
			slog.String("hint", "set release.url_prefix to "+cfg.ServedURLPrefix()))
	}

	ctx, cancel := signalContext()
	defer cancel()

	var (
		reg      *prometheus.Registry
		recorder metrics.Recorder = metrics.NoopRecorder{}
	)
	if s.Metrics || cfg.Serve.Metrics {
		reg = prometheus.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
	}

	if s.Build && mode.IsRelease() {
		builder, err := bundler.NewBuilder(cfg, bundler.WithMode(mode), bundler.WithRecorder(recorder))
		if err != nil {
			return err
		}
		if _, err := builder.Build(ctx); err != nil {
			return err
		}
	}

	opts := []server.Option{
		server.WithPrefix(cfg.Serve.AssetsPrefix),
		server.WithRecorder(recorder),
	}
	var sw *server.Switch
	if mode.IsRelease() {
		sw = server.NewRelease(cfg.OutputPublicPath(), cfg.Output.AssetsDir, opts...)
	} else {
		sw = server.NewDevelopment(cfg.Assets.Dir, cfg.Public.Dir, opts...)
	}
	if err := sw.Ready(); err != nil {
		slog.Warn("Serving directories not ready", logfields.Error(err))
	}

	var hub *livereload.Hub
	if !mode.IsRelease() && cfg.Serve.LiveReload && !s.NoLiveReload {
		hub = livereload.NewHub()
		defer hub.Shutdown()
		watcher, err := livereload.NewWatcher(hub, livereload.DefaultDebounce, cfg.Assets.Dir, cfg.Public.Dir)
		if err != nil {
			return aerrors.Wrap(err, aerrors.CategoryServe, aerrors.SeverityError, "start file watcher")
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				slog.Warn("File watcher stopped", logfields.Error(err))
			}
		}()
	}

	handler := NewRouter(RouterConfig{Switch: sw, LiveReload: hub, Registry: reg, Logger: slog.Default()})
	slog.Info("Serving assets",
		logfields.Mode(string(mode)),
		slog.String("addr", cfg.Serve.Addr),
		slog.String("assets_prefix", sw.Prefix()),
		slog.Bool("live_reload", hub != nil),
		slog.Bool("metrics", reg != nil))
	return listenAndServe(ctx, cfg.Serve.Addr, handler, hub)
}

// RouterConfig lists what the serve router mounts. Nil LiveReload or Registry
// leaves the matching endpoints out.
type RouterConfig struct {
	Switch     *server.Switch
	LiveReload *livereload.Hub
	Registry   *prometheus.Registry
	Logger     *slog.Logger
}

// NewRouter mounts health, readiness, metrics and live reload endpoints next to
// the serving switch, which receives every other path.
func NewRouter(rc RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Chain(rc.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := rc.Switch.Ready(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "not ready: %v\n", err)
			return
		}
		_, _ = io.WriteString(w, "ready\n")
	})
	if rc.Registry != nil {
		r.Handle("/metrics", metrics.HTTPHandler(rc.Registry))
	}

	var static http.Handler = rc.Switch
	if rc.LiveReload != nil {
		r.Get(livereload.EventsPath, rc.LiveReload.ServeHTTP)
		r.Handle(livereload.ScriptPath, livereload.ScriptHandler())
		static = livereload.Inject(static)
	}
	r.Handle("/*", static)
	return r
}

func listenAndServe(ctx context.Context, addr string, handler http.Handler, hub *livereload.Hub) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return aerrors.Wrap(err, aerrors.CategoryServe, aerrors.SeverityFatal, "listen on "+addr)
		}
		return nil
	case <-ctx.Done():
		slog.Info("Shutdown signal received, stopping server")
	}

	// Live reload streams never finish on their own.
	if hub != nil {
		hub.Shutdown()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return aerrors.Wrap(err, aerrors.CategoryServe, aerrors.SeverityError, "shutdown")
	}
	slog.Info("Server stopped")
	return nil
}

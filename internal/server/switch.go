// Package server routes static requests between the processed assets tree and
// the public tree.
package server

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	aerrors "git.home.luguber.info/inful/assetforge/internal/errors"
	"git.home.luguber.info/inful/assetforge/internal/logfields"
	"git.home.luguber.info/inful/assetforge/internal/metrics"
	"git.home.luguber.info/inful/assetforge/internal/server/middleware"
)

// DefaultPrefix is the URL path the assets tree is mounted under.
const DefaultPrefix = "/assets"

// Request sources reported to the metrics recorder.
const (
	SourceAssets   = "assets"
	SourcePublic   = "public"
	SourceFallback = "fallback"
)

const indexFile = "index.html"

// Switch dispatches GET and HEAD requests under the prefix to the assets tree and
// everything else to the public tree. Misses go to the fallback handler.
type Switch struct {
	assets   fs.FS
	public   fs.FS
	prefix   string
	release  bool
	fallback http.Handler
	recorder metrics.Recorder
	logger   *slog.Logger
}

// Option configures a Switch.
type Option func(*Switch)

// WithPrefix mounts the assets tree under p instead of DefaultPrefix.
func WithPrefix(p string) Option {
	return func(s *Switch) {
		p = "/" + strings.Trim(p, "/")
		if p != "/" {
			s.prefix = p
		}
	}
}

// WithFallback sets the handler used when neither tree has the requested file.
func WithFallback(h http.Handler) Option {
	return func(s *Switch) {
		if h != nil {
			s.fallback = h
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Switch) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets the logger used for read failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Switch) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a Switch over the given trees. Release switches serve precompressed
// siblings and long-lived cache headers for hashed names.
func New(assetsFS, publicFS fs.FS, release bool, opts ...Option) *Switch {
	s := &Switch{
		assets:   assetsFS,
		public:   publicFS,
		prefix:   DefaultPrefix,
		release:  release,
		fallback: http.NotFoundHandler(),
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDevelopment serves straight from the source directories.
func NewDevelopment(assetsDir, publicDir string, opts ...Option) *Switch {
	return New(os.DirFS(assetsDir), os.DirFS(publicDir), false, opts...)
}

// NewRelease serves the built output: publicDir is the copied public tree and
// assetsSubdir the processed assets directory inside it.
func NewRelease(publicDir, assetsSubdir string, opts ...Option) *Switch {
	return New(os.DirFS(filepath.Join(publicDir, assetsSubdir)), os.DirFS(publicDir), true, opts...)
}

// Prefix returns the URL path the assets tree is mounted under.
func (s *Switch) Prefix() string {
	return s.prefix
}

// Ready reports whether both trees are available.
func (s *Switch) Ready() error {
	return errors.Join(
		treeReady(SourceAssets, s.assets),
		treeReady(SourcePublic, s.public),
	)
}

func treeReady(role string, fsys fs.FS) error {
	fi, err := fs.Stat(fsys, ".")
	if err != nil {
		return aerrors.Wrap(err, aerrors.CategoryServe, aerrors.SeverityError, role+" directory unavailable").
			WithContext("role", role)
	}
	if !fi.IsDir() {
		return aerrors.New(aerrors.CategoryServe, aerrors.SeverityError, role+" root is not a directory").
			WithContext("role", role)
	}
	return nil
}

func (s *Switch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rw := middleware.NewResponseWriter(w)
	source := SourceFallback
	defer func() {
		s.recorder.ObserveRequest(source, rw.Status(), time.Since(start))
	}()

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		rw.Header().Set("Allow", "GET, HEAD")
		http.Error(rw, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	upath := r.URL.Path
	if !strings.HasPrefix(upath, "/") {
		upath = "/" + upath
	}

	fsys, rest, src := s.route(upath)
	if s.serveFrom(rw, r, fsys, rest, src == SourceAssets) {
		source = src
		return
	}
	s.fallback.ServeHTTP(rw, r)
}

// route picks the tree for an absolute URL path and returns the path inside it.
func (s *Switch) route(upath string) (fs.FS, string, string) {
	if upath == s.prefix || strings.HasPrefix(upath, s.prefix+"/") {
		return s.assets, strings.TrimPrefix(upath, s.prefix), SourceAssets
	}
	return s.public, upath, SourcePublic
}

// serveFrom writes the response for rest inside fsys. It returns false when the
// file does not exist so the caller can fall back. processed is set for the
// assets tree.
func (s *Switch) serveFrom(w http.ResponseWriter, r *http.Request, fsys fs.FS, rest string, processed bool) bool {
	name := strings.TrimPrefix(path.Clean("/"+rest), "/")
	if name == "" {
		name = "."
	}

	fi, err := fs.Stat(fsys, name)
	if err != nil {
		return s.handleOpenError(w, r, name, err)
	}

	if fi.IsDir() {
		if rest != "" && !strings.HasSuffix(rest, "/") {
			target := r.URL.Path + "/"
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusMovedPermanently)
			return true
		}
		name = path.Join(name, indexFile)
		fi, err = fs.Stat(fsys, name)
		if err != nil {
			return s.handleOpenError(w, r, name, err)
		}
		if fi.IsDir() {
			return false
		}
	}

	if s.release {
		w.Header().Add("Vary", "Accept-Encoding")
		if s.serveEncoded(w, r, fsys, name, processed) {
			return true
		}
	}

	f, err := fsys.Open(name)
	if err != nil {
		return s.handleOpenError(w, r, name, err)
	}
	defer func() { _ = f.Close() }()

	s.setHeaders(w, name, processed)
	if err := serveContent(w, r, name, fi, f); err != nil {
		s.internalError(w, name, err)
	}
	return true
}

func (s *Switch) setHeaders(w http.ResponseWriter, name string, processed bool) {
	w.Header().Set("Content-Type", contentType(name))
	if cc := cacheControl(name, s.release, processed); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
}

// handleOpenError answers 500 for read failures and reports misses to the caller.
func (s *Switch) handleOpenError(w http.ResponseWriter, _ *http.Request, name string, err error) bool {
	if isMiss(err) {
		return false
	}
	s.internalError(w, name, err)
	return true
}

func (s *Switch) internalError(w http.ResponseWriter, name string, err error) {
	s.logger.Error("Static file read failed", logfields.File(name), logfields.Error(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func isMiss(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) || errors.Is(err, syscall.ENOTDIR)
}

// serveContent streams f, buffering files that cannot seek.
func serveContent(w http.ResponseWriter, r *http.Request, name string, fi fs.FileInfo, f fs.File) error {
	if rs, ok := f.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, fi.ModTime(), rs)
		return nil
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	http.ServeContent(w, r, name, fi.ModTime(), bytes.NewReader(data))
	return nil
}

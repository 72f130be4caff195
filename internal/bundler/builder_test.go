package bundler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetforge/internal/assets"
	"git.home.luguber.info/inful/assetforge/internal/config"
	aerrors "git.home.luguber.info/inful/assetforge/internal/errors"
	"git.home.luguber.info/inful/assetforge/internal/hashing"
	"git.home.luguber.info/inful/assetforge/internal/lookup"
	"git.home.luguber.info/inful/assetforge/internal/manifest"
	"git.home.luguber.info/inful/assetforge/internal/metrics"
	"git.home.luguber.info/inful/assetforge/internal/stylesheet"
)

type fixture struct {
	dir string
	cfg *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Assets.Dir = filepath.Join(dir, "assets")
	cfg.Public.Dir = filepath.Join(dir, "public")
	cfg.Output.Dir = filepath.Join(dir, "dist")
	cfg.Release.Minify = false
	require.NoError(t, os.MkdirAll(cfg.Assets.Dir, 0o755))
	return &fixture{dir: dir, cfg: cfg}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(f.dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func (f *fixture) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) build(t *testing.T, mode config.Mode, opts ...Option) (*Result, error) {
	t.Helper()
	opts = append([]Option{
		WithMode(mode),
		WithRevisionFunc(func(string) (string, error) { return "abc123", nil }),
	}, opts...)
	b, err := NewBuilder(f.cfg, opts...)
	require.NoError(t, err)
	return b.Build(context.Background())
}

func TestBuild_ReleaseEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.write(t, "assets/css/style.css", "body{background:url(../img/cat.jpeg)}")
	f.write(t, "assets/img/cat.jpeg", "JPEGDATA")
	f.write(t, "assets/css/_draft.css", "ignored{}")
	f.write(t, "public/index.html", "<html></html>")
	f.write(t, "public/nested/robots.txt", "User-agent: *")
	f.write(t, "dist/stale.txt", "old")

	res, err := f.build(t, config.ModeRelease)
	require.NoError(t, err)

	catPublished := "img/cat-" + hashing.Digest([]byte("JPEGDATA")) + ".jpeg"
	cssText := "body{background:url(/" + catPublished + ")}"
	cssPublished := "css/style-" + hashing.Digest([]byte(cssText)) + ".css"

	assert.Equal(t, map[string]string{
		"css/style.css": cssPublished,
		"img/cat.jpeg":  catPublished,
	}, res.Manifest)

	assert.Equal(t, cssText, f.read(t, "dist/public/assets/"+cssPublished))
	assert.Equal(t, "JPEGDATA", f.read(t, "dist/public/assets/"+catPublished))
	assert.Equal(t, "<html></html>", f.read(t, "dist/public/index.html"))
	assert.Equal(t, "User-agent: *", f.read(t, "dist/public/nested/robots.txt"))
	assert.NoFileExists(t, filepath.Join(f.dir, "dist", "stale.txt"))

	onDisk, err := manifest.Load(res.ManifestPath)
	require.NoError(t, err)
	assert.Equal(t, res.Manifest, onDisk.Entries())

	assert.Equal(t, 1, res.Stylesheets)
	assert.Equal(t, 1, res.Opaque)
	assert.Equal(t, 2, res.PublicFiles)
	assert.Positive(t, res.BytesWritten)

	env, err := lookup.ReadEnv(res.EnvPath)
	require.NoError(t, err)
	assert.True(t, env.Release)
	assert.Equal(t, res.AssetsDir, env.AssetsDir)
	assert.Equal(t, "assets", env.AssetsURL)
	assert.True(t, filepath.IsAbs(env.Manifest))

	data, err := os.ReadFile(res.ReportPath)
	require.NoError(t, err)
	report, err := manifest.ReportFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, res.ID, report.ID)
	assert.Equal(t, "abc123", report.Inputs.Revision)
	assert.Equal(t, "release", report.Options.Mode)
	assert.Equal(t, 2, report.Outputs.Entries)
	hash, err := onDisk.Hash()
	require.NoError(t, err)
	assert.Equal(t, hash, report.Outputs.ManifestHash)
}

func TestBuild_RewritesImageSetReferences(t *testing.T) {
	f := newFixture(t)
	f.write(t, "assets/css/style.css", `body{background:image-set("../img/cat.jpeg" 1x)}`)
	f.write(t, "assets/img/cat.jpeg", "JPEGDATA")

	res, err := f.build(t, config.ModeRelease)
	require.NoError(t, err)

	catPublished := "img/cat-" + hashing.Digest([]byte("JPEGDATA")) + ".jpeg"
	css := f.read(t, "dist/public/assets/"+res.Manifest["css/style.css"])
	assert.Equal(t, "body{background:image-set(url(/"+catPublished+") 1x)}", css)
}

func TestBuild_Flatten(t *testing.T) {
	f := newFixture(t)
	f.cfg.Release.Flatten = true
	f.write(t, "assets/css/style.css", "body{background:url(../img/cat.jpeg)}")
	f.write(t, "assets/img/cat.jpeg", "JPEGDATA")

	res, err := f.build(t, config.ModeRelease)
	require.NoError(t, err)

	catPublished := "cat-" + hashing.Digest([]byte("JPEGDATA")) + ".jpeg"
	assert.Equal(t, catPublished, res.Manifest["img/cat.jpeg"])
	assert.NotContains(t, res.Manifest["css/style.css"], "/")
	assert.Equal(t, "body{background:url(/"+catPublished+")}", f.read(t, "dist/public/assets/"+res.Manifest["css/style.css"]))
}

func TestBuild_FlattenCollisionFailsWithoutManifest(t *testing.T) {
	f := newFixture(t)
	f.cfg.Release.Flatten = true
	f.write(t, "assets/a/logo.png", "SAME")
	f.write(t, "assets/b/logo.png", "SAME")

	_, err := f.build(t, config.ModeRelease)
	require.Error(t, err)
	assert.ErrorIs(t, err, manifest.ErrPublishedCollision)
	assert.True(t, aerrors.IsCategory(err, aerrors.CategoryBuild))
	assert.NoFileExists(t, filepath.Join(f.dir, "dist", manifest.FileName))
}

func TestBuild_UnhashedKeepsNames(t *testing.T) {
	f := newFixture(t)
	f.cfg.Release.Hashed = false
	f.write(t, "assets/css/style.css", "body{background:url(../img/cat.jpeg)}")
	f.write(t, "assets/img/cat.jpeg", "JPEGDATA")

	res, err := f.build(t, config.ModeRelease)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"css/style.css": "css/style.css", "img/cat.jpeg": "img/cat.jpeg"}, res.Manifest)
	assert.Equal(t, "body{background:url(/img/cat.jpeg)}", f.read(t, "dist/public/assets/css/style.css"))
}

func TestBuild_UnresolvedReferenceFailsBuild(t *testing.T) {
	f := newFixture(t)
	f.write(t, "assets/css/style.css", "body{background:url(../img/missing.png)}")
	f.write(t, "assets/img/cat.jpeg", "JPEGDATA")

	_, err := f.build(t, config.ModeRelease)
	require.Error(t, err)
	assert.ErrorIs(t, err, stylesheet.ErrUnresolvedReference)
	assert.Contains(t, err.Error(), "missing.png")
	assert.NoFileExists(t, filepath.Join(f.dir, "dist", manifest.FileName))
}

func TestBuild_StylesheetReferencingStylesheet(t *testing.T) {
	f := newFixture(t)
	// a.css sorts before theme.css but depends on its published name.
	f.write(t, "assets/a.css", "@import url(theme.css) layer(base);.a{}")
	f.write(t, "assets/theme.css", ".t{background:url(img/x.png)}")
	f.write(t, "assets/img/x.png", "PNG")

	res, err := f.build(t, config.ModeRelease)
	require.NoError(t, err)

	themePublished := res.Manifest["theme.css"]
	require.NotEmpty(t, themePublished)
	assert.Equal(t, "@import url(/"+themePublished+") layer(base);.a{}", f.read(t, "dist/public/assets/"+res.Manifest["a.css"]))
}

func TestBuild_ReferenceCycleFails(t *testing.T) {
	f := newFixture(t)
	f.write(t, "assets/a.css", ".a{background:url(b.css)}")
	f.write(t, "assets/b.css", ".b{background:url(a.css)}")

	_, err := f.build(t, config.ModeRelease)
	require.ErrorIs(t, err, stylesheet.ErrReferenceCycle)
}

func TestBuild_Minify(t *testing.T) {
	f := newFixture(t)
	f.cfg.Release.Minify = true
	f.write(t, "assets/site.css", "body {\n  color: red;\n}\n")

	res, err := f.build(t, config.ModeRelease)
	require.NoError(t, err)
	out := f.read(t, "dist/public/assets/"+res.Manifest["site.css"])
	assert.NotContains(t, out, "\n")
	assert.Contains(t, out, "color:red")
}

func TestBuild_Precompress(t *testing.T) {
	f := newFixture(t)
	f.cfg.Release.Precompress = true
	f.write(t, "assets/site.css", strings.Repeat(".rule{color:red;margin:0 auto}\n", 40))
	f.write(t, "assets/tiny.css", ".t{}")
	f.write(t, "assets/img/x.png", strings.Repeat("P", 1024))
	f.write(t, "public/index.html", strings.Repeat("<p>hello</p>\n", 50))

	res, err := f.build(t, config.ModeRelease)
	require.NoError(t, err)

	site := filepath.Join(res.AssetsDir, filepath.FromSlash(res.Manifest["site.css"]))
	original, err := os.ReadFile(site)
	require.NoError(t, err)

	gz, err := os.Open(site + ".gz")
	require.NoError(t, err)
	defer func() { _ = gz.Close() }()
	zr, err := gzip.NewReader(gz)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, original, plain)

	zst, err := os.ReadFile(site + ".zst")
	require.NoError(t, err)
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	plain, err = dec.DecodeAll(zst, nil)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(original, plain))

	assert.FileExists(t, filepath.Join(res.PublicDir, "index.html.gz"))
	assert.NoFileExists(t, filepath.Join(res.AssetsDir, filepath.FromSlash(res.Manifest["tiny.css"]))+".gz")
	assert.NoFileExists(t, filepath.Join(res.AssetsDir, filepath.FromSlash(res.Manifest["img/x.png"]))+".gz")
	assert.Equal(t, 4, res.Compressed)
}

func TestBuild_Development(t *testing.T) {
	f := newFixture(t)
	f.write(t, "assets/css/style.css", "body{}")
	f.write(t, "public/index.html", "<html></html>")

	res, err := f.build(t, config.ModeDevelopment)
	require.NoError(t, err)

	assert.Equal(t, config.ModeDevelopment, res.Mode)
	assert.Empty(t, res.Manifest)
	assert.Empty(t, res.ManifestPath)
	assert.Equal(t, f.cfg.Assets.Dir, res.AssetsDir)
	assert.Equal(t, f.cfg.Public.Dir, res.PublicDir)
	assert.NoDirExists(t, filepath.Join(f.dir, "dist", "public"))

	env, err := lookup.ReadEnv(res.EnvPath)
	require.NoError(t, err)
	assert.False(t, env.Release)
	assert.Equal(t, f.cfg.Assets.Dir, env.AssetsDir)
	assert.Empty(t, env.Manifest)
}

func TestNewBuilder_MissingAssetRoot(t *testing.T) {
	f := newFixture(t)
	f.cfg.Assets.Dir = filepath.Join(f.dir, "nope")

	_, err := NewBuilder(f.cfg)
	require.ErrorIs(t, err, assets.ErrDirectoryNotFound)
	assert.True(t, aerrors.IsCategory(err, aerrors.CategoryFileSystem))
	assert.NoDirExists(t, filepath.Join(f.dir, "dist"))
}

func TestBuild_SingleUse(t *testing.T) {
	f := newFixture(t)
	b, err := NewBuilder(f.cfg, WithMode(config.ModeDevelopment))
	require.NoError(t, err)

	_, err = b.Build(context.Background())
	require.NoError(t, err)
	_, err = b.Build(context.Background())
	require.Error(t, err)
}

func TestBuild_Canceled(t *testing.T) {
	f := newFixture(t)
	f.write(t, "assets/img/x.png", "PNG")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := newRecordingRecorder()
	b, err := NewBuilder(f.cfg, WithMode(config.ModeRelease), WithRecorder(rec))
	require.NoError(t, err)
	_, err = b.Build(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, rec.outcomes[metrics.BuildOutcomeCanceled])
}

func TestBuild_RecordsMetrics(t *testing.T) {
	f := newFixture(t)
	f.write(t, "assets/site.css", "body{}")
	f.write(t, "assets/img/a.png", "A")
	f.write(t, "assets/img/b.png", "B")

	rec := newRecordingRecorder()
	_, err := f.build(t, config.ModeRelease, WithRecorder(rec), WithClock(time.Now))
	require.NoError(t, err)

	assert.Equal(t, 2, rec.assets["opaque"])
	assert.Equal(t, 1, rec.assets["stylesheet"])
	assert.Equal(t, 1, rec.outcomes[metrics.BuildOutcomeSuccess])
	for _, stage := range []string{StageClean, StagePublic, StageOpaque, StageStylesheets, StageManifest, StageReport} {
		assert.Equal(t, 1, rec.results[stage][metrics.ResultSuccess], stage)
	}
	assert.Zero(t, rec.results[StagePrecompress][metrics.ResultSuccess])
	assert.Positive(t, rec.bytes)
}

func TestPublishedName(t *testing.T) {
	content := []byte("x")
	d := hashing.Digest(content)

	assert.Equal(t, "img/cat-"+d+".jpeg", PublishedName("img/cat.jpeg", content, true, false))
	assert.Equal(t, "cat-"+d+".jpeg", PublishedName("img/cat.jpeg", content, true, true))
	assert.Equal(t, "img/cat.jpeg", PublishedName("img/cat.jpeg", content, false, false))
	assert.Equal(t, "cat.jpeg", PublishedName("img/cat.jpeg", content, false, true))
	assert.Equal(t, "LICENSE-"+d, PublishedName("LICENSE", content, true, false))
}

type recordingRecorder struct {
	metrics.NoopRecorder
	mu       sync.Mutex
	results  map[string]map[metrics.ResultLabel]int
	outcomes map[metrics.BuildOutcomeLabel]int
	assets   map[string]int
	bytes    int64
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{
		results:  map[string]map[metrics.ResultLabel]int{},
		outcomes: map[metrics.BuildOutcomeLabel]int{},
		assets:   map[string]int{},
	}
}

func (r *recordingRecorder) IncStageResult(stage string, result metrics.ResultLabel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results[stage] == nil {
		r.results[stage] = map[metrics.ResultLabel]int{}
	}
	r.results[stage][result]++
}

func (r *recordingRecorder) IncBuildOutcome(o metrics.BuildOutcomeLabel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[o]++
}

func (r *recordingRecorder) AddAssetsProcessed(kind string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[kind] += n
}

func (r *recordingRecorder) AddBytesWritten(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytes += n
}

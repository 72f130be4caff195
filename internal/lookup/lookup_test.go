package lookup

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetforge/internal/manifest"
)

func TestEnv_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), EnvFileName)
	in := Env{
		Release:   true,
		PublicDir: "/srv/dist/public",
		AssetsDir: "/srv/dist/public/assets",
		AssetsURL: "assets",
		Manifest:  "/srv/dist/assetforge-manifest.json",
	}

	require.NoError(t, WriteEnv(path, in))

	out, err := ReadEnv(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEnv_DevelopmentOmitsManifest(t *testing.T) {
	m := Env{PublicDir: "public", AssetsDir: "assets", AssetsURL: "assets"}.Map()

	assert.Equal(t, "false", m[EnvReleaseMode])
	_, ok := m[EnvManifest]
	assert.False(t, ok)
}

func TestEnvFromProcess(t *testing.T) {
	t.Setenv(EnvReleaseMode, "false")
	t.Setenv(EnvPublicDir, "public")
	t.Setenv(EnvAssetsDir, "assets")
	t.Setenv(EnvAssetsURL, "static")
	t.Setenv(EnvManifest, "")

	e, err := EnvFromProcess()
	require.NoError(t, err)
	assert.False(t, e.Release)
	assert.Equal(t, "static", e.AssetsURL)
	assert.Equal(t, "public", e.PublicDir)
}

func TestEnvFromProcess_BadReleaseFlag(t *testing.T) {
	t.Setenv(EnvReleaseMode, "sometimes")

	_, err := EnvFromProcess()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvReleaseMode)
}

func TestResolver_Development(t *testing.T) {
	r := NewDevelopment("/assets/")

	assert.False(t, r.Release())
	u, err := r.Resolve("css/site.css")
	require.NoError(t, err)
	assert.Equal(t, "/assets/css/site.css", u)

	u, err = r.Resolve("/img/../img/cat.jpeg")
	require.NoError(t, err)
	assert.Equal(t, "/assets/img/cat.jpeg", u)
}

func TestResolver_Release(t *testing.T) {
	m := manifest.New()
	require.NoError(t, m.Register("img/cat.jpeg", "img/cat-0a1b2c3d.jpeg"))
	r := NewRelease("assets", m)

	assert.True(t, r.Release())
	assert.Equal(t, "/assets/img/cat-0a1b2c3d.jpeg", r.MustResolve("img/cat.jpeg"))

	_, err := r.Resolve("img/dog.jpeg")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Panics(t, func() { r.MustResolve("img/dog.jpeg") })
}

func TestResolver_EmptyURLDir(t *testing.T) {
	u, err := NewDevelopment("").Resolve("app.js")
	require.NoError(t, err)
	assert.Equal(t, "/app.js", u)
}

func TestFromEnv(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, manifest.FileName)
	m := manifest.New()
	require.NoError(t, m.Register("css/style.css", "css/style-deadbeef.css"))
	require.NoError(t, m.WriteFile(manifestPath))

	t.Run("release loads manifest", func(t *testing.T) {
		r, err := FromEnv(Env{Release: true, AssetsURL: "assets", Manifest: manifestPath})
		require.NoError(t, err)
		assert.Equal(t, "/assets/css/style-deadbeef.css", r.MustResolve("css/style.css"))
	})

	t.Run("release without manifest path", func(t *testing.T) {
		_, err := FromEnv(Env{Release: true, AssetsURL: "assets"})
		require.Error(t, err)
	})

	t.Run("release with missing manifest file", func(t *testing.T) {
		_, err := FromEnv(Env{Release: true, Manifest: filepath.Join(dir, "nope.json")})
		require.Error(t, err)
	})

	t.Run("development", func(t *testing.T) {
		r, err := FromEnv(Env{AssetsURL: "assets"})
		require.NoError(t, err)
		assert.False(t, r.Release())
		assert.Equal(t, "/assets/css/style.css", r.MustResolve("css/style.css"))
	})
}

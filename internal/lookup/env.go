package lookup

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvFileName is the env file a build writes at the output root.
const EnvFileName = "assetforge.env"

// Variables carried in the env file and read back from the process environment.
const (
	EnvReleaseMode = "ASSETFORGE_RELEASE_MODE"
	EnvPublicDir   = "ASSETFORGE_PUBLIC_DIR"
	EnvAssetsDir   = "ASSETFORGE_ASSETS_DIR"
	EnvAssetsURL   = "ASSETFORGE_ASSETS_URL"
	EnvManifest    = "ASSETFORGE_MANIFEST"
)

// Env is what a build tells the application about where its assets live.
type Env struct {
	Release   bool
	PublicDir string // Directory served for non-asset paths
	AssetsDir string // Directory served under the assets prefix
	AssetsURL string // URL directory assets are referenced under, e.g. "assets"
	Manifest  string // Manifest path; empty in development
}

// Map returns the env file representation.
func (e Env) Map() map[string]string {
	m := map[string]string{
		EnvReleaseMode: strconv.FormatBool(e.Release),
		EnvPublicDir:   e.PublicDir,
		EnvAssetsDir:   e.AssetsDir,
		EnvAssetsURL:   e.AssetsURL,
	}
	if e.Manifest != "" {
		m[EnvManifest] = e.Manifest
	}
	return m
}

func envFromMap(get func(string) string) (Env, error) {
	e := Env{
		PublicDir: get(EnvPublicDir),
		AssetsDir: get(EnvAssetsDir),
		AssetsURL: get(EnvAssetsURL),
		Manifest:  get(EnvManifest),
	}
	if raw := get(EnvReleaseMode); raw != "" {
		release, err := strconv.ParseBool(raw)
		if err != nil {
			return Env{}, fmt.Errorf("%s: %w", EnvReleaseMode, err)
		}
		e.Release = release
	}
	return e, nil
}

// WriteEnv writes e to path in dotenv format.
func WriteEnv(path string, e Env) error {
	if err := godotenv.Write(e.Map(), path); err != nil {
		return fmt.Errorf("write env file %s: %w", path, err)
	}
	return nil
}

// ReadEnv reads an env file written by WriteEnv.
func ReadEnv(path string) (Env, error) {
	m, err := godotenv.Read(path)
	if err != nil {
		return Env{}, fmt.Errorf("read env file %s: %w", path, err)
	}
	return envFromMap(func(k string) string { return m[k] })
}

// EnvFromProcess reads the variables from the process environment.
func EnvFromProcess() (Env, error) {
	return envFromMap(os.Getenv)
}

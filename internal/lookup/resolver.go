// Package lookup resolves logical asset keys to the URLs application code should emit.
package lookup

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"git.home.luguber.info/inful/assetforge/internal/manifest"
)

// ErrNotFound indicates a key with no manifest entry.
var ErrNotFound = errors.New("asset not found in manifest")

// Resolver maps logical keys to asset URLs. In release mode the manifest decides
// the published name; in development the key is used as is.
type Resolver struct {
	urlDir   string
	manifest *manifest.Manifest
}

// NewDevelopment returns a resolver that maps keys by convention.
func NewDevelopment(urlDir string) *Resolver {
	return &Resolver{urlDir: normalizeDir(urlDir)}
}

// NewRelease returns a resolver backed by m.
func NewRelease(urlDir string, m *manifest.Manifest) *Resolver {
	return &Resolver{urlDir: normalizeDir(urlDir), manifest: m}
}

// FromEnv builds a resolver from build environment variables. A release
// environment loads the manifest it names.
func FromEnv(e Env) (*Resolver, error) {
	if !e.Release {
		return NewDevelopment(e.AssetsURL), nil
	}
	if e.Manifest == "" {
		return nil, fmt.Errorf("release environment without %s", EnvManifest)
	}
	m, err := manifest.Load(e.Manifest)
	if err != nil {
		return nil, err
	}
	return NewRelease(e.AssetsURL, m), nil
}

// Release reports whether the resolver is backed by a manifest.
func (r *Resolver) Release() bool {
	return r.manifest != nil
}

// Resolve returns the absolute URL path for key, e.g. "/assets/css/site-0a1b2c3d.css".
func (r *Resolver) Resolve(key string) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if r.manifest == nil {
		return r.join(key), nil
	}
	published, ok := r.manifest.Lookup(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return r.join(published), nil
}

// MustResolve is Resolve for template helpers; it panics on a missing key.
func (r *Resolver) MustResolve(key string) string {
	u, err := r.Resolve(key)
	if err != nil {
		panic(err)
	}
	return u
}

func (r *Resolver) join(p string) string {
	if r.urlDir == "" {
		return "/" + p
	}
	return "/" + r.urlDir + "/" + p
}

func normalizeDir(d string) string {
	return strings.Trim(d, "/")
}

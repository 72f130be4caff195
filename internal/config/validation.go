package config

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	aerrors "git.home.luguber.info/inful/assetforge/internal/errors"
)

// Validate checks the configuration for values the build cannot work with.
func (c *Config) Validate() error {
	if c.Mode != ModeDevelopment && c.Mode != ModeRelease {
		return aerrors.ConfigInvalid("mode", fmt.Sprintf("unknown mode %q (want development or release)", c.Mode))
	}
	if strings.TrimSpace(c.Assets.Dir) == "" {
		return aerrors.ConfigInvalid("assets.dir", "must not be empty")
	}
	for _, p := range c.Assets.Exclude {
		if !doublestar.ValidatePattern(p) {
			return aerrors.ConfigInvalid("assets.exclude", fmt.Sprintf("invalid pattern %q", p))
		}
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return aerrors.ConfigInvalid("output.dir", "must not be empty")
	}
	if err := validateSubdir("output.public_dir", c.Output.PublicDir); err != nil {
		return err
	}
	if err := validateSubdir("output.assets_dir", c.Output.AssetsDir); err != nil {
		return err
	}
	if sameDir(c.Output.Dir, ".") || sameDir(c.Output.Dir, c.Assets.Dir) || sameDir(c.Output.Dir, c.Public.Dir) {
		return aerrors.ConfigInvalid("output.dir", "must differ from the source directories; it is deleted on every release build")
	}
	if c.Release.Workers < 0 {
		return aerrors.ConfigInvalid("release.workers", "must be >= 0")
	}
	if !strings.HasSuffix(c.Release.URLPrefix, "/") {
		return aerrors.ConfigInvalid("release.url_prefix", fmt.Sprintf("%q must end with '/'", c.Release.URLPrefix))
	}
	prefix := strings.TrimRight(c.Serve.AssetsPrefix, "/")
	if !strings.HasPrefix(c.Serve.AssetsPrefix, "/") || prefix == "" {
		return aerrors.ConfigInvalid("serve.assets_prefix", fmt.Sprintf("%q must start with '/' and name a path", c.Serve.AssetsPrefix))
	}
	c.Serve.AssetsPrefix = prefix
	return nil
}

// validateSubdir requires a relative single-tree path that stays inside its parent.
func validateSubdir(field, dir string) error {
	if dir == "" {
		return aerrors.ConfigInvalid(field, "must not be empty")
	}
	if filepath.IsAbs(dir) || strings.HasPrefix(dir, "/") {
		return aerrors.ConfigInvalid(field, fmt.Sprintf("%q must be relative", dir))
	}
	clean := path.Clean(filepath.ToSlash(dir))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return aerrors.ConfigInvalid(field, fmt.Sprintf("%q must stay inside its parent", dir))
	}
	return nil
}

func sameDir(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}

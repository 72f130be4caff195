package assets

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	aerrors "git.home.luguber.info/inful/assetforge/internal/errors"
	"git.home.luguber.info/inful/assetforge/internal/logfields"
)

// DefaultIgnorePrefix marks files as partials or drafts that are never published.
const DefaultIgnorePrefix = "_"

// Options controls which files Walk keeps.
type Options struct {
	// IgnorePrefix excludes files whose bare filename starts with it.
	// Directory names are never tested. Empty disables the rule.
	IgnorePrefix string

	// Exclude lists doublestar patterns matched against the logical key.
	Exclude []string
}

// ValidateExclude checks that every exclude pattern parses.
func ValidateExclude(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("%w: %q", ErrBadExcludePattern, p)
		}
	}
	return nil
}

// Walk discovers every file under root and classifies it by media type.
// Both collections are sorted by logical key.
func Walk(root string, opts Options) (*Source, error) {
	if err := ValidateExclude(opts.Exclude); err != nil {
		return nil, aerrors.ConfigInvalid("assets.exclude", err.Error())
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, aerrors.DirectoryNotFound("assets", root, fmt.Errorf("%w: %w", ErrDirectoryNotFound, err))
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, aerrors.DirectoryNotFound("assets", root, fmt.Errorf("%w: %w", ErrDirectoryNotFound, err))
	}
	if !info.IsDir() {
		return nil, aerrors.DirectoryNotFound("assets", root, fmt.Errorf("%w: %s is not a directory", ErrDirectoryNotFound, root))
	}

	src := &Source{Root: absRoot}
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if opts.IgnorePrefix != "" && strings.HasPrefix(d.Name(), opts.IgnorePrefix) {
			slog.Debug("Ignoring prefixed file", logfields.Path(p))
			return nil
		}

		rel, relErr := filepath.Rel(absRoot, p)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)

		for _, pattern := range opts.Exclude {
			if ok, _ := doublestar.Match(pattern, key); ok {
				slog.Debug("Excluding asset", logfields.Asset(key), slog.String("pattern", pattern))
				return nil
			}
		}

		mt := MediaTypeOf(d.Name())
		a := Asset{Path: p, Rel: key, Kind: Classify(mt), MediaType: mt}
		if a.Kind == KindStylesheet {
			src.Stylesheets = append(src.Stylesheets, a)
		} else {
			src.Opaque = append(src.Opaque, a)
		}
		slog.Debug("Discovered asset", logfields.Asset(key), logfields.Kind(string(a.Kind)))
		return nil
	})
	if err != nil {
		return nil, aerrors.IOError("walk", root, fmt.Errorf("%w: %w", ErrWalkFailed, err))
	}

	sort.Slice(src.Opaque, func(i, j int) bool { return src.Opaque[i].Rel < src.Opaque[j].Rel })
	sort.Slice(src.Stylesheets, func(i, j int) bool { return src.Stylesheets[i].Rel < src.Stylesheets[j].Rel })

	slog.Info("Assets discovered",
		logfields.Path(absRoot),
		slog.Int("stylesheets", len(src.Stylesheets)),
		slog.Int("opaque", len(src.Opaque)))
	return src, nil
}

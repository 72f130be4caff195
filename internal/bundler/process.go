package bundler

import (
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/assetforge/internal/assets"
	aerrors "git.home.luguber.info/inful/assetforge/internal/errors"
	"git.home.luguber.info/inful/assetforge/internal/hashing"
	"git.home.luguber.info/inful/assetforge/internal/logfields"
	"git.home.luguber.info/inful/assetforge/internal/stylesheet"
)

// processOpaque publishes every opaque asset. Assets are independent, so they
// run concurrently; the manifest serializes registration.
func (b *Builder) processOpaque(ctx context.Context, outAssets string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers())

	var fails failures
	for _, a := range b.source.Opaque {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := a.ReadContent()
			if err != nil {
				fails.add(aerrors.IOError("read", a.Path, err))
				return nil
			}
			if err := b.publish(a, content, outAssets); err != nil {
				fails.add(err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := fails.join(StageOpaque); err != nil {
		return err
	}
	b.recorder.AddAssetsProcessed(string(assets.KindOpaque), len(b.source.Opaque))
	return nil
}

// processStylesheets bundles every stylesheet, orders them so referenced
// stylesheets are published first, then rewrites and publishes each one.
// It must run after processOpaque has registered every opaque asset.
func (b *Builder) processStylesheets(ctx context.Context, outAssets string) error {
	if len(b.source.Stylesheets) == 0 {
		return nil
	}

	bundler := stylesheet.NewBundler(b.source.Root, b.cfg.Release.Minify)
	bundles := make(map[string]*stylesheet.Bundle, len(b.source.Stylesheets))
	refs := make(map[string][]string, len(b.source.Stylesheets))
	keys := make([]string, 0, len(b.source.Stylesheets))

	var fails failures
	for _, a := range b.source.Stylesheets {
		if err := ctx.Err(); err != nil {
			return err
		}
		bd, err := bundler.Bundle(a.Rel)
		if err != nil {
			fails.add(aerrors.StylesheetFailed(a.Rel, err))
			continue
		}
		bundles[a.Rel] = bd
		refs[a.Rel] = bd.References()
		keys = append(keys, a.Rel)
		slog.Debug("Stylesheet bundled",
			logfields.Asset(a.Rel),
			slog.Int("files", len(bd.Files)),
			slog.Int("references", len(bd.Dependencies)))
	}
	if err := fails.join(StageStylesheets); err != nil {
		return err
	}

	order, err := stylesheet.Order(keys, refs)
	if err != nil {
		return aerrors.BuildFailed(StageStylesheets, err)
	}

	for _, key := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		a, _ := b.source.Find(key)
		text, err := stylesheet.Rewrite(bundles[key], b.manifest.Lookup, b.cfg.Release.URLPrefix)
		if err != nil {
			fails.add(aerrors.UnresolvedReference(key, err))
			continue
		}
		if err := b.publish(a, text, outAssets); err != nil {
			fails.add(err)
		}
	}
	if err := fails.join(StageStylesheets); err != nil {
		return err
	}
	b.recorder.AddAssetsProcessed(string(assets.KindStylesheet), len(order))
	return nil
}

// PublishedName returns the path an asset is published under, relative to the
// output assets directory.
func PublishedName(key string, content []byte, hashed, flatten bool) string {
	name := path.Base(key)
	if hashed {
		name = hashing.Apply(name, hashing.Digest(content))
	}
	if flatten {
		return name
	}
	if dir := path.Dir(key); dir != "." {
		return dir + "/" + name
	}
	return name
}

// publish registers the asset and writes its bytes. Registration comes first so a
// conflicting asset never overwrites the file of the one that won.
func (b *Builder) publish(a assets.Asset, content []byte, outAssets string) error {
	published := PublishedName(a.Rel, content, b.cfg.Release.Hashed, b.cfg.Release.Flatten)
	if err := b.manifest.Register(a.Rel, published); err != nil {
		return aerrors.ManifestConflict(a.Rel, err)
	}

	dst := filepath.Join(outAssets, filepath.FromSlash(published))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return aerrors.IOError("mkdir", filepath.Dir(dst), err)
	}
	if err := os.WriteFile(dst, content, 0o644); err != nil {
		return aerrors.IOError("write", dst, err)
	}
	b.bytesWritten.Add(int64(len(content)))

	slog.Debug("Asset published",
		logfields.Asset(a.Rel),
		logfields.Kind(string(a.Kind)),
		logfields.Published(published),
		logfields.Bytes(int64(len(content))))
	return nil
}

package server

import (
	"path"
	"strings"

	"git.home.luguber.info/inful/assetforge/internal/hashing"
)

const cacheImmutable = "public, max-age=31536000, immutable"

// cacheControl returns the Cache-Control value for a served file name.
// Development responses are never cached. Processed assets whose names carry a
// content digest never change and are cached for a year; public files are
// copied verbatim, so their names are never trusted as digests.
func cacheControl(name string, release, processed bool) string {
	if !release {
		return "no-cache"
	}
	if processed && hashing.IsHashed(path.Base(name)) {
		return cacheImmutable
	}

	switch strings.ToLower(path.Ext(name)) {
	// HTML pages - no cache so content updates are immediately visible
	case ".html", ".htm", "":
		return "no-cache, must-revalidate"
	// Unhashed stylesheets and scripts - cache for 5 minutes
	case ".css", ".js", ".mjs":
		return "public, max-age=300"
	// Web fonts and images - cache for 1 week
	case ".woff", ".woff2", ".ttf", ".eot", ".otf",
		".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".avif", ".ico":
		return "public, max-age=604800"
	// Downloadable files - cache for 1 day
	case ".pdf", ".zip", ".tar", ".gz":
		return "public, max-age=86400"
	// XML files (RSS, sitemaps) - cache for 1 hour
	case ".xml":
		return "public, max-age=3600"
	// JSON data files - cache for 5 minutes
	case ".json":
		return "public, max-age=300"
	}

	// For all other files, don't set Cache-Control (let browser use default behavior)
	return ""
}

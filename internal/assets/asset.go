// Package assets discovers and classifies the source files of an asset root.
package assets

import (
	"mime"
	"os"
	"path"
	"strings"
)

// Kind distinguishes stylesheets, which get bundled and rewritten, from opaque
// assets, which are hashed and copied byte for byte.
type Kind string

const (
	KindStylesheet Kind = "stylesheet"
	KindOpaque     Kind = "opaque"
)

// StylesheetMediaType is the media type that classifies an asset as a stylesheet.
const StylesheetMediaType = "text/css"

// DefaultMediaType is used for files with no known extension.
const DefaultMediaType = "application/octet-stream"

// Asset is a single discovered source file.
type Asset struct {
	Path      string // Absolute path on disk
	Rel       string // Logical key: slash-separated path relative to the asset root
	Kind      Kind
	MediaType string
}

// Name returns the bare filename of the asset.
func (a Asset) Name() string {
	return path.Base(a.Rel)
}

// Dir returns the slash-separated directory of the asset relative to the root ("" at top level).
func (a Asset) Dir() string {
	d := path.Dir(a.Rel)
	if d == "." {
		return ""
	}
	return d
}

// ReadContent loads the asset bytes.
func (a Asset) ReadContent() ([]byte, error) {
	return os.ReadFile(a.Path)
}

// Source is the classified result of walking an asset root.
type Source struct {
	Root        string
	Opaque      []Asset
	Stylesheets []Asset
}

// Len returns the number of discovered assets.
func (s *Source) Len() int {
	return len(s.Opaque) + len(s.Stylesheets)
}

// Find returns the asset registered under a logical key.
func (s *Source) Find(key string) (Asset, bool) {
	for _, list := range [][]Asset{s.Stylesheets, s.Opaque} {
		for _, a := range list {
			if a.Rel == key {
				return a, true
			}
		}
	}
	return Asset{}, false
}

// builtinTypes is consulted before the platform mime database so that
// classification does not depend on the host's /etc/mime.types.
var builtinTypes = map[string]string{
	".css":   "text/css",
	".js":    "text/javascript",
	".mjs":   "text/javascript",
	".json":  "application/json",
	".map":   "application/json",
	".html":  "text/html",
	".htm":   "text/html",
	".txt":   "text/plain",
	".xml":   "application/xml",
	".svg":   "image/svg+xml",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".avif":  "image/avif",
	".ico":   "image/x-icon",
	".bmp":   "image/bmp",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".eot":   "application/vnd.ms-fontobject",
	".pdf":   "application/pdf",
	".mp4":   "video/mp4",
	".webm":  "video/webm",
	".mp3":   "audio/mpeg",
	".wasm":  "application/wasm",
}

// MediaTypeOf returns the media type for a filename, without parameters.
func MediaTypeOf(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		return DefaultMediaType
	}
	if t, ok := builtinTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
	}
	return DefaultMediaType
}

// Classify returns the asset kind for a media type.
func Classify(mediaType string) Kind {
	if mediaType == StylesheetMediaType {
		return KindStylesheet
	}
	return KindOpaque
}

// IsCompressible reports whether a media type benefits from precompression.
func IsCompressible(mediaType string) bool {
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "image/svg+xml",
		mediaType == "application/json",
		mediaType == "application/xml",
		mediaType == "application/wasm",
		mediaType == "application/vnd.ms-fontobject",
		mediaType == "font/ttf",
		mediaType == "font/otf":
		return true
	default:
		return false
	}
}

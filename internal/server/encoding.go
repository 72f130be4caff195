package server

import (
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/assetforge/internal/assets"
)

// encoding is a precompressed sibling written next to the original file.
type encoding struct {
	name string
	ext  string
}

// encodings is in preference order; the build writes the same set.
var encodings = []encoding{
	{name: "zstd", ext: ".zst"},
	{name: "gzip", ext: ".gz"},
}

// acceptedEncodings parses an Accept-Encoding header into the set of codings
// the client accepts with a non-zero quality.
func acceptedEncodings(header string) map[string]bool {
	accepted := make(map[string]bool)
	wildcard := false
	rejected := make(map[string]bool)
	for _, part := range strings.Split(header, ",") {
		token, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		if qualityOf(params) == 0 {
			rejected[token] = true
			continue
		}
		if token == "*" {
			wildcard = true
			continue
		}
		accepted[token] = true
	}
	if wildcard {
		for _, enc := range encodings {
			if !rejected[enc.name] {
				accepted[enc.name] = true
			}
		}
	}
	return accepted
}

func qualityOf(params string) float64 {
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || strings.ToLower(strings.TrimSpace(k)) != "q" {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return q
	}
	return 1
}

// negotiate returns the encodings to try for header, best first.
func negotiate(header string) []encoding {
	if header == "" {
		return nil
	}
	accepted := acceptedEncodings(header)
	out := make([]encoding, 0, len(encodings))
	for _, enc := range encodings {
		if accepted[enc.name] {
			out = append(out, enc)
		}
	}
	return out
}

// serveEncoded serves the best precompressed sibling of name the client accepts.
// Range requests are served from the identity file.
func (s *Switch) serveEncoded(w http.ResponseWriter, r *http.Request, fsys fs.FS, name string, processed bool) bool {
	if r.Header.Get("Range") != "" {
		return false
	}
	if !assets.IsCompressible(assets.MediaTypeOf(name)) {
		return false
	}
	for _, enc := range negotiate(r.Header.Get("Accept-Encoding")) {
		sibling := name + enc.ext
		f, err := fsys.Open(sibling)
		if err != nil {
			continue
		}
		fi, err := f.Stat()
		if err != nil || fi.IsDir() {
			_ = f.Close()
			continue
		}

		s.setHeaders(w, name, processed)
		w.Header().Set("Content-Encoding", enc.name)
		err = serveContent(w, r, name, fi, f)
		_ = f.Close()
		if err != nil {
			s.internalError(w, sibling, err)
		}
		return true
	}
	return false
}

func contentType(name string) string {
	mt := assets.MediaTypeOf(name)
	if strings.HasPrefix(mt, "text/") || mt == "application/json" || mt == "application/xml" || mt == "image/svg+xml" {
		return mt + "; charset=utf-8"
	}
	return mt
}

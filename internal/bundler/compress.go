package bundler

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"git.home.luguber.info/inful/assetforge/internal/assets"
)

// minCompressSize skips files too small for compression to pay for the extra request header.
const minCompressSize = 256

// Encoding is a precompressed sibling format.
type Encoding struct {
	Name string // Content-Encoding token
	Ext  string // Suffix appended to the original filename
}

// Encodings lists the sibling formats in server preference order.
var Encodings = []Encoding{
	{Name: "zstd", Ext: ".zst"},
	{Name: "gzip", Ext: ".gz"},
}

var zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
})

func compress(enc Encoding, data []byte) ([]byte, error) {
	switch enc.Name {
	case "zstd":
		e, err := zstdEncoder()
		if err != nil {
			return nil, err
		}
		return e.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	default:
		var buf bytes.Buffer
		w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

func isSibling(name string) bool {
	for _, enc := range Encodings {
		if strings.HasSuffix(name, enc.Ext) {
			return true
		}
	}
	return false
}

// precompressTree writes a sibling per encoding next to every compressible file
// below root, keeping only siblings smaller than the original. It reports the
// number of siblings written and their total size.
func (b *Builder) precompressTree(root string) (int, int64, error) {
	var written int
	var total int64
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || isSibling(d.Name()) || !assets.IsCompressible(assets.MediaTypeOf(d.Name())) {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if len(data) < minCompressSize {
			return nil
		}
		for _, enc := range Encodings {
			out, err := compress(enc, data)
			if err != nil {
				return err
			}
			if len(out) >= len(data) {
				continue
			}
			if err := os.WriteFile(p+enc.Ext, out, 0o644); err != nil {
				return err
			}
			written++
			total += int64(len(out))
			b.recorder.IncPrecompressed(enc.Name)
		}
		return nil
	})
	return written, total, err
}

// Package hashing derives short content digests and splices them into filenames
// for cache busting. Digests are a cache-busting token, not a security primitive.
package hashing

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// DigestSize is the number of BLAKE3 output bytes kept in a digest.
const DigestSize = 4

// DigestLen is the length of the hex-encoded digest.
const DigestLen = DigestSize * 2

// Digest returns the lowercase hex encoding of the first DigestSize bytes of the
// BLAKE3 extendable output for content. The same bytes always yield the same digest.
func Digest(content []byte) string {
	h := blake3.New()
	_, _ = h.Write(content)

	var out [DigestSize]byte
	_, _ = h.Digest().Read(out[:])
	return hex.EncodeToString(out[:])
}

// Apply splices digest into filename before the final extension:
// "name.ext" becomes "name-<digest>.ext" and "name" becomes "name-<digest>".
// A leading dot does not start an extension (".htaccess" has none).
func Apply(filename, digest string) string {
	stem, ext := splitExt(filename)
	return stem + "-" + digest + ext
}

// Strip reverses Apply for a filename whose stem ends in a hex digest of DigestLen
// characters. ok is false when filename does not carry a digest.
func Strip(filename string) (original, digest string, ok bool) {
	stem, ext := splitExt(filename)
	if len(stem) < DigestLen+2 || stem[len(stem)-DigestLen-1] != '-' {
		return "", "", false
	}
	digest = stem[len(stem)-DigestLen:]
	if !isLowerHex(digest) {
		return "", "", false
	}
	return stem[:len(stem)-DigestLen-1] + ext, digest, true
}

// IsHashed reports whether filename carries a digest spliced in by Apply.
func IsHashed(filename string) bool {
	_, _, ok := Strip(filename)
	return ok
}

func splitExt(filename string) (stem, ext string) {
	idx := strings.LastIndexByte(filename, '.')
	if idx <= 0 {
		return filename, ""
	}
	return filename[:idx], filename[idx:]
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

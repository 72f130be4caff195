package stylesheet

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// IsExternal reports whether ref points off-site and must pass through unchanged.
func IsExternal(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(ref, "//")
}

// isPassThrough reports references that are never rewritten: empty, fragment-only and data URIs.
func isPassThrough(ref string) bool {
	return ref == "" ||
		strings.HasPrefix(ref, "#") ||
		strings.HasPrefix(strings.ToLower(ref), "data:")
}

// SplitSuffix separates a query string and fragment from ref. The suffix keeps its
// leading '?' or '#'.
func SplitSuffix(ref string) (p, suffix string) {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i], ref[i:]
	}
	return ref, ""
}

// ResolveKey turns a reference found in the stylesheet with logical key file into
// the logical key of its target. External references come back unchanged with
// external set. A leading '/' is relative to the asset root; anything else is
// relative to file's directory. Query string and fragment are dropped from the key.
func ResolveKey(file, ref string) (key string, external bool, err error) {
	if IsExternal(ref) {
		return ref, true, nil
	}

	p, _ := SplitSuffix(ref)
	if unescaped, uerr := url.PathUnescape(p); uerr == nil {
		p = unescaped
	}
	if p == "" {
		return "", false, fmt.Errorf("%w: %q in %s: empty path", ErrUnresolvedReference, ref, file)
	}

	var rel string
	if strings.HasPrefix(p, "/") {
		rel = strings.TrimLeft(p, "/")
	} else {
		rel = path.Join(path.Dir(file), p)
	}
	rel = path.Clean(rel)

	switch {
	case rel == ".." || strings.HasPrefix(rel, "../"):
		return "", false, fmt.Errorf("%w: %q in %s escapes the asset root", ErrUnresolvedReference, ref, file)
	case rel == "." || rel == "":
		return "", false, fmt.Errorf("%w: %q in %s resolves to the asset root", ErrUnresolvedReference, ref, file)
	}
	return rel, false, nil
}

// quoteURL returns u suitable for an unquoted url() body, quoting it when it
// contains characters an unquoted url() cannot carry.
func quoteURL(u string) string {
	if !strings.ContainsAny(u, " \t\n\"'()\\") {
		return u
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `).Replace(u) + `"`
}

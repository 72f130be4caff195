package stylesheet

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// LookupFunc returns the published path registered for a logical key.
type LookupFunc func(key string) (string, bool)

// References returns the sorted, de-duplicated logical keys of the local assets
// the bundle refers to. References that cannot be resolved are left for Rewrite
// to report.
func (b *Bundle) References() []string {
	seen := make(map[string]struct{}, len(b.Dependencies))
	var out []string
	for _, dep := range b.Dependencies {
		key, external, err := ResolveKey(dep.File, dep.URL)
		if err != nil || external {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Rewrite replaces every placeholder in the bundle with the URL of its target:
// external references verbatim, local ones as urlPrefix + published path with
// the original query string and fragment re-attached. All unresolved references
// are reported together.
func Rewrite(b *Bundle, lookup LookupFunc, urlPrefix string) ([]byte, error) {
	if len(b.Dependencies) == 0 {
		return b.Text, nil
	}

	pairs := make([]string, 0, 2*len(b.Dependencies))
	var errs []error
	for _, dep := range b.Dependencies {
		u, err := resolveURL(dep, lookup, urlPrefix)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pairs = append(pairs, dep.Placeholder, quoteURL(u))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return []byte(strings.NewReplacer(pairs...).Replace(string(b.Text))), nil
}

func resolveURL(dep Dependency, lookup LookupFunc, urlPrefix string) (string, error) {
	key, external, err := ResolveKey(dep.File, dep.URL)
	if err != nil {
		return "", err
	}
	if external {
		return dep.URL, nil
	}

	published, ok := lookup(key)
	if !ok {
		return "", fmt.Errorf("%w: %q in %s (no manifest entry for %s)", ErrUnresolvedReference, dep.URL, dep.File, key)
	}
	_, suffix := SplitSuffix(dep.URL)
	return urlPrefix + published + suffix, nil
}

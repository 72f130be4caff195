// Package manifest records the mapping from logical asset keys to published paths.
package manifest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileName is the manifest filename written at the output root.
const FileName = "assetforge-manifest.json"

// Manifest maps logical keys (slash-separated paths relative to the asset root)
// to published paths (relative to the output assets directory). It is safe for
// concurrent use.
type Manifest struct {
	mu        sync.RWMutex
	entries   map[string]string
	published map[string]string // published path -> owning key
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{
		entries:   make(map[string]string),
		published: make(map[string]string),
	}
}

// Register records key -> published. Registering an identical pair again is a no-op.
func (m *Manifest) Register(key, published string) error {
	if key == "" || published == "" {
		return fmt.Errorf("%w: key=%q published=%q", ErrEmptyKey, key, published)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[key]; ok {
		if existing == published {
			return nil
		}
		return fmt.Errorf("%w: %s maps to %s, refusing %s", ErrDuplicateKey, key, existing, published)
	}
	if owner, ok := m.published[published]; ok {
		return fmt.Errorf("%w: %s is published by %s and %s", ErrPublishedCollision, published, owner, key)
	}

	m.entries[key] = published
	m.published[published] = key
	return nil
}

// Lookup returns the published path for key.
func (m *Manifest) Lookup(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.entries[key]
	return p, ok
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Keys returns the registered logical keys in sorted order.
func (m *Manifest) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.entries))
	for k := range m.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Entries returns a copy of the mapping.
func (m *Manifest) Entries() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the manifest as a flat object. encoding/json sorts map keys,
// so the output is deterministic.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Entries())
}

// Serialize returns the indented JSON form written to disk.
func (m *Manifest) Serialize() ([]byte, error) {
	data, err := json.MarshalIndent(m.Entries(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Hash returns the sha256 of the serialized manifest.
func (m *Manifest) Hash() (string, error) {
	data, err := m.Serialize()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}

// WriteFile serializes the manifest to path through a temp file and rename so
// readers never observe a partial manifest.
func (m *Manifest) WriteFile(path string) error {
	data, err := m.Serialize()
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// Parse decodes a flat manifest object, applying the same conflict rules as Register.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	m := New()
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.Register(k, raw[k]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Load reads a manifest written by WriteFile.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return Parse(data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	m := New()
	require.NoError(t, m.Register("img/cat.jpeg", "img/cat-0a1b2c3d.jpeg"))

	p, ok := m.Lookup("img/cat.jpeg")
	require.True(t, ok)
	assert.Equal(t, "img/cat-0a1b2c3d.jpeg", p)

	_, ok = m.Lookup("img/dog.jpeg")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())
}

func TestRegister_ConflictPolicy(t *testing.T) {
	m := New()
	require.NoError(t, m.Register("a.png", "a-11111111.png"))

	// Identical re-registration is a no-op.
	require.NoError(t, m.Register("a.png", "a-11111111.png"))
	assert.Equal(t, 1, m.Len())

	err := m.Register("a.png", "a-22222222.png")
	require.ErrorIs(t, err, ErrDuplicateKey)

	err = m.Register("sub/a.png", "a-11111111.png")
	require.ErrorIs(t, err, ErrPublishedCollision)

	err = m.Register("", "x")
	require.ErrorIs(t, err, ErrEmptyKey)

	p, _ := m.Lookup("a.png")
	assert.Equal(t, "a-11111111.png", p)
}

func TestRegister_Concurrent(t *testing.T) {
	m := New()
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("img/%03d.png", i)
			assert.NoError(t, m.Register(key, fmt.Sprintf("img/%03d-deadbeef.png", i)))
			_, _ = m.Lookup(key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, m.Len())
	keys := m.Keys()
	require.Len(t, keys, n)
	assert.Equal(t, "img/000.png", keys[0])
	assert.Equal(t, "img/199.png", keys[n-1])
}

func TestEntries_ReturnsCopy(t *testing.T) {
	m := New()
	require.NoError(t, m.Register("a.css", "a-12345678.css"))

	e := m.Entries()
	e["b.css"] = "b.css"

	assert.Equal(t, 1, m.Len())
}

func TestSerialize_FlatSortedObject(t *testing.T) {
	m := New()
	require.NoError(t, m.Register("z.css", "z-00000001.css"))
	require.NoError(t, m.Register("a.png", "a-00000002.png"))

	data, err := m.Serialize()
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a.png\": \"a-00000002.png\",\n  \"z.css\": \"z-00000001.css\"\n}\n", string(data))

	compact, err := m.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a.png":"a-00000002.png","z.css":"z-00000001.css"}`, string(compact))
}

func TestWriteFileAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", FileName)

	m := New()
	require.NoError(t, m.Register("css/style.css", "css/style-abcdef01.css"))
	require.NoError(t, m.WriteFile(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.Entries(), loaded.Entries())

	h1, err := m.Hash()
	require.NoError(t, err)
	h2, err := loaded.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	leftovers, err := filepath.Glob(filepath.Join(dir, "out", ".manifest-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestParse_RejectsCollisions(t *testing.T) {
	_, err := Parse([]byte(`{"a.png":"x.png","b.png":"x.png"}`))
	require.ErrorIs(t, err, ErrPublishedCollision)

	_, err = Parse([]byte(`[]`))
	require.Error(t, err)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBuildReport_RoundTripAndHash(t *testing.T) {
	r := &BuildReport{
		ID:        "build-123",
		Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Version:   "dev",
		Inputs:    Inputs{AssetRoot: "assets", PublicRoot: "public", Revision: "abc123", Stylesheet: 2, Opaque: 5},
		Options:   Options{Mode: "release", Hashed: true, Minify: true},
		Outputs:   Outputs{ManifestHash: "m1", Entries: 7, BytesWritten: 1024},
		Status:    "success",
		Duration:  42,
	}

	data, err := r.ToJSON()
	require.NoError(t, err)

	restored, err := ReportFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, r.ID, restored.ID)
	assert.Equal(t, r.Inputs, restored.Inputs)
	assert.Equal(t, r.Options, restored.Options)

	// ID, timestamp and duration do not contribute to the hash.
	other := *r
	other.ID = "build-456"
	other.Timestamp = time.Now()
	other.Duration = 99

	h1, err := r.Hash()
	require.NoError(t, err)
	h2, err := other.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	other.Options.Flatten = true
	h3, err := other.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestBuildReport_WriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ReportFileName)
	r := &BuildReport{ID: "x", Status: "success"}
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	restored, err := ReportFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, "x", restored.ID)
}

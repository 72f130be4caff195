package manifest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// ReportFileName is the build report filename written at the output root.
const ReportFileName = "assetforge-build.json"

// BuildReport is a record of a build's inputs, options and outputs.
type BuildReport struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Inputs    Inputs    `json:"inputs"`
	Options   Options   `json:"options"`
	Outputs   Outputs   `json:"outputs"`
	Status    string    `json:"status"`
	Duration  int64     `json:"duration_ms"`
}

// Inputs captures where the build read from.
type Inputs struct {
	AssetRoot  string `json:"asset_root"`
	PublicRoot string `json:"public_root"`
	Revision   string `json:"revision,omitempty"` // HEAD commit of the asset root, when in a git repo
	Stylesheet int    `json:"stylesheets"`
	Opaque     int    `json:"opaque"`
}

// Options captures the release switches in effect.
type Options struct {
	Mode        string `json:"mode"`
	Hashed      bool   `json:"hashed"`
	Flatten     bool   `json:"flatten"`
	Minify      bool   `json:"minify"`
	Precompress bool   `json:"precompress"`
}

// Outputs captures what the build produced.
type Outputs struct {
	ManifestHash string `json:"manifest_hash,omitempty"`
	Entries      int    `json:"entries"`
	PublicFiles  int    `json:"public_files"`
	Compressed   int    `json:"compressed,omitempty"`
	BytesWritten int64  `json:"bytes_written"`
}

// ToJSON serializes the report to JSON.
func (r *BuildReport) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}

// ReportFromJSON deserializes a report from JSON.
func ReportFromJSON(data []byte) (*BuildReport, error) {
	var r BuildReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &r, nil
}

// Hash computes a deterministic hash over the inputs, options and manifest hash.
// Two builds of the same sources with the same options hash equal.
func (r *BuildReport) Hash() (string, error) {
	hashInput := struct {
		Revision     string  `json:"revision"`
		Stylesheet   int     `json:"stylesheets"`
		Opaque       int     `json:"opaque"`
		Options      Options `json:"options"`
		ManifestHash string  `json:"manifest_hash"`
	}{
		Revision:     r.Inputs.Revision,
		Stylesheet:   r.Inputs.Stylesheet,
		Opaque:       r.Inputs.Opaque,
		Options:      r.Options,
		ManifestHash: r.Outputs.ManifestHash,
	}

	data, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("marshal for hash: %w", err)
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash), nil
}

// WriteFile writes the report to path atomically.
func (r *BuildReport) WriteFile(path string) error {
	data, err := r.ToJSON()
	if err != nil {
		return err
	}
	return writeAtomic(path, append(data, '\n'))
}

package store

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gocloud.dev/blob"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ManifestSuffix is appended to a product key to name its manifest.
const ManifestSuffix = ".manifest.json"

// Manifest describes a merged archive.
type Manifest struct {
	Variable  string   `json:"variable"`
	Frequency string   `json:"frequency"`
	First     int      `json:"first_year"`
	Last      int      `json:"last_year"`
	Steps     int      `json:"steps"`
	Inputs    []string `json:"inputs"`
	// Replaces is the merged archive this one superseded, if any.
	Replaces    string    `json:"replaces,omitempty"`
	Shift       string    `json:"shift,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// WriteManifest stores m next to key.
func (s *Store) WriteManifest(ctx context.Context, key string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal manifest: %w", err)
	}
	if err := s.bucket.WriteAll(ctx, key+ManifestSuffix, data, &blob.WriterOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("store: write manifest of %s: %w", key, err)
	}
	return nil
}

// ReadManifest loads the manifest stored next to key. The error wraps
// gcerrors.NotFound when there is none.
func (s *Store) ReadManifest(ctx context.Context, key string) (*Manifest, error) {
	data, err := s.bucket.ReadAll(ctx, key+ManifestSuffix)
	if err != nil {
		return nil, fmt.Errorf("store: read manifest of %s: %w", key, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("store: unmarshal manifest of %s: %w", key, err)
	}
	return &m, nil
}

// DeleteWithManifest removes key and its manifest.
func (s *Store) DeleteWithManifest(ctx context.Context, key string) error {
	if err := s.Delete(ctx, key); err != nil {
		return err
	}
	return s.Delete(ctx, key+ManifestSuffix)
}

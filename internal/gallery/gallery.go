// Package gallery holds the persisted collection of known face embeddings and
// the distance function used to compare them. The gallery is rebuilt wholesale
// by training and is read-only while serving.
package gallery

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

var (
	// ErrUnavailable is returned when no gallery file exists at the configured
	// path. Serving cannot start until training has produced one.
	ErrUnavailable = errors.New("no trained encodings found, run training first")

	// ErrCorrupt is returned when the gallery file exists but cannot be used.
	// The only fix is retraining.
	ErrCorrupt = errors.New("corrupt encodings file, retrain the model")
)

// currentVersion is the persisted file format version.
const currentVersion = 1

// Embedding is one known face: a fixed-length vector plus its owner.
// Immutable once created. Many embeddings may map to one person.
type Embedding struct {
	Vector      []float32
	PersonID    int64
	DisplayName string
}

// Gallery is the ordered collection of known embeddings. A gallery with zero
// embeddings is valid but matches nothing.
type Gallery struct {
	Model   string
	Entries []Embedding
}

// Len returns the number of embeddings in the gallery.
func (g *Gallery) Len() int {
	return len(g.Entries)
}

// UniquePeople returns the number of distinct person ids in the gallery.
func (g *Gallery) UniquePeople() int {
	seen := make(map[int64]struct{}, len(g.Entries))
	for _, e := range g.Entries {
		seen[e.PersonID] = struct{}{}
	}
	return len(seen)
}

// galleryFile is the on-disk form: three co-indexed arrays of equal length.
// All three fields are required; a file missing any of them is corrupt.
type galleryFile struct {
	Version   int         `json:"version"`
	Model     string      `json:"model"`
	Names     []string    `json:"names"`
	PersonIDs []int64     `json:"person_ids"`
	Encodings [][]float32 `json:"encodings"`
}

// Save persists the gallery to path. The file is written to a temporary
// location first and renamed into place, so a crash mid-write never leaves a
// partially written gallery behind.
func Save(g *Gallery, path string) error {
	file := galleryFile{
		Version:   currentVersion,
		Model:     g.Model,
		Names:     make([]string, len(g.Entries)),
		PersonIDs: make([]int64, len(g.Entries)),
		Encodings: make([][]float32, len(g.Entries)),
	}
	for i, e := range g.Entries {
		file.Names[i] = e.DisplayName
		file.PersonIDs[i] = e.PersonID
		file.Encodings[i] = e.Vector
	}

	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to encode gallery: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create gallery directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".encodings-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write gallery: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close gallery file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace gallery file: %w", err)
	}
	return nil
}

// Load reads a persisted gallery. A missing file yields ErrUnavailable; a file
// with missing or inconsistent fields yields ErrCorrupt. Never substitutes
// defaults for missing data.
func Load(path string) (*Gallery, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w (%s)", ErrUnavailable, path)
		}
		return nil, fmt.Errorf("failed to read gallery: %w", err)
	}

	var file galleryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if file.Names == nil || file.PersonIDs == nil || file.Encodings == nil {
		return nil, fmt.Errorf("%w: missing names, person_ids or encodings", ErrCorrupt)
	}
	if len(file.Names) != len(file.PersonIDs) || len(file.Names) != len(file.Encodings) {
		return nil, fmt.Errorf("%w: co-indexed arrays have different lengths (%d names, %d ids, %d encodings)",
			ErrCorrupt, len(file.Names), len(file.PersonIDs), len(file.Encodings))
	}

	g := &Gallery{
		Model:   file.Model,
		Entries: make([]Embedding, len(file.Names)),
	}
	for i := range file.Names {
		g.Entries[i] = Embedding{
			Vector:      file.Encodings[i],
			PersonID:    file.PersonIDs[i],
			DisplayName: file.Names[i],
		}
	}
	return g, nil
}

// EuclideanDistance computes the L2 distance between two vectors.
// Mismatched or empty vectors are infinitely far apart.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

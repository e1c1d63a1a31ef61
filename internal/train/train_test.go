package train

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-watch/internal/directory"
	"github.com/kozaktomas/face-watch/internal/directory/mock"
	"github.com/kozaktomas/face-watch/internal/gallery"
)

// fakeEncoder maps the first image byte to canned embeddings.
type fakeEncoder struct {
	responses map[byte][][]float32
	calls     int
}

func (f *fakeEncoder) EncodeFaces(ctx context.Context, data []byte) ([][]float32, error) {
	f.calls++
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return f.responses[data[0]], nil
}

func vec128(first float32) []float32 {
	v := make([]float32, 128)
	v[0] = first
	return v
}

func seedDirectory(t *testing.T) *mock.Directory {
	t.Helper()
	dir := mock.New()
	ctx := context.Background()

	aliceID, err := dir.AddPerson(ctx, &directory.Person{Name: "Alice Johnson"})
	if err != nil {
		t.Fatalf("failed to seed person: %v", err)
	}
	bobID, err := dir.AddPerson(ctx, &directory.Person{Name: "Bob Smith"})
	if err != nil {
		t.Fatalf("failed to seed person: %v", err)
	}

	for _, ref := range []struct {
		personID int64
		data     []byte
	}{
		{aliceID, []byte{0x01}},
		{aliceID, []byte{0x02}},
		{bobID, []byte{0x03}},
	} {
		if _, err := dir.AddReference(ctx, ref.personID, ref.data); err != nil {
			t.Fatalf("failed to seed reference: %v", err)
		}
	}
	return dir
}

func TestTrainerRun(t *testing.T) {
	dir := seedDirectory(t)
	enc := &fakeEncoder{responses: map[byte][][]float32{
		0x01: {vec128(0.1)},
		0x02: {vec128(0.2), vec128(0.3)}, // two faces in one image
		0x03: {vec128(2.0)},
	}}
	path := filepath.Join(t.TempDir(), "encodings.json")

	trainer := NewTrainer(enc, dir, dir, "hog", path)
	g, summary, err := trainer.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Status != "trained" {
		t.Errorf("expected status 'trained', got %q", summary.Status)
	}
	if summary.TotalFaces != 4 {
		t.Errorf("expected 4 faces, got %d", summary.TotalFaces)
	}
	if summary.UniquePeople != 2 {
		t.Errorf("expected 2 unique people, got %d", summary.UniquePeople)
	}
	if summary.ProcessedImages != 3 {
		t.Errorf("expected 3 processed images, got %d", summary.ProcessedImages)
	}
	if g.Len() != 4 {
		t.Errorf("expected gallery with 4 entries, got %d", g.Len())
	}

	// Gallery persisted and loadable.
	loaded, err := gallery.Load(path)
	if err != nil {
		t.Fatalf("failed to load persisted gallery: %v", err)
	}
	if loaded.Len() != 4 {
		t.Errorf("persisted gallery has %d entries, want 4", loaded.Len())
	}

	// Every image encoded exactly once: the index reuses build vectors.
	if enc.calls != 3 {
		t.Errorf("expected 3 encoder calls, got %d", enc.calls)
	}

	// Similarity index populated.
	matches, err := dir.FindSimilarReferences(context.Background(), vec128(0.1), 10, 0.5)
	if err != nil {
		t.Fatalf("failed to query index: %v", err)
	}
	if len(matches) == 0 {
		t.Error("expected similarity index to contain trained embeddings")
	}
}

func TestTrainerNoFaces(t *testing.T) {
	dir := seedDirectory(t)
	enc := &fakeEncoder{responses: map[byte][][]float32{}} // nothing detected
	path := filepath.Join(t.TempDir(), "encodings.json")

	trainer := NewTrainer(enc, dir, nil, "hog", path)
	_, _, err := trainer.Run(context.Background(), nil)
	if !errors.Is(err, gallery.ErrNoTrainingFaces) {
		t.Fatalf("expected ErrNoTrainingFaces, got %v", err)
	}

	// No gallery written on failure.
	if _, err := gallery.Load(path); !errors.Is(err, gallery.ErrUnavailable) {
		t.Errorf("failed training must not write a gallery, got %v", err)
	}
}

func TestTrainerDirectoryError(t *testing.T) {
	dir := seedDirectory(t)
	dir.ListReferencesError = errors.New("connection refused")

	trainer := NewTrainer(&fakeEncoder{}, dir, nil, "hog", filepath.Join(t.TempDir(), "g.json"))
	if _, _, err := trainer.Run(context.Background(), nil); err == nil {
		t.Error("expected directory error to propagate")
	}
}

func TestTrainerIndexFailureDoesNotFailTraining(t *testing.T) {
	dir := seedDirectory(t)
	dir.SaveEmbeddingsError = errors.New("index unavailable")
	enc := &fakeEncoder{responses: map[byte][][]float32{
		0x01: {vec128(0.1)},
		0x02: {vec128(0.2)},
		0x03: {vec128(2.0)},
	}}
	path := filepath.Join(t.TempDir(), "encodings.json")

	trainer := NewTrainer(enc, dir, dir, "hog", path)
	_, summary, err := trainer.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("index failure must not fail training: %v", err)
	}
	if summary.TotalFaces != 3 {
		t.Errorf("expected 3 faces, got %d", summary.TotalFaces)
	}
}

func TestTrainerProgress(t *testing.T) {
	dir := seedDirectory(t)
	enc := &fakeEncoder{responses: map[byte][][]float32{
		0x01: {vec128(0.1)},
		0x02: {vec128(0.2)},
		0x03: {vec128(2.0)},
	}}

	ticks := 0
	trainer := NewTrainer(enc, dir, nil, "hog", filepath.Join(t.TempDir(), "g.json"))
	if _, _, err := trainer.Run(context.Background(), func() { ticks++ }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticks != 3 {
		t.Errorf("expected 3 progress ticks, got %d", ticks)
	}
}

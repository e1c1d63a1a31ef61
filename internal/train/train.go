// Package train builds the recognition model from the person directory and
// persists it for the matching core.
package train

import (
	"context"
	"fmt"
	"log"

	"github.com/kozaktomas/face-watch/internal/directory"
	"github.com/kozaktomas/face-watch/internal/gallery"
)

// EmbeddingSink receives per-reference embeddings for similarity search. The
// gallery file stays the matching source of truth; the sink is a secondary
// index.
type EmbeddingSink interface {
	SaveReferenceEmbeddings(ctx context.Context, referenceID int64, vectors [][]float32) error
}

// Summary reports one training run.
type Summary struct {
	Status          string `json:"status"`
	TotalFaces      int    `json:"total_faces"`
	UniquePeople    int    `json:"unique_people"`
	ProcessedImages int    `json:"processed_images"`
	NoFaceImages    int    `json:"no_face_images"`
	SkippedImages   int    `json:"skipped_images"`
}

// Trainer rebuilds the gallery from reference images.
type Trainer struct {
	encoder gallery.FaceEncoder
	refs    directory.ReferenceReader
	sink    EmbeddingSink // optional
	model   string
	path    string
}

// NewTrainer creates a trainer that writes the gallery to path. A nil sink
// disables the similarity index.
func NewTrainer(encoder gallery.FaceEncoder, refs directory.ReferenceReader, sink EmbeddingSink, model, path string) *Trainer {
	return &Trainer{encoder: encoder, refs: refs, sink: sink, model: model, path: path}
}

// Run encodes all reference images, persists the new gallery, and returns the
// new gallery with its summary. The previous gallery file is left untouched
// when training fails.
func (t *Trainer) Run(ctx context.Context, progress func()) (*gallery.Gallery, *Summary, error) {
	images, err := t.refs.ListReferenceImages(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing reference images: %w", err)
	}

	refs := make([]gallery.Reference, 0, len(images))
	for _, img := range images {
		refs = append(refs, gallery.Reference{
			ID:          img.ID,
			PersonID:    img.PersonID,
			DisplayName: img.DisplayName,
			Data:        img.Data,
		})
	}

	// Record vectors as they are produced so the similarity index does not
	// need a second encoding pass.
	rec := &recordingEncoder{encoder: t.encoder, vectors: make(map[int64][][]float32)}
	for i := range refs {
		rec.order = append(rec.order, refs[i].ID)
	}

	g, stats, err := gallery.Build(ctx, refs, rec, t.model, progress)
	if err != nil {
		return nil, nil, err
	}
	for _, skipped := range stats.Skipped {
		log.Printf("skipped reference %d: %v", skipped.ReferenceID, skipped.Err)
	}

	if err := gallery.Save(g, t.path); err != nil {
		return nil, nil, fmt.Errorf("persisting gallery: %w", err)
	}

	if t.sink != nil {
		if err := t.pushEmbeddings(ctx, rec.vectors); err != nil {
			// The gallery is already saved and valid; the index is best effort.
			log.Printf("updating similarity index failed: %v", err)
		}
	}

	return g, &Summary{
		Status:          "trained",
		TotalFaces:      stats.TotalFaces,
		UniquePeople:    g.UniquePeople(),
		ProcessedImages: stats.Processed,
		NoFaceImages:    stats.NoFaces,
		SkippedImages:   len(stats.Skipped),
	}, nil
}

func (t *Trainer) pushEmbeddings(ctx context.Context, vectors map[int64][][]float32) error {
	for refID, vecs := range vectors {
		if len(vecs) == 0 {
			continue
		}
		if err := t.sink.SaveReferenceEmbeddings(ctx, refID, vecs); err != nil {
			return fmt.Errorf("saving embeddings for reference %d: %w", refID, err)
		}
	}
	return nil
}

// recordingEncoder captures each reference's vectors during the build. Build
// encodes references in order, one call per reference.
type recordingEncoder struct {
	encoder gallery.FaceEncoder
	order   []int64
	calls   int
	vectors map[int64][][]float32
}

func (r *recordingEncoder) EncodeFaces(ctx context.Context, imageData []byte) ([][]float32, error) {
	refID := r.order[r.calls]
	r.calls++

	vectors, err := r.encoder.EncodeFaces(ctx, imageData)
	if err != nil {
		return nil, err
	}
	r.vectors[refID] = vectors
	return vectors, nil
}

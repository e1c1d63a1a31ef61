package gallery

import (
	"context"
	"errors"
)

// ErrNoTrainingFaces is returned when a build processed every reference image
// but not a single face was found.
var ErrNoTrainingFaces = errors.New("no faces found in training data")

// Reference is one labeled reference image to encode into the gallery.
type Reference struct {
	ID          int64
	PersonID    int64
	DisplayName string
	Data        []byte
}

// FaceEncoder produces one embedding per detected face in an image.
type FaceEncoder interface {
	EncodeFaces(ctx context.Context, imageData []byte) ([][]float32, error)
}

// SkippedReference records a reference image that could not be encoded.
type SkippedReference struct {
	ReferenceID int64
	Err         error
}

// BuildStats summarizes a gallery build.
type BuildStats struct {
	Processed  int                // reference images successfully encoded
	NoFaces    int                // reference images with zero detected faces
	Skipped    []SkippedReference // undecodable or otherwise failed images
	TotalFaces int
}

// Build encodes every reference image and assembles a new gallery. One bad
// reference image never blocks training on the rest: undecodable images are
// skipped and reported in the stats, and an image with zero detected faces
// simply contributes nothing. A build that finds no faces at all returns
// ErrNoTrainingFaces alongside the stats.
func Build(ctx context.Context, refs []Reference, enc FaceEncoder, model string, progress func()) (*Gallery, *BuildStats, error) {
	g := &Gallery{Model: model}
	stats := &BuildStats{}

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		vectors, err := enc.EncodeFaces(ctx, ref.Data)
		if err != nil {
			stats.Skipped = append(stats.Skipped, SkippedReference{ReferenceID: ref.ID, Err: err})
			if progress != nil {
				progress()
			}
			continue
		}

		if len(vectors) == 0 {
			stats.NoFaces++
			if progress != nil {
				progress()
			}
			continue
		}

		for _, vec := range vectors {
			g.Entries = append(g.Entries, Embedding{
				Vector:      vec,
				PersonID:    ref.PersonID,
				DisplayName: ref.DisplayName,
			})
		}
		stats.Processed++
		stats.TotalFaces += len(vectors)
		if progress != nil {
			progress()
		}
	}

	if stats.TotalFaces == 0 {
		return nil, stats, ErrNoTrainingFaces
	}
	return g, stats, nil
}

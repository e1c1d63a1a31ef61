// Package validate measures recognition accuracy against a labeled image set.
package validate

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/kozaktomas/face-watch/internal/directory"
	"github.com/kozaktomas/face-watch/internal/gallery"
	"github.com/kozaktomas/face-watch/internal/match"
	"github.com/kozaktomas/face-watch/internal/resolve"
)

// ErrNoValidationFaces is returned when no validation image contains a
// detectable face.
var ErrNoValidationFaces = errors.New("no faces found in validation set")

// FaceEncoder produces embeddings for an image.
type FaceEncoder interface {
	EncodeFaces(ctx context.Context, data []byte) ([][]float32, error)
}

// Report summarizes one validation run.
type Report struct {
	TotalTested    int     `json:"total_tested"`
	CorrectMatches int     `json:"correct_matches"`
	Accuracy       float64 `json:"accuracy"` // percentage, two decimals
	SkippedImages  int     `json:"skipped_images,omitempty"`
}

// Harness checks a trained gallery against labeled holdout images.
type Harness struct {
	encoder FaceEncoder
	engine  *match.Engine
	gallery *gallery.Gallery
	mode    resolve.Mode
}

// NewHarness creates a validation harness for one gallery. The zero mode
// scores with the distance-derived best match; ModeVote measures the legacy
// vote matcher instead.
func NewHarness(encoder FaceEncoder, engine *match.Engine, g *gallery.Gallery, mode resolve.Mode) *Harness {
	if engine == nil {
		engine = match.NewEngine(0, 0)
	}
	if mode == "" {
		mode = resolve.ModeBest
	}
	return &Harness{encoder: encoder, engine: engine, gallery: g, mode: mode}
}

// Run encodes every labeled image and counts how often the gallery match
// names the image's own person. Images where no face is detected are skipped,
// not counted as failures; an unreadable image aborts the run.
func (h *Harness) Run(ctx context.Context, refs []directory.ReferenceImage, progress func()) (*Report, error) {
	report := &Report{}

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		embeddings, err := h.encoder.EncodeFaces(ctx, ref.Data)
		if err != nil {
			return nil, fmt.Errorf("encoding validation image %d: %w", ref.ID, err)
		}
		if progress != nil {
			progress()
		}
		if len(embeddings) == 0 {
			report.SkippedImages++
			continue
		}

		for _, embedding := range embeddings {
			report.TotalTested++
			var candidate match.Candidate
			var ok bool
			if h.mode == resolve.ModeVote {
				candidate, ok = h.engine.Vote(embedding, h.gallery)
			} else {
				candidate, ok = h.engine.Best(embedding, h.gallery)
			}
			if ok && candidate.PersonID == ref.PersonID {
				report.CorrectMatches++
			}
		}
	}

	if report.TotalTested == 0 {
		return nil, ErrNoValidationFaces
	}

	accuracy := float64(report.CorrectMatches) / float64(report.TotalTested) * 100
	report.Accuracy = math.Round(accuracy*100) / 100
	return report, nil
}

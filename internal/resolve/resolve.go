// Package resolve turns raw face embeddings into identified people. It sits
// between the matching core and the person directory: the match engine names a
// person id, the directory says whether that person still exists.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-watch/internal/directory"
	"github.com/kozaktomas/face-watch/internal/gallery"
	"github.com/kozaktomas/face-watch/internal/match"
)

// ErrModelUnavailable is returned by NewResolver when no usable gallery was
// supplied. Resolution never starts against a missing model; callers surface
// the underlying gallery error to the operator instead.
var ErrModelUnavailable = errors.New("recognition model unavailable")

// Mode selects how a single face embedding is reduced to one candidate.
type Mode string

const (
	// ModeBest picks the gallery entry with the smallest distance and derives
	// confidence from that distance.
	ModeBest Mode = "best"
	// ModeVote counts entries within tolerance per person and picks the person
	// with the most votes. Confidence is a fixed 100, which overstates
	// certainty; kept for compatibility with older clients.
	ModeVote Mode = "vote"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBest, ModeVote:
		return Mode(s), nil
	case "":
		return ModeBest, nil
	default:
		return "", fmt.Errorf("unknown match mode %q, want best or vote", s)
	}
}

// Match is one identified person in a resolution result.
type Match struct {
	Person     directory.Person
	Confidence float64
	Distance   float64
}

// Result is the outcome of resolving all faces in one image. A frame with no
// faces or no confident matches is a valid result, not an error; Message
// carries the explanation for the client.
type Result struct {
	Found   bool
	Matches []Match
	Message string
}

// Resolver resolves face embeddings against a gallery and hydrates matched
// person ids from the directory.
type Resolver struct {
	engine  *match.Engine
	gallery *gallery.Gallery
	people  directory.PersonReader
	mode    Mode
}

// NewResolver creates a resolver. The gallery must be loaded and non-nil;
// construction fails fast so a broken model is reported once at startup
// instead of on every frame.
func NewResolver(g *gallery.Gallery, engine *match.Engine, people directory.PersonReader, mode Mode) (*Resolver, error) {
	if g == nil {
		return nil, ErrModelUnavailable
	}
	if engine == nil {
		engine = match.NewEngine(0, 0)
	}
	if mode == "" {
		mode = ModeBest
	}
	return &Resolver{
		engine:  engine,
		gallery: g,
		people:  people,
		mode:    mode,
	}, nil
}

// SwapGallery replaces the gallery used for subsequent resolutions. The caller
// is responsible for serializing swaps against in-flight Resolve calls.
func (r *Resolver) SwapGallery(g *gallery.Gallery) error {
	if g == nil {
		return ErrModelUnavailable
	}
	r.gallery = g
	return nil
}

// Resolve matches every embedding of one image and hydrates the matched
// people. Faces that match a person id no longer present in the directory are
// dropped silently; the gallery entry is stale, not wrong.
func (r *Resolver) Resolve(ctx context.Context, embeddings [][]float32) (*Result, error) {
	if len(embeddings) == 0 {
		return &Result{Found: false, Message: "no faces detected"}, nil
	}

	seen := make(map[int64]bool)
	var matches []Match
	for _, embedding := range embeddings {
		candidate, ok := r.bestCandidate(embedding)
		if !ok {
			continue
		}
		if seen[candidate.PersonID] {
			continue
		}

		person, err := r.people.GetPerson(ctx, candidate.PersonID)
		if err != nil {
			return nil, fmt.Errorf("looking up person %d: %w", candidate.PersonID, err)
		}
		if person == nil {
			// Stale gallery entry, person was deleted after training.
			continue
		}

		seen[candidate.PersonID] = true
		matches = append(matches, Match{
			Person:     *person,
			Confidence: candidate.Confidence,
			Distance:   candidate.Distance,
		})
	}

	if len(matches) == 0 {
		return &Result{Found: false, Message: "face detected but not recognized"}, nil
	}
	return &Result{Found: true, Matches: matches}, nil
}

func (r *Resolver) bestCandidate(embedding []float32) (match.Candidate, bool) {
	if r.mode == ModeVote {
		return r.engine.Vote(embedding, r.gallery)
	}
	return r.engine.Best(embedding, r.gallery)
}

// Package match implements nearest-neighbor identity matching over an encoding
// gallery. Galleries are small identity sets, so every query is a brute-force
// linear scan over all known embeddings.
package match

import (
	"sort"

	"github.com/kozaktomas/face-watch/internal/gallery"
	"github.com/kozaktomas/face-watch/internal/names"
)

// Candidate is one ranked match for a query embedding.
type Candidate struct {
	PersonID    int64
	DisplayName string
	Distance    float64
	Confidence  float64
}

// Engine matches query embeddings against a gallery using a distance tolerance
// and a confidence floor.
type Engine struct {
	Tolerance     float64 // maximum distance for a gallery entry to count as a candidate
	MinConfidence float64 // confidence floor applied by Best
}

// NewEngine creates a match engine. Zero values fall back to the historical
// defaults (tolerance 0.6, confidence floor 50).
func NewEngine(tolerance, minConfidence float64) *Engine {
	if tolerance <= 0 {
		tolerance = 0.6
	}
	if minConfidence <= 0 {
		minConfidence = 50
	}
	return &Engine{Tolerance: tolerance, MinConfidence: minConfidence}
}

// Confidence derives the match certainty percentage from an embedding distance,
// clamped to [0, 100].
func Confidence(distance float64) float64 {
	c := (1 - distance) * 100
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// Match returns every gallery entry within tolerance of the query, ranked by
// ascending distance. Equal distances keep gallery insertion order, so repeated
// calls return identical rankings. An empty gallery yields an empty result.
func (e *Engine) Match(query []float32, g *gallery.Gallery) []Candidate {
	if g == nil || g.Len() == 0 {
		return nil
	}

	var candidates []Candidate
	for _, entry := range g.Entries {
		d := gallery.EuclideanDistance(query, entry.Vector)
		if d > e.Tolerance {
			continue
		}
		candidates = append(candidates, Candidate{
			PersonID:    entry.PersonID,
			DisplayName: entry.DisplayName,
			Distance:    d,
			Confidence:  Confidence(d),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})
	return candidates
}

// Best picks the single candidate with minimum distance and accepts it only if
// its confidence clears the floor. This is the canonical resolution mode: the
// reported confidence reflects the actual embedding distance.
func (e *Engine) Best(query []float32, g *gallery.Gallery) (Candidate, bool) {
	candidates := e.Match(query, g)
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	if best.Confidence <= e.MinConfidence {
		return Candidate{}, false
	}
	return best, true
}

// Vote is the legacy majority-vote mode: every gallery entry within tolerance
// casts one vote for its (normalized name, person id) group and the most
// frequent group wins, ties broken by first-encountered order. The vote does
// not track distance once an entry is a candidate, so the reported confidence
// is a fixed 100 regardless of how close the best entry actually was, a known
// accuracy weakness. Best is the canonical mode.
func (e *Engine) Vote(query []float32, g *gallery.Gallery) (Candidate, bool) {
	if g == nil || g.Len() == 0 {
		return Candidate{}, false
	}

	type group struct {
		name     string
		personID int64
	}
	votes := make(map[group]int)
	first := make(map[group]int) // insertion order for tie-breaking
	display := make(map[group]string)
	order := 0

	for _, entry := range g.Entries {
		if gallery.EuclideanDistance(query, entry.Vector) > e.Tolerance {
			continue
		}
		key := group{name: names.Normalize(entry.DisplayName), personID: entry.PersonID}
		if _, seen := votes[key]; !seen {
			first[key] = order
			display[key] = entry.DisplayName
			order++
		}
		votes[key]++
	}

	if len(votes) == 0 {
		return Candidate{}, false
	}

	var winner group
	bestCount := -1
	for key, count := range votes {
		if count > bestCount || (count == bestCount && first[key] < first[winner]) {
			winner = key
			bestCount = count
		}
	}

	return Candidate{
		PersonID:    winner.personID,
		DisplayName: display[winner],
		Confidence:  100, // vote mode skips distance comparison
	}, true
}

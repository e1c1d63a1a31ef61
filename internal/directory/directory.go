// Package directory defines the person directory: the relational store holding
// person profiles, their labeled reference images, and recognition sightings.
// The directory is the source of truth for profile existence; gallery entries
// whose person has been deleted are simply stale references.
package directory

import (
	"context"
)

// PersonReader provides read-only access to person profiles.
type PersonReader interface {
	// GetPerson retrieves a profile by id, returns nil if not found
	GetPerson(ctx context.Context, id int64) (*Person, error)
	// ListPeople returns all profiles ordered by id
	ListPeople(ctx context.Context) ([]Person, error)
}

// PersonWriter provides write access to person profiles.
type PersonWriter interface {
	PersonReader

	// AddPerson inserts a profile and returns its id
	AddPerson(ctx context.Context, p *Person) (int64, error)
	// UpdatePerson replaces the mutable profile fields of an existing person
	UpdatePerson(ctx context.Context, p *Person) error
	// DeletePerson removes a profile and its reference images
	DeletePerson(ctx context.Context, id int64) error
}

// ReferenceReader provides read access to labeled reference images.
type ReferenceReader interface {
	// ListReferenceImages returns every reference image joined with its owner's
	// display name, in insertion order. This is the gallery build input.
	ListReferenceImages(ctx context.Context) ([]ReferenceImage, error)
	// ListPersonReferences returns the reference images of one person
	ListPersonReferences(ctx context.Context, personID int64) ([]ReferenceImage, error)
}

// ReferenceWriter provides write access to reference images and their cached
// embeddings.
type ReferenceWriter interface {
	ReferenceReader

	// AddReference stores a reference image for a person and returns its id
	AddReference(ctx context.Context, personID int64, data []byte) (int64, error)
	// DeleteReference removes a reference image and its cached embeddings
	DeleteReference(ctx context.Context, id int64) error
	// SaveReferenceEmbeddings replaces the cached embeddings of a reference image
	SaveReferenceEmbeddings(ctx context.Context, referenceID int64, vectors [][]float32) error
	// FindSimilarReferences finds reference images whose cached embedding is
	// within maxDistance of the query vector, closest first
	FindSimilarReferences(ctx context.Context, vector []float32, limit int, maxDistance float64) ([]ReferenceMatch, error)
}

// SightingStore records and lists positive recognitions.
type SightingStore interface {
	// RecordSighting appends one positive recognition
	RecordSighting(ctx context.Context, s *Sighting) (int64, error)
	// ListSightings returns sightings, newest first; personID 0 means all people
	ListSightings(ctx context.Context, personID int64) ([]Sighting, error)
}

// Store is the full directory surface.
type Store interface {
	PersonWriter
	ReferenceWriter
	SightingStore
}

// ReferenceMatch is a reference image matched by embedding similarity.
type ReferenceMatch struct {
	ReferenceID int64
	PersonID    int64
	DisplayName string
	Distance    float64
}

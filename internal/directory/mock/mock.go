// Package mock provides an in-memory implementation of the directory
// interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-watch/internal/directory"
	"github.com/kozaktomas/face-watch/internal/gallery"
)

// Directory is an in-memory directory.Store with error injection.
type Directory struct {
	mu         sync.RWMutex
	people     map[int64]directory.Person
	references map[int64]directory.ReferenceImage
	embeddings map[int64][][]float32
	sightings  []directory.Sighting
	nextID     int64

	// Call counters
	GetPersonCalls int

	// Error injection
	GetPersonError       error
	ListPeopleError      error
	ListReferencesError  error
	AddPersonError       error
	AddReferenceError    error
	RecordSightingError  error
	FindSimilarError     error
	SaveEmbeddingsError  error
	ListSightingsError   error
	DeletePersonError    error
	DeleteReferenceError error
	UpdatePersonError    error
}

// New creates an empty mock directory.
func New() *Directory {
	return &Directory{
		people:     make(map[int64]directory.Person),
		references: make(map[int64]directory.ReferenceImage),
		embeddings: make(map[int64][][]float32),
	}
}

func (d *Directory) allocID() int64 {
	d.nextID++
	return d.nextID
}

// AddPerson inserts a profile and returns its id.
func (d *Directory) AddPerson(ctx context.Context, p *directory.Person) (int64, error) {
	if d.AddPersonError != nil {
		return 0, d.AddPersonError
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	stored := *p
	if stored.ID == 0 {
		stored.ID = d.allocID()
	} else if stored.ID > d.nextID {
		d.nextID = stored.ID
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	d.people[stored.ID] = stored
	return stored.ID, nil
}

// GetPerson retrieves a profile by id, nil when absent.
func (d *Directory) GetPerson(ctx context.Context, id int64) (*directory.Person, error) {
	d.mu.Lock()
	d.GetPersonCalls++
	d.mu.Unlock()

	if d.GetPersonError != nil {
		return nil, d.GetPersonError
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.people[id]
	if !ok {
		return nil, nil
	}
	copied := p
	return &copied, nil
}

// ListPeople returns all profiles ordered by id.
func (d *Directory) ListPeople(ctx context.Context) ([]directory.Person, error) {
	if d.ListPeopleError != nil {
		return nil, d.ListPeopleError
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	people := make([]directory.Person, 0, len(d.people))
	for _, p := range d.people {
		people = append(people, p)
	}
	sort.Slice(people, func(i, j int) bool { return people[i].ID < people[j].ID })
	return people, nil
}

// UpdatePerson replaces the profile fields of an existing person.
func (d *Directory) UpdatePerson(ctx context.Context, p *directory.Person) error {
	if d.UpdatePersonError != nil {
		return d.UpdatePersonError
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.people[p.ID]; !ok {
		return fmt.Errorf("person %d not found", p.ID)
	}
	d.people[p.ID] = *p
	return nil
}

// DeletePerson removes a profile and its reference images.
func (d *Directory) DeletePerson(ctx context.Context, id int64) error {
	if d.DeletePersonError != nil {
		return d.DeletePersonError
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.people, id)
	for refID, ref := range d.references {
		if ref.PersonID == id {
			delete(d.references, refID)
			delete(d.embeddings, refID)
		}
	}
	return nil
}

// AddReference stores a reference image for a person.
func (d *Directory) AddReference(ctx context.Context, personID int64, data []byte) (int64, error) {
	if d.AddReferenceError != nil {
		return 0, d.AddReferenceError
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	person, ok := d.people[personID]
	if !ok {
		return 0, fmt.Errorf("person %d not found", personID)
	}
	id := d.allocID()
	d.references[id] = directory.ReferenceImage{
		ID:          id,
		PersonID:    personID,
		DisplayName: person.Name,
		Data:        data,
		CreatedAt:   time.Now(),
	}
	return id, nil
}

// ListReferenceImages returns every reference image in insertion order.
func (d *Directory) ListReferenceImages(ctx context.Context) ([]directory.ReferenceImage, error) {
	if d.ListReferencesError != nil {
		return nil, d.ListReferencesError
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	refs := make([]directory.ReferenceImage, 0, len(d.references))
	for _, ref := range d.references {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

// ListPersonReferences returns the reference images of one person.
func (d *Directory) ListPersonReferences(ctx context.Context, personID int64) ([]directory.ReferenceImage, error) {
	refs, err := d.ListReferenceImages(ctx)
	if err != nil {
		return nil, err
	}
	var out []directory.ReferenceImage
	for _, ref := range refs {
		if ref.PersonID == personID {
			out = append(out, ref)
		}
	}
	return out, nil
}

// DeleteReference removes a reference image and its cached embeddings.
func (d *Directory) DeleteReference(ctx context.Context, id int64) error {
	if d.DeleteReferenceError != nil {
		return d.DeleteReferenceError
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.references, id)
	delete(d.embeddings, id)
	return nil
}

// SaveReferenceEmbeddings replaces the cached embeddings of a reference image.
func (d *Directory) SaveReferenceEmbeddings(ctx context.Context, referenceID int64, vectors [][]float32) error {
	if d.SaveEmbeddingsError != nil {
		return d.SaveEmbeddingsError
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.embeddings[referenceID] = vectors
	return nil
}

// FindSimilarReferences scans cached embeddings by Euclidean distance.
func (d *Directory) FindSimilarReferences(ctx context.Context, vector []float32, limit int, maxDistance float64) ([]directory.ReferenceMatch, error) {
	if d.FindSimilarError != nil {
		return nil, d.FindSimilarError
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	var matches []directory.ReferenceMatch
	for refID, vectors := range d.embeddings {
		ref, ok := d.references[refID]
		if !ok {
			continue
		}
		for _, vec := range vectors {
			dist := gallery.EuclideanDistance(vector, vec)
			if dist <= maxDistance {
				matches = append(matches, directory.ReferenceMatch{
					ReferenceID: refID,
					PersonID:    ref.PersonID,
					DisplayName: ref.DisplayName,
					Distance:    dist,
				})
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// RecordSighting appends one positive recognition.
func (d *Directory) RecordSighting(ctx context.Context, s *directory.Sighting) (int64, error) {
	if d.RecordSightingError != nil {
		return 0, d.RecordSightingError
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	stored := *s
	stored.ID = d.allocID()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	d.sightings = append(d.sightings, stored)
	return stored.ID, nil
}

// ListSightings returns sightings, newest first.
func (d *Directory) ListSightings(ctx context.Context, personID int64) ([]directory.Sighting, error) {
	if d.ListSightingsError != nil {
		return nil, d.ListSightingsError
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []directory.Sighting
	for i := len(d.sightings) - 1; i >= 0; i-- {
		if personID == 0 || d.sightings[i].PersonID == personID {
			out = append(out, d.sightings[i])
		}
	}
	return out, nil
}

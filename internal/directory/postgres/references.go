package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-watch/internal/directory"
	"github.com/pgvector/pgvector-go"
)

// ListReferenceImages returns every reference image joined with the owner's
// display name, in insertion order. This is the gallery build input.
func (r *Repository) ListReferenceImages(ctx context.Context) ([]directory.ReferenceImage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.person_id, r.image_data, r.created_at, p.name
		FROM face_references r
		JOIN people p ON r.person_id = p.id
		ORDER BY r.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query reference images: %w", err)
	}
	defer rows.Close()

	return scanReferences(rows)
}

// ListPersonReferences returns the reference images of one person.
func (r *Repository) ListPersonReferences(ctx context.Context, personID int64) ([]directory.ReferenceImage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.person_id, r.image_data, r.created_at, p.name
		FROM face_references r
		JOIN people p ON r.person_id = p.id
		WHERE r.person_id = $1
		ORDER BY r.id
	`, personID)
	if err != nil {
		return nil, fmt.Errorf("query person references: %w", err)
	}
	defer rows.Close()

	return scanReferences(rows)
}

type rowScanner interface {
	Next() bool
	Scan(...any) error
	Err() error
}

func scanReferences(rows rowScanner) ([]directory.ReferenceImage, error) {
	var refs []directory.ReferenceImage
	for rows.Next() {
		var ref directory.ReferenceImage
		if err := rows.Scan(&ref.ID, &ref.PersonID, &ref.Data, &ref.CreatedAt, &ref.DisplayName); err != nil {
			return nil, fmt.Errorf("scan reference image: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference images: %w", err)
	}
	return refs, nil
}

// AddReference stores a reference image for a person and returns its id.
func (r *Repository) AddReference(ctx context.Context, personID int64, data []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO face_references (person_id, image_data)
		VALUES ($1, $2)
		RETURNING id
	`, personID, data).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert reference: %w", err)
	}
	return id, nil
}

// DeleteReference removes a reference image. Cached embeddings cascade.
func (r *Repository) DeleteReference(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM face_references WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete reference: %w", err)
	}
	return nil
}

// SaveReferenceEmbeddings replaces the cached embeddings of a reference image.
// Training pushes the freshly built gallery vectors here so the directory can
// answer similarity queries without loading the gallery file.
func (r *Repository) SaveReferenceEmbeddings(ctx context.Context, referenceID int64, vectors [][]float32) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM reference_embeddings WHERE reference_id = $1", referenceID); err != nil {
		return fmt.Errorf("clear reference embeddings: %w", err)
	}

	for i, vec := range vectors {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reference_embeddings (reference_id, face_index, embedding)
			VALUES ($1, $2, $3)
		`, referenceID, i, pgvector.NewVector(vec))
		if err != nil {
			return fmt.Errorf("insert reference embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reference embeddings: %w", err)
	}
	return nil
}

// FindSimilarReferences finds reference images whose cached embedding is within
// maxDistance of the query vector, closest first, using the pgvector L2 operator.
func (r *Repository) FindSimilarReferences(ctx context.Context, vector []float32, limit int, maxDistance float64) ([]directory.ReferenceMatch, error) {
	vec := pgvector.NewVector(vector)
	rows, err := r.pool.Query(ctx, `
		SELECT e.reference_id, r.person_id, p.name, e.embedding <-> $1 AS distance
		FROM reference_embeddings e
		JOIN face_references r ON e.reference_id = r.id
		JOIN people p ON r.person_id = p.id
		WHERE e.embedding <-> $1 <= $2
		ORDER BY distance
		LIMIT $3
	`, vec, maxDistance, limit)
	if err != nil {
		return nil, fmt.Errorf("query similar references: %w", err)
	}
	defer rows.Close()

	var matches []directory.ReferenceMatch
	for rows.Next() {
		var m directory.ReferenceMatch
		if err := rows.Scan(&m.ReferenceID, &m.PersonID, &m.DisplayName, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan similar reference: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar references: %w", err)
	}
	return matches, nil
}

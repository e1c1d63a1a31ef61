package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-watch/internal/directory"
)

// RecordSighting appends one positive recognition.
func (r *Repository) RecordSighting(ctx context.Context, s *directory.Sighting) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sightings (observer_id, person_id, confidence)
		VALUES ($1, $2, $3)
		RETURNING id
	`, s.ObserverID, s.PersonID, s.Confidence).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert sighting: %w", err)
	}
	return id, nil
}

// ListSightings returns sightings, newest first. A personID of 0 lists all people.
func (r *Repository) ListSightings(ctx context.Context, personID int64) ([]directory.Sighting, error) {
	query := "SELECT id, observer_id, person_id, confidence, created_at FROM sightings"
	args := []any{}
	if personID != 0 {
		query += " WHERE person_id = $1"
		args = append(args, personID)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sightings: %w", err)
	}
	defer rows.Close()

	var sightings []directory.Sighting
	for rows.Next() {
		var s directory.Sighting
		if err := rows.Scan(&s.ID, &s.ObserverID, &s.PersonID, &s.Confidence, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sighting: %w", err)
		}
		sightings = append(sightings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sightings: %w", err)
	}
	return sightings, nil
}

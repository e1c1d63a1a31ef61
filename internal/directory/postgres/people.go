package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-watch/internal/directory"
)

// Repository is the PostgreSQL-backed directory store.
type Repository struct {
	pool *Pool
}

// NewRepository creates a directory repository on top of a connection pool.
func NewRepository(pool *Pool) *Repository {
	return &Repository{pool: pool}
}

const personColumns = "id, name, COALESCE(age, 0), COALESCE(address, ''), COALESCE(info, ''), " +
	"COALESCE(email, ''), COALESCE(phone, ''), COALESCE(gender, ''), COALESCE(nationality, ''), created_at"

func scanPerson(row interface{ Scan(...any) error }) (*directory.Person, error) {
	var p directory.Person
	err := row.Scan(&p.ID, &p.Name, &p.Age, &p.Address, &p.Info,
		&p.Email, &p.Phone, &p.Gender, &p.Nationality, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPerson retrieves a profile by id. Returns nil when no such person exists;
// absence is not an error.
func (r *Repository) GetPerson(ctx context.Context, id int64) (*directory.Person, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+personColumns+" FROM people WHERE id = $1", id)
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query person: %w", err)
	}
	return p, nil
}

// ListPeople returns all profiles ordered by id.
func (r *Repository) ListPeople(ctx context.Context) ([]directory.Person, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+personColumns+" FROM people ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query people: %w", err)
	}
	defer rows.Close()

	var people []directory.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		people = append(people, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate people: %w", err)
	}
	return people, nil
}

// AddPerson inserts a profile and returns its id.
func (r *Repository) AddPerson(ctx context.Context, p *directory.Person) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO people (name, age, address, info, email, phone, gender, nationality)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, p.Name, p.Age, p.Address, p.Info, p.Email, p.Phone, p.Gender, p.Nationality).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert person: %w", err)
	}
	return id, nil
}

// UpdatePerson replaces the mutable profile fields of an existing person.
func (r *Repository) UpdatePerson(ctx context.Context, p *directory.Person) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE people
		SET name = $1, age = $2, address = $3, info = $4, email = $5, phone = $6, gender = $7, nationality = $8
		WHERE id = $9
	`, p.Name, p.Age, p.Address, p.Info, p.Email, p.Phone, p.Gender, p.Nationality, p.ID)
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update person rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("person %d not found", p.ID)
	}
	return nil
}

// DeletePerson removes a profile. Reference images and sightings cascade.
func (r *Repository) DeletePerson(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM people WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	return nil
}

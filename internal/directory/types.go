package directory

import (
	"time"
)

// Person is a profile record owned by the directory. The matching core only
// ever holds the id; profile data never enters the gallery.
type Person struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Age         int       `json:"age,omitempty"`
	Address     string    `json:"address,omitempty"`
	Info        string    `json:"info,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Gender      string    `json:"gender,omitempty"`
	Nationality string    `json:"nationality,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// ReferenceImage is one labeled reference photo of a person, used to build the
// encoding gallery.
type ReferenceImage struct {
	ID          int64
	PersonID    int64
	DisplayName string
	Data        []byte // raw image bytes
	CreatedAt   time.Time
}

// Sighting records one positive recognition of a person by an observer.
type Sighting struct {
	ID         int64     `json:"id"`
	ObserverID string    `json:"observer_id"`
	PersonID   int64     `json:"person_id"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

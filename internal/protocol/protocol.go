// Package protocol defines the websocket wire format between camera clients
// and the recognition server. Field names and error strings are part of the
// deployed client contract and must not change.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kozaktomas/face-watch/internal/directory"
	"github.com/kozaktomas/face-watch/internal/resolve"
)

// ErrInvalidFormat is the exact error string sent when a frame message is
// missing a required field.
const ErrInvalidFormat = "Invalid data format"

// FrameID accepts both a JSON number and a JSON string. Older clients send
// numeric frame counters, newer ones send opaque strings.
type FrameID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FrameID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FrameID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("frame id must be a string or number: %w", err)
	}
	*f = FrameID(n.String())
	return nil
}

// MarshalJSON implements json.Marshaler. Numeric-looking ids round-trip as
// numbers so old clients keep parsing their own counters. Only the canonical
// decimal form is emitted raw; "007" would be an invalid JSON number literal.
func (f FrameID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(f), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(f) {
		return []byte(f), nil
	}
	return json.Marshal(string(f))
}

// FrameMessage is one captured camera frame sent by a client.
type FrameMessage struct {
	ObserverID string  `json:"observerId"`
	FrameID    FrameID `json:"frameId"`
	Timestamp  int64   `json:"timestamp"` // unix epoch milliseconds
	Image      []byte  `json:"image"`     // encoding/json transports this as base64
}

// Validate checks the required fields the same way the server always has: a
// missing or zero-valued field rejects the frame.
func (m *FrameMessage) Validate() error {
	if m.ObserverID == "" || m.FrameID == "" || m.Timestamp == 0 || len(m.Image) == 0 {
		return fmt.Errorf("missing required frame fields")
	}
	return nil
}

// PersonProfile is the person payload in a positive recognition response.
type PersonProfile struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Age         int    `json:"age"`
	Address     string `json:"address"`
	Info        string `json:"info"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Gender      string `json:"gender"`
	Nationality string `json:"nationality"`
}

// Match is one recognized person with its confidence.
type Match struct {
	Person     PersonProfile `json:"person"`
	Confidence float64       `json:"confidence"`
}

// Response is the server's answer to one frame. Exactly one of the three
// shapes is populated: a recognition (found plus person/matches), a miss
// (found false plus message), or a protocol error (error only).
type Response struct {
	Found      *bool          `json:"found,omitempty"`
	Person     *PersonProfile `json:"person,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	Matches    []Match        `json:"matches,omitempty"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// ErrorResponse builds a protocol-level error reply.
func ErrorResponse(msg string) Response {
	return Response{Error: msg}
}

func profile(p directory.Person) PersonProfile {
	return PersonProfile{
		ID:          p.ID,
		Name:        p.Name,
		Age:         p.Age,
		Address:     p.Address,
		Info:        p.Info,
		Email:       p.Email,
		Phone:       p.Phone,
		Gender:      p.Gender,
		Nationality: p.Nationality,
	}
}

// FromResult converts a resolution outcome to the wire shape. The top level
// person and confidence mirror the first match for older clients that predate
// the matches array.
func FromResult(r *resolve.Result) Response {
	found := r.Found
	resp := Response{Found: &found, Message: r.Message}
	if !r.Found {
		return resp
	}

	resp.Matches = make([]Match, 0, len(r.Matches))
	for _, m := range r.Matches {
		resp.Matches = append(resp.Matches, Match{
			Person:     profile(m.Person),
			Confidence: m.Confidence,
		})
	}
	first := resp.Matches[0]
	resp.Person = &first.Person
	resp.Confidence = &first.Confidence
	return resp
}

package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kozaktomas/face-watch/internal/protocol"
	"github.com/kozaktomas/face-watch/internal/resolve"
)

// ResultEntry is one line of the recognition log.
type ResultEntry struct {
	ObserverID string    `json:"observer_id"`
	FrameID    string    `json:"frame_id"`
	Timestamp  int64     `json:"timestamp"` // client capture time, epoch ms
	ReceivedAt time.Time `json:"received_at"`
	Found      bool      `json:"found"`
	People     []string  `json:"people,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
}

// ResultLog appends one JSON line per answered frame. Lines are self-contained
// so the file can be tailed or bulk loaded without a footer.
type ResultLog struct {
	mu   sync.Mutex
	file *os.File
}

// OpenResultLog opens or creates the log file for appending.
func OpenResultLog(path string) (*ResultLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating result log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("opening result log: %w", err)
	}
	return &ResultLog{file: f}, nil
}

// Record appends one recognition outcome.
func (l *ResultLog) Record(msg *protocol.FrameMessage, result *resolve.Result) error {
	entry := ResultEntry{
		ObserverID: msg.ObserverID,
		FrameID:    string(msg.FrameID),
		Timestamp:  msg.Timestamp,
		ReceivedAt: time.Now().UTC(),
		Found:      result.Found,
	}
	for _, m := range result.Matches {
		entry.People = append(entry.People, m.Person.Name)
	}
	if len(result.Matches) > 0 {
		entry.Confidence = result.Matches[0].Confidence
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding result entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing result entry: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *ResultLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/kozaktomas/face-watch/internal/directory"
	"github.com/kozaktomas/face-watch/internal/directory/mock"
	"github.com/kozaktomas/face-watch/internal/gallery"
)

func dialTestServer(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	httpServer := httptest.NewServer(s.Router())
	t.Cleanup(httpServer.Close)

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendAndReceive(t *testing.T, conn *websocket.Conn, payload string) map[string]any {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("failed to send frame: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	var resp map[string]any
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("failed to parse response %q: %v", data, err)
	}
	return resp
}

func framePayload(frameID string, image []byte) string {
	return `{
		"observerId": "cam-test",
		"frameId": ` + frameID + `,
		"timestamp": 1714060800000,
		"image": "` + base64.StdEncoding.EncodeToString(image) + `"
	}`
}

func TestWebsocketRecognition(t *testing.T) {
	enc := &fakeEncoder{responses: map[byte][][]float32{
		0x05: {vec128(0.05)}, // matches Alice
		0x06: {},             // no faces
	}}
	s, dir := newTestServer(t, enc)
	conn := dialTestServer(t, s)

	// Known face.
	resp := sendAndReceive(t, conn, framePayload("1", []byte{0x05}))
	if resp["found"] != true {
		t.Fatalf("expected found=true, got %v", resp)
	}
	person, ok := resp["person"].(map[string]any)
	if !ok || person["name"] != "Alice Johnson" {
		t.Errorf("unexpected person payload %v", resp["person"])
	}

	// Faceless frame on the same connection.
	resp = sendAndReceive(t, conn, framePayload("2", []byte{0x06}))
	if resp["found"] != false {
		t.Errorf("expected found=false, got %v", resp)
	}
	if resp["message"] != "no faces detected" {
		t.Errorf("unexpected message %v", resp["message"])
	}

	// Sighting recorded for the positive frame only.
	sightings, err := dir.ListSightings(context.Background(), 0)
	if err != nil {
		t.Fatalf("failed to list sightings: %v", err)
	}
	if len(sightings) != 1 {
		t.Fatalf("expected 1 sighting, got %d", len(sightings))
	}
	if sightings[0].ObserverID != "cam-test" {
		t.Errorf("unexpected observer id %q", sightings[0].ObserverID)
	}
}

func TestWebsocketInvalidFrames(t *testing.T) {
	s, _ := newTestServer(t, &fakeEncoder{})
	conn := dialTestServer(t, s)

	// Broken JSON.
	resp := sendAndReceive(t, conn, `{not json`)
	if resp["error"] != "Invalid JSON format" {
		t.Errorf("expected JSON error, got %v", resp)
	}

	// Missing fields.
	resp = sendAndReceive(t, conn, `{"observerId": "cam-test"}`)
	if resp["error"] != "Invalid data format" {
		t.Errorf("expected format error, got %v", resp)
	}

	// The connection survives bad frames.
	resp = sendAndReceive(t, conn, `{"frameId": 1}`)
	if resp["error"] != "Invalid data format" {
		t.Errorf("connection should keep answering, got %v", resp)
	}
}

func TestWebsocketStringFrameID(t *testing.T) {
	enc := &fakeEncoder{responses: map[byte][][]float32{0x06: {}}}
	s, _ := newTestServer(t, enc)
	conn := dialTestServer(t, s)

	resp := sendAndReceive(t, conn, framePayload(`"frame-abc"`, []byte{0x06}))
	if _, hasErr := resp["error"]; hasErr {
		t.Errorf("string frame id must be accepted, got %v", resp)
	}
}

func TestWebsocketWithoutModel(t *testing.T) {
	cfg := testConfig(t) // no gallery on disk
	s := NewServer(cfg, mock.New(), &fakeEncoder{}, nil, "127.0.0.1:0")
	conn := dialTestServer(t, s)

	resp := sendAndReceive(t, conn, framePayload("1", []byte{0x05}))
	errMsg, _ := resp["error"].(string)
	if !strings.Contains(errMsg, "no trained encodings found") {
		t.Errorf("expected model-unavailable error, got %v", resp)
	}
}

func TestWebsocketResultLog(t *testing.T) {
	enc := &fakeEncoder{responses: map[byte][][]float32{0x05: {vec128(0.05)}}}

	cfg := testConfig(t)
	dir := mock.New()
	ctx := context.Background()
	aliceID, err := dir.AddPerson(ctx, &directory.Person{Name: "Alice Johnson"})
	if err != nil {
		t.Fatalf("failed to seed person: %v", err)
	}
	g := &gallery.Gallery{
		Model:   "hog",
		Entries: []gallery.Embedding{{Vector: vec128(0.0), PersonID: aliceID, DisplayName: "Alice Johnson"}},
	}
	if err := gallery.Save(g, cfg.Gallery.Path); err != nil {
		t.Fatalf("failed to save gallery: %v", err)
	}

	logPath := filepath.Join(t.TempDir(), "results.jsonl")
	results, err := OpenResultLog(logPath)
	if err != nil {
		t.Fatalf("failed to open result log: %v", err)
	}

	s := NewServer(cfg, dir, enc, results, "127.0.0.1:0")
	conn := dialTestServer(t, s)
	sendAndReceive(t, conn, framePayload("7", []byte{0x05}))

	if err := results.Close(); err != nil {
		t.Fatalf("failed to close result log: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read result log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(lines))
	}

	var entry ResultEntry
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	if entry.ObserverID != "cam-test" || entry.FrameID != "7" || !entry.Found {
		t.Errorf("unexpected log entry %+v", entry)
	}
	if len(entry.People) != 1 || entry.People[0] != "Alice Johnson" {
		t.Errorf("unexpected people %v", entry.People)
	}
}

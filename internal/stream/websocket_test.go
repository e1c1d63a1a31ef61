package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoAfter upgrades and answers every received message with reply after the
// given delay, forever.
func echoAfter(t *testing.T, delay time.Duration, reply string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
			time.Sleep(delay)
			if err := ws.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}
}

func dialWebsocket(t *testing.T, srv *httptest.Server) Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := (&WebsocketTransport{}).Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func TestWebsocketConnReceiveTimeoutKeepsConnection(t *testing.T) {
	srv := httptest.NewServer(echoAfter(t, 300*time.Millisecond, `{"found":false}`))
	defer srv.Close()

	conn := dialWebsocket(t, srv)
	defer conn.Close()
	ctx := context.Background()

	if err := conn.Send(ctx, []byte("frame 0")); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if _, err := conn.Receive(ctx, 50*time.Millisecond); !errors.Is(err, ErrReceiveTimeout) {
		t.Fatalf("expected ErrReceiveTimeout for the slow reply, got %v", err)
	}

	// The connection must survive the timeout: the next frame gets answered,
	// with the late reply for frame 0 delivered first.
	if err := conn.Send(ctx, []byte("frame 1")); err != nil {
		t.Fatalf("send after timeout failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		data, err := conn.Receive(ctx, 2*time.Second)
		if err != nil {
			t.Fatalf("receive %d after timeout failed: %v", i, err)
		}
		if string(data) != `{"found":false}` {
			t.Errorf("receive %d: unexpected payload %q", i, data)
		}
	}
}

func TestWebsocketConnImmediateReply(t *testing.T) {
	srv := httptest.NewServer(echoAfter(t, 0, "ok"))
	defer srv.Close()

	conn := dialWebsocket(t, srv)
	defer conn.Close()
	ctx := context.Background()

	if err := conn.Send(ctx, []byte("frame")); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	data, err := conn.Receive(ctx, 2*time.Second)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if string(data) != "ok" {
		t.Errorf("unexpected payload %q", data)
	}
}

func TestWebsocketConnServerCloseIsNotATimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.Close()
	}))
	defer srv.Close()

	conn := dialWebsocket(t, srv)
	defer conn.Close()

	_, err := conn.Receive(context.Background(), 2*time.Second)
	if err == nil {
		t.Fatal("expected an error from a closed connection")
	}
	if errors.Is(err, ErrReceiveTimeout) {
		t.Fatalf("connection loss must not look like a soft timeout: %v", err)
	}
}

func TestWebsocketConnReceiveHonorsContext(t *testing.T) {
	// Reads frames but never answers.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	conn := dialWebsocket(t, srv)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	if err := conn.Send(ctx, []byte("frame")); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if _, err := conn.Receive(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWebsocketConnCloseStopsReader(t *testing.T) {
	srv := httptest.NewServer(echoAfter(t, 0, "ok"))
	defer srv.Close()

	conn := dialWebsocket(t, srv)
	if err := conn.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	// Idempotent.
	if err := conn.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}

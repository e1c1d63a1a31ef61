package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketTransport dials the recognition server over websocket.
type WebsocketTransport struct {
	// HandshakeTimeout bounds the dial. Zero uses the dialer default.
	HandshakeTimeout time.Duration
}

// Dial implements Transport.
func (t *WebsocketTransport) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: t.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake with %s failed: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c := &websocketConn{
		conn:     conn,
		messages: make(chan []byte, 8),
		closing:  make(chan struct{}),
		readDone: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// websocketConn reads in a dedicated goroutine and hands messages over a
// channel. Receive waits on the channel with its own timer, so a slow server
// response never trips a read deadline on the underlying connection. A read
// deadline would poison it: once gorilla/websocket sees a timed-out read,
// every later read fails immediately.
type websocketConn struct {
	conn     *websocket.Conn
	messages chan []byte
	readErr  error // set before messages is closed
	closing  chan struct{}
	readDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func (c *websocketConn) readLoop() {
	defer close(c.readDone)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr = fmt.Errorf("reading response: %w", err)
			close(c.messages)
			return
		}
		select {
		case c.messages <- data:
		case <-c.closing:
			return
		}
	}
}

func (c *websocketConn) Send(ctx context.Context, data []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("setting write deadline: %w", err)
		}
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Receive returns the next message, ErrReceiveTimeout when none arrives in
// time, or the reader's terminal error once the connection is gone. A timeout
// leaves the connection intact; the late message is delivered to the next
// Receive call.
func (c *websocketConn) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data, ok := <-c.messages:
		if !ok {
			return nil, c.readErr
		}
		return data, nil
	case <-timer.C:
		return nil, ErrReceiveTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *websocketConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
		// Best effort close handshake, the session is done with this link either way.
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
		<-c.readDone
	})
	return c.closeErr
}

// Package stream implements the camera-side streaming session: capture frames,
// send them over a websocket, and pace on the server's responses. One session
// owns one connection and one frame source for its whole lifetime.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/kozaktomas/face-watch/internal/protocol"
)

// ErrReceiveTimeout is returned by Conn.Receive when no response arrived
// within the deadline. The session treats it as a slow server, not a dead
// connection.
var ErrReceiveTimeout = errors.New("timed out waiting for response")

// ErrRetryBudgetExhausted terminates the session after the configured number
// of reconnect attempts has been spent.
var ErrRetryBudgetExhausted = errors.New("reconnect retry budget exhausted")

// Conn is one established connection to the recognition server.
type Conn interface {
	// Send transmits one text message
	Send(ctx context.Context, data []byte) error
	// Receive blocks for the next message or ErrReceiveTimeout
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	Close() error
}

// Transport establishes connections. Separated from Conn so tests can inject
// scripted connections and the session never touches websocket details.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// FrameSource produces captured frames as encoded JPEG bytes.
type FrameSource interface {
	// Next returns the next frame, blocking until one is available. Returns
	// io.EOF when the source is exhausted.
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Options configures a session. Zero values fall back to the deployed
// defaults.
type Options struct {
	ServerURL       string
	ObserverID      string
	FrameInterval   time.Duration // minimum time between sent frames
	ResponseTimeout time.Duration // soft deadline for the server's answer
	MaxRetries      int           // total reconnect budget for the session
	Backoff         time.Duration // fixed wait before each reconnect

	// OnResult is called with the parsed response for every answered frame.
	// Optional.
	OnResult func(frameID protocol.FrameID, resp protocol.Response)
}

func (o *Options) applyDefaults() {
	if o.FrameInterval <= 0 {
		o.FrameInterval = time.Second
	}
	if o.ResponseTimeout <= 0 {
		o.ResponseTimeout = 10 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 2 * time.Second
	}
}

// Session streams frames from a source to the server. At most one frame is in
// flight at any time; the next frame is not captured until the previous one is
// answered or timed out.
type Session struct {
	opts      Options
	transport Transport
	source    FrameSource

	frameCounter int64
	retryCount   int

	// Injected for tests, wall clock in production.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSession creates a streaming session. The source is owned by the session
// and closed when Run returns.
func NewSession(opts Options, transport Transport, source FrameSource) *Session {
	opts.applyDefaults()
	return &Session{
		opts:      opts,
		transport: transport,
		source:    source,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run streams until the source is exhausted, the context is canceled, or the
// reconnect budget runs out. The frame source and any open connection are
// released on every exit path.
func (s *Session) Run(ctx context.Context) error {
	defer s.source.Close()

	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	var lastSent time.Time
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := s.source.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("capturing frame: %w", err)
		}

		// Throttle: at most one frame per interval, measured from the
		// previous send.
		if !lastSent.IsZero() {
			if wait := s.opts.FrameInterval - s.now().Sub(lastSent); wait > 0 {
				if err := s.sleep(ctx, wait); err != nil {
					return err
				}
			}
		}

		frameID := protocol.FrameID(fmt.Sprintf("%d", s.frameCounter))
		s.frameCounter++

		payload, err := json.Marshal(protocol.FrameMessage{
			ObserverID: s.opts.ObserverID,
			FrameID:    frameID,
			Timestamp:  s.now().UnixMilli(),
			Image:      frame,
		})
		if err != nil {
			return fmt.Errorf("encoding frame %s: %w", frameID, err)
		}

		lastSent = s.now()
		conn, err = s.deliver(ctx, conn, frameID, payload)
		if err != nil {
			return err
		}
	}
}

// deliver sends one frame and waits for its answer, reconnecting on transport
// failure. Returns the connection to use for the next frame.
func (s *Session) deliver(ctx context.Context, conn Conn, frameID protocol.FrameID, payload []byte) (Conn, error) {
	for {
		if err := conn.Send(ctx, payload); err != nil {
			if ctx.Err() != nil {
				return conn, ctx.Err()
			}
			log.Printf("send failed for frame %s: %v", frameID, err)
			next, rerr := s.reconnect(ctx, conn)
			if rerr != nil {
				return conn, rerr
			}
			conn = next
			continue
		}

		data, err := conn.Receive(ctx, s.opts.ResponseTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return conn, ctx.Err()
			}
			if errors.Is(err, ErrReceiveTimeout) {
				// Slow server, not a dead link. Give up on this frame and
				// keep the connection and retry budget intact.
				log.Printf("no response for frame %s within %s", frameID, s.opts.ResponseTimeout)
				return conn, nil
			}
			log.Printf("receive failed for frame %s: %v", frameID, err)
			next, rerr := s.reconnect(ctx, conn)
			if rerr != nil {
				return conn, rerr
			}
			conn = next
			continue
		}

		var resp protocol.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			log.Printf("unparseable response for frame %s: %v", frameID, err)
			return conn, nil
		}
		if s.opts.OnResult != nil {
			s.opts.OnResult(frameID, resp)
		}
		return conn, nil
	}
}

func (s *Session) connect(ctx context.Context) (Conn, error) {
	conn, err := s.transport.Dial(ctx, s.opts.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", s.opts.ServerURL, err)
	}
	return conn, nil
}

// reconnect closes the broken connection and dials again after the backoff.
// The retry budget covers the whole session; it is not refilled by a
// successful reconnect, so a link that keeps flapping still terminates.
func (s *Session) reconnect(ctx context.Context, old Conn) (Conn, error) {
	old.Close()

	for {
		if s.retryCount >= s.opts.MaxRetries {
			return nil, fmt.Errorf("giving up after %d reconnect attempts: %w", s.retryCount, ErrRetryBudgetExhausted)
		}
		s.retryCount++

		if err := s.sleep(ctx, s.opts.Backoff); err != nil {
			return nil, err
		}

		conn, err := s.transport.Dial(ctx, s.opts.ServerURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("reconnect attempt %d failed: %v", s.retryCount, err)
			continue
		}
		log.Printf("reconnected to %s (attempt %d)", s.opts.ServerURL, s.retryCount)
		return conn, nil
	}
}

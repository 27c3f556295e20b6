// Package reporting pushes a single position update over a fresh Socket.IO
// connection and reports how the attempt ended.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"paraderos-agent/internal/models"
	"paraderos-agent/internal/socketio"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// DefaultTimeout bounds a whole report: dial, connect, emit and ack
	DefaultTimeout = 4500 * time.Millisecond
	// DefaultEvent is the event name the backend listens on
	DefaultEvent = "actualizar-gps"
	// DefaultReconnectDelay is the pause between dial attempts
	DefaultReconnectDelay = 250 * time.Millisecond
)

var (
	ErrNoToken = errors.New("reporting: no access token")
	ErrNoUser  = errors.New("reporting: no user id")
)

// Outcome of one report attempt
type Outcome string

const (
	OutcomeAcked        Outcome = "acked"
	OutcomeConnectError Outcome = "connect_error"
	OutcomeTimeout      Outcome = "timeout"
	// OutcomeRejected means the attempt was refused before dialing
	OutcomeRejected Outcome = "rejected"
)

// Result describes a finished report attempt
type Result struct {
	Outcome  Outcome
	Err      error
	Duration time.Duration
	TraceID  string
}

// OK reports whether the backend acknowledged the update
func (r Result) OK() bool {
	return r.Outcome == OutcomeAcked
}

// Channel opens one connection per report and never reuses it
type Channel struct {
	Endpoint string
	Event    string
	Timeout  time.Duration

	// ReconnectAttempts retries failed dials (not auth rejections) while the
	// timeout allows
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	// Dialer overrides the per-report websocket dialer
	Dialer *websocket.Dialer
}

// NewChannel creates a single-shot channel for endpoint
func NewChannel(endpoint string) *Channel {
	return &Channel{
		Endpoint:       endpoint,
		Event:          DefaultEvent,
		Timeout:        DefaultTimeout,
		ReconnectDelay: DefaultReconnectDelay,
	}
}

// WithReconnect returns a copy that retries dials up to attempts times
func (c *Channel) WithReconnect(attempts int) *Channel {
	cp := *c
	cp.ReconnectAttempts = attempts
	return &cp
}

// Report sends msg exactly once and waits for the acknowledgement, a
// connection error or the timeout, whichever comes first. The connection is
// closed before Report returns on every path.
func (c *Channel) Report(ctx context.Context, msg models.PositionUpdateMessage, token string) Result {
	start := time.Now()
	res := Result{TraceID: uuid.NewString()}
	finish := func(o Outcome, err error) Result {
		res.Outcome = o
		res.Err = err
		res.Duration = time.Since(start)
		return res
	}

	if token == "" {
		return finish(OutcomeRejected, ErrNoToken)
	}
	if msg.UserID == 0 {
		return finish(OutcomeRejected, ErrNoUser)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.dial(ctx, token)
	if err != nil {
		return finish(classify(ctx, err), err)
	}
	defer conn.Close()

	event := c.Event
	if event == "" {
		event = DefaultEvent
	}
	if _, err := conn.EmitWithAck(ctx, event, msg); err != nil {
		return finish(classify(ctx, err), err)
	}

	log.Printf("📤 [REPORT] Position acked for user %d (%s, %s)", msg.UserID, res.TraceID, time.Since(start).Round(time.Millisecond))
	return finish(OutcomeAcked, nil)
}

func (c *Channel) dial(ctx context.Context, token string) (*socketio.Conn, error) {
	opts := socketio.Options{
		Auth:   map[string]string{"token": token},
		Dialer: c.Dialer,
	}

	delay := c.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}

	for attempt := 0; ; attempt++ {
		conn, err := socketio.Dial(ctx, c.Endpoint, opts)
		if err == nil {
			return conn, nil
		}

		var ce *socketio.ConnectError
		if errors.As(err, &ce) || ctx.Err() != nil || isTimeout(err) || attempt >= c.ReconnectAttempts {
			return nil, err
		}

		log.Printf("⚠️  [REPORT] Dial attempt %d failed, retrying: %v", attempt+1, err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w (after %d attempts, last: %v)", ctx.Err(), attempt+1, err)
		case <-timer.C:
		}
	}
}

func classify(ctx context.Context, err error) Outcome {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return OutcomeTimeout
	}
	return OutcomeConnectError
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

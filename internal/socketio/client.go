package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrDisconnected = errors.New("socketio: disconnected by server")
	ErrClosed       = errors.New("socketio: connection closed")
)

// ConnectError is the server's refusal of a namespace connect, typically an
// authentication failure
type ConnectError struct {
	Message string
	Data    json.RawMessage
}

func (e *ConnectError) Error() string {
	if e.Message == "" {
		return "socketio: connect error"
	}
	return "socketio: connect error: " + e.Message
}

// Options for Dial
type Options struct {
	// Auth is sent in the namespace CONNECT packet
	Auth interface{}
	// Header is added to the websocket upgrade request
	Header http.Header
	// Dialer defaults to a fresh dialer so no connection is ever shared
	Dialer *websocket.Dialer
}

// Conn is one connected namespace on one websocket
type Conn struct {
	ws        *websocket.Conn
	namespace string
	sid       string
	nextID    int
	closeOnce sync.Once
	mu        sync.Mutex
}

// EndpointURL maps an http(s) endpoint whose path is the namespace to the
// websocket transport URL
func EndpointURL(endpoint string) (wsURL, namespace string, err error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", "", fmt.Errorf("invalid endpoint scheme %q", u.Scheme)
	}

	namespace = strings.TrimSuffix(u.Path, "/")
	if namespace == "" {
		namespace = "/"
	}

	u.Path = "/socket.io/"
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), namespace, nil
}

// Dial opens a websocket, completes the Engine.IO handshake and connects to
// the endpoint's namespace. ctx bounds the whole handshake.
func Dial(ctx context.Context, endpoint string, opts Options) (*Conn, error) {
	wsURL, namespace, err := EndpointURL(endpoint)
	if err != nil {
		return nil, err
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}

	ws, resp, err := dialer.DialContext(ctx, wsURL, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket upgrade failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	c := &Conn{ws: ws, namespace: namespace, nextID: 1}
	if err := c.handshake(ctx, opts.Auth); err != nil {
		c.ws.Close()
		return nil, err
	}
	return c, nil
}

// SID is the namespace session id the server assigned
func (c *Conn) SID() string {
	return c.sid
}

// Namespace the connection is bound to
func (c *Conn) Namespace() string {
	return c.namespace
}

func (c *Conn) handshake(ctx context.Context, auth interface{}) error {
	release := c.bind(ctx)
	defer release()

	frame, err := c.readFrame()
	if err != nil {
		return fmt.Errorf("waiting for open packet: %w", err)
	}
	if frame == "" || frame[0] != EngineOpen {
		return fmt.Errorf("%w: expected open packet, got %q", ErrMalformedPacket, frame)
	}
	var open OpenPayload
	if err := json.Unmarshal([]byte(frame[1:]), &open); err != nil {
		return fmt.Errorf("%w: open payload: %v", ErrMalformedPacket, err)
	}

	connect := Packet{Type: PacketConnect, Namespace: c.namespace}
	if auth != nil {
		data, err := json.Marshal(auth)
		if err != nil {
			return fmt.Errorf("failed to encode auth: %w", err)
		}
		connect.Data = data
	}
	if err := c.writeFrame(connect.Encode()); err != nil {
		return fmt.Errorf("sending connect: %w", err)
	}

	for {
		p, err := c.nextPacket()
		if err != nil {
			return fmt.Errorf("waiting for connect: %w", err)
		}
		if p.Namespace != c.namespace {
			continue
		}
		switch p.Type {
		case PacketConnect:
			var ack struct {
				SID string `json:"sid"`
			}
			if len(p.Data) > 0 {
				if err := json.Unmarshal(p.Data, &ack); err != nil {
					log.Printf("⚠️  [SOCKETIO] Malformed connect ack on %s: %v (%s)", c.namespace, err, p.Data)
				}
			}
			c.sid = ack.SID
			return nil
		case PacketConnectError:
			ce := &ConnectError{Data: p.Data}
			var body struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(p.Data, &body) == nil {
				ce.Message = body.Message
			}
			return ce
		case PacketDisconnect:
			return ErrDisconnected
		}
	}
}

// EmitWithAck sends one event and waits for its acknowledgement. The ack
// arguments are returned as a raw JSON array.
func (c *Conn) EmitWithAck(ctx context.Context, event string, args ...interface{}) (json.RawMessage, error) {
	release := c.bind(ctx)
	defer release()

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.mu.Unlock()

	p, err := EventPacket(c.namespace, event, &id, args...)
	if err != nil {
		return nil, err
	}
	if err := c.writeFrame(p.Encode()); err != nil {
		return nil, fmt.Errorf("sending %s: %w", event, err)
	}

	for {
		in, err := c.nextPacket()
		if err != nil {
			return nil, fmt.Errorf("waiting for %s ack: %w", event, err)
		}
		if in.Namespace != c.namespace {
			continue
		}
		switch in.Type {
		case PacketAck:
			if in.ID != nil && *in.ID == id {
				return in.Data, nil
			}
		case PacketDisconnect:
			return nil, ErrDisconnected
		}
	}
}

// Close disconnects the namespace and closes the websocket. Safe to call
// more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		c.ws.SetWriteDeadline(deadline)
		_ = c.ws.WriteMessage(websocket.TextMessage, []byte(Packet{Type: PacketDisconnect, Namespace: c.namespace}.Encode()))
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.ws.Close()
	})
	return err
}

// bind applies ctx's deadline to the socket and unblocks pending I/O when
// ctx is cancelled
func (c *Conn) bind(ctx context.Context) func() {
	if deadline, ok := ctx.Deadline(); ok {
		c.ws.SetReadDeadline(deadline)
		c.ws.SetWriteDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		c.ws.UnderlyingConn().SetDeadline(time.Now())
	})
	return func() {
		stop()
		c.ws.SetReadDeadline(time.Time{})
		c.ws.SetWriteDeadline(time.Time{})
	}
}

// nextPacket reads frames until a Socket.IO packet arrives, answering pings
func (c *Conn) nextPacket() (Packet, error) {
	for {
		frame, err := c.readFrame()
		if err != nil {
			return Packet{}, err
		}
		if frame == "" {
			continue
		}
		switch frame[0] {
		case EnginePing:
			if err := c.writeFrame(string(EnginePong) + frame[1:]); err != nil {
				return Packet{}, err
			}
		case EngineClose:
			return Packet{}, ErrClosed
		case EngineMessage:
			return DecodePacket(frame[1:])
		}
	}
}

func (c *Conn) readFrame() (string, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Conn) writeFrame(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}

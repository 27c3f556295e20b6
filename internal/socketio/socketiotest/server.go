// Package socketiotest provides an in-process Socket.IO endpoint for tests
package socketiotest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"paraderos-agent/internal/socketio"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Mode selects how the server misbehaves
type Mode int

const (
	// ModeAck completes the handshake and acknowledges every event
	ModeAck Mode = iota
	// ModeSilentOpen upgrades the websocket but never sends the open packet
	ModeSilentOpen
	// ModeNoAck connects but never acknowledges events
	ModeNoAck
	// ModeHangHTTP accepts the TCP connection and never answers the upgrade
	ModeHangHTTP
)

// Event is one event received by the server
type Event struct {
	Namespace string
	Name      string
	Args      []json.RawMessage
	Auth      json.RawMessage
}

// Server is a Socket.IO endpoint backed by httptest
type Server struct {
	*httptest.Server

	Mode Mode
	// Authorize rejects a namespace connect when it returns a non-empty message
	Authorize func(namespace string, auth json.RawMessage) string
	// PingFirst sends a ping before answering the namespace connect
	PingFirst bool
	// ConnectAck replaces the data of the namespace connect reply
	ConnectAck json.RawMessage

	events      []Event
	connections atomic.Int32
	closed      atomic.Int32
	mu          sync.Mutex
	hang        chan struct{}
}

// NewServer starts a server in ModeAck
func NewServer() *Server {
	s := &Server{hang: make(chan struct{})}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Close releases hung requests and shuts the server down
func (s *Server) Close() {
	close(s.hang)
	s.Server.CloseClientConnections()
	s.Server.Close()
}

// Endpoint returns the http endpoint for namespace
func (s *Server) Endpoint(namespace string) string {
	return s.URL + namespace
}

// Events returns a copy of the received events
func (s *Server) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Connections is the number of websocket upgrades served
func (s *Server) Connections() int {
	return int(s.connections.Load())
}

// ClosedConnections is the number of websockets whose read loop ended
func (s *Server) ClosedConnections() int {
	return int(s.closed.Load())
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if s.Mode == ModeHangHTTP {
		<-s.hang
		return
	}
	if !strings.HasPrefix(r.URL.Path, "/socket.io/") || r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "transport not supported", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.connections.Add(1)
	defer func() {
		s.closed.Add(1)
		conn.Close()
	}()

	if s.Mode == ModeSilentOpen {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}

	open, _ := json.Marshal(socketio.OpenPayload{SID: "eio-test", PingInterval: 25000, PingTimeout: 20000, MaxPayload: 1000000})
	if err := conn.WriteMessage(websocket.TextMessage, append([]byte{socketio.EngineOpen}, open...)); err != nil {
		return
	}

	var auth json.RawMessage
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame := string(data)
		if frame == "" || frame[0] != socketio.EngineMessage {
			continue
		}
		p, err := socketio.DecodePacket(frame[1:])
		if err != nil {
			return
		}

		switch p.Type {
		case socketio.PacketConnect:
			auth = p.Data
			if s.PingFirst {
				if err := conn.WriteMessage(websocket.TextMessage, []byte{socketio.EnginePing}); err != nil {
					return
				}
			}
			if s.Authorize != nil {
				if msg := s.Authorize(p.Namespace, p.Data); msg != "" {
					body, _ := json.Marshal(map[string]string{"message": msg})
					reply := socketio.Packet{Type: socketio.PacketConnectError, Namespace: p.Namespace, Data: body}
					conn.WriteMessage(websocket.TextMessage, []byte(reply.Encode()))
					continue
				}
			}
			ack := json.RawMessage(`{"sid":"ns-test"}`)
			if s.ConnectAck != nil {
				ack = s.ConnectAck
			}
			reply := socketio.Packet{Type: socketio.PacketConnect, Namespace: p.Namespace, Data: ack}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply.Encode())); err != nil {
				return
			}

		case socketio.PacketEvent:
			var args []json.RawMessage
			if err := json.Unmarshal(p.Data, &args); err != nil || len(args) == 0 {
				continue
			}
			var name string
			_ = json.Unmarshal(args[0], &name)

			s.mu.Lock()
			s.events = append(s.events, Event{Namespace: p.Namespace, Name: name, Args: args[1:], Auth: auth})
			s.mu.Unlock()

			if s.Mode == ModeNoAck || p.ID == nil {
				continue
			}
			reply := socketio.Packet{Type: socketio.PacketAck, Namespace: p.Namespace, ID: p.ID, Data: json.RawMessage(`[]`)}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply.Encode())); err != nil {
				return
			}

		case socketio.PacketDisconnect:
			return
		}
	}
}

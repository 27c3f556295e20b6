// Package socketio is a minimal Socket.IO v5 client (Engine.IO v4) over a
// websocket-only transport. It supports what a single-shot reporter needs:
// namespace connect with an auth payload, events with acknowledgements, and
// ping/pong.
package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Engine.IO packet types, the first byte of every websocket frame
const (
	EngineOpen    byte = '0'
	EngineClose   byte = '1'
	EnginePing    byte = '2'
	EnginePong    byte = '3'
	EngineMessage byte = '4'
	EngineUpgrade byte = '5'
	EngineNoop    byte = '6'
)

// PacketType is the Socket.IO packet type carried in an Engine.IO message
type PacketType int

const (
	PacketConnect PacketType = iota
	PacketDisconnect
	PacketEvent
	PacketAck
	PacketConnectError
)

var ErrMalformedPacket = errors.New("socketio: malformed packet")

// Packet is a decoded Socket.IO packet
type Packet struct {
	Type      PacketType
	Namespace string
	ID        *int
	Data      json.RawMessage
}

// OpenPayload is the Engine.IO handshake sent by the server
type OpenPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// Encode renders p as an Engine.IO message frame
func (p Packet) Encode() string {
	var b strings.Builder
	b.WriteByte(EngineMessage)
	b.WriteString(strconv.Itoa(int(p.Type)))
	if p.Namespace != "" && p.Namespace != "/" {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.ID != nil {
		b.WriteString(strconv.Itoa(*p.ID))
	}
	if len(p.Data) > 0 {
		b.Write(p.Data)
	}
	return b.String()
}

// DecodePacket parses the Socket.IO part of an Engine.IO message, i.e. the
// frame without its leading '4'
func DecodePacket(s string) (Packet, error) {
	if s == "" {
		return Packet{}, ErrMalformedPacket
	}

	t := int(s[0] - '0')
	if t < int(PacketConnect) || t > int(PacketConnectError) {
		return Packet{}, fmt.Errorf("%w: unsupported type %q", ErrMalformedPacket, s[0])
	}
	p := Packet{Type: PacketType(t), Namespace: "/"}
	rest := s[1:]

	if strings.HasPrefix(rest, "/") {
		end := strings.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = rest
			return p, nil
		}
		p.Namespace = rest[:end]
		rest = rest[end+1:]
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(rest[:digits])
		if err != nil {
			return Packet{}, fmt.Errorf("%w: ack id: %v", ErrMalformedPacket, err)
		}
		p.ID = &id
		rest = rest[digits:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return Packet{}, fmt.Errorf("%w: invalid payload", ErrMalformedPacket)
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// EventPacket builds an EVENT carrying [event, args...]
func EventPacket(namespace, event string, id *int, args ...interface{}) (Packet, error) {
	payload := append([]interface{}{event}, args...)
	data, err := json.Marshal(payload)
	if err != nil {
		return Packet{}, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return Packet{Type: PacketEvent, Namespace: namespace, ID: id, Data: data}, nil
}

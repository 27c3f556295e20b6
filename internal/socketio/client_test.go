package socketio_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"paraderos-agent/internal/socketio"
	"paraderos-agent/internal/socketio/socketiotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialEmitAck(t *testing.T) {
	srv := socketiotest.NewServer()
	srv.PingFirst = true
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := socketio.Dial(ctx, srv.Endpoint("/gps"), socketio.Options{Auth: map[string]string{"token": "abc"}})
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "/gps", conn.Namespace())
	assert.Equal(t, "ns-test", conn.SID())

	ack, err := conn.EmitWithAck(ctx, "actualizar-gps", map[string]int{"id": 3})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(ack))

	events := srv.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "actualizar-gps", events[0].Name)
	assert.Equal(t, "/gps", events[0].Namespace)
	assert.JSONEq(t, `{"token":"abc"}`, string(events[0].Auth))
	assert.JSONEq(t, `{"id":3}`, string(events[0].Args[0]))
}

func TestDialToleratesMalformedConnectAck(t *testing.T) {
	srv := socketiotest.NewServer()
	srv.ConnectAck = json.RawMessage(`["ns-test"]`)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := socketio.Dial(ctx, srv.Endpoint("/gps"), socketio.Options{})
	require.NoError(t, err)
	defer conn.Close()

	assert.Empty(t, conn.SID())
	_, err = conn.EmitWithAck(ctx, "actualizar-gps", map[string]int{"id": 3})
	assert.NoError(t, err)
}

func TestDialConnectError(t *testing.T) {
	srv := socketiotest.NewServer()
	srv.Authorize = func(namespace string, auth json.RawMessage) string {
		return "invalid token"
	}
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := socketio.Dial(ctx, srv.Endpoint("/gps"), socketio.Options{Auth: map[string]string{"token": "bad"}})
	var ce *socketio.ConnectError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "invalid token", ce.Message)
}

func TestDialHonoursDeadline(t *testing.T) {
	srv := socketiotest.NewServer()
	srv.Mode = socketiotest.ModeSilentOpen
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := socketio.Dial(ctx, srv.Endpoint("/gps"), socketio.Options{})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := socketiotest.NewServer()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := socketio.Dial(ctx, srv.Endpoint("/gps"), socketio.Options{})
	require.NoError(t, err)

	assert.NoError(t, conn.Close())
	assert.NotPanics(t, func() { conn.Close() })
	assert.Eventually(t, func() bool { return srv.ClosedConnections() == 1 }, time.Second, 10*time.Millisecond)
}

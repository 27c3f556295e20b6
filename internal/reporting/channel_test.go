package reporting

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"paraderos-agent/internal/models"
	"paraderos-agent/internal/socketio/socketiotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage() models.PositionUpdateMessage {
	return models.PositionUpdateMessage{
		UserID:    7,
		Latitude:  -33.6117,
		Longitude: -70.5757,
		Timestamp: "2025-05-01T10:00:00.000Z",
	}
}

func TestReportAcked(t *testing.T) {
	srv := socketiotest.NewServer()
	defer srv.Close()

	ch := NewChannel(srv.Endpoint("/gps"))
	res := ch.Report(context.Background(), testMessage(), "token-abc")

	require.True(t, res.OK(), "unexpected result: %+v", res)
	assert.NoError(t, res.Err)
	assert.NotEmpty(t, res.TraceID)

	events := srv.Events()
	require.Len(t, events, 1, "exactly one event per report")
	assert.Equal(t, DefaultEvent, events[0].Name)
	assert.JSONEq(t, `{"token":"token-abc"}`, string(events[0].Auth))
	assert.JSONEq(t, `{"id":7,"lat":-33.6117,"lng":-70.5757,"timestamp":"2025-05-01T10:00:00.000Z"}`, string(events[0].Args[0]))

	assert.Eventually(t, func() bool { return srv.ClosedConnections() == 1 }, time.Second, 10*time.Millisecond,
		"connection must be closed after the report")
}

func TestReportUsesFreshConnectionEachTime(t *testing.T) {
	srv := socketiotest.NewServer()
	defer srv.Close()

	ch := NewChannel(srv.Endpoint("/gps"))
	for i := 0; i < 3; i++ {
		require.True(t, ch.Report(context.Background(), testMessage(), "t").OK())
	}

	assert.Equal(t, 3, srv.Connections())
	assert.Len(t, srv.Events(), 3)
	assert.Eventually(t, func() bool { return srv.ClosedConnections() == 3 }, time.Second, 10*time.Millisecond)
}

func TestReportRejectedWithoutCredentials(t *testing.T) {
	srv := socketiotest.NewServer()
	defer srv.Close()
	ch := NewChannel(srv.Endpoint("/gps"))

	res := ch.Report(context.Background(), testMessage(), "")
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrNoToken)

	msg := testMessage()
	msg.UserID = 0
	res = ch.Report(context.Background(), msg, "t")
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrNoUser)

	assert.Zero(t, srv.Connections())
}

func TestReportConnectErrorOnAuthRejection(t *testing.T) {
	srv := socketiotest.NewServer()
	srv.Authorize = func(namespace string, auth json.RawMessage) string { return "jwt expired" }
	defer srv.Close()

	res := NewChannel(srv.Endpoint("/gps")).WithReconnect(3).Report(context.Background(), testMessage(), "t")

	assert.Equal(t, OutcomeConnectError, res.Outcome)
	assert.Equal(t, 1, srv.Connections(), "auth rejections are not retried")
	assert.Empty(t, srv.Events())
}

func TestReportConnectErrorWhenNothingListens(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	res := NewChannel("http://"+addr+"/gps").Report(context.Background(), testMessage(), "t")
	assert.Equal(t, OutcomeConnectError, res.Outcome)
	assert.Error(t, res.Err)
}

func TestReportTimeoutWithoutAck(t *testing.T) {
	srv := socketiotest.NewServer()
	srv.Mode = socketiotest.ModeNoAck
	defer srv.Close()

	ch := NewChannel(srv.Endpoint("/gps"))
	ch.Timeout = 150 * time.Millisecond

	res := ch.Report(context.Background(), testMessage(), "t")
	assert.Equal(t, OutcomeTimeout, res.Outcome)
	assert.Len(t, srv.Events(), 1)
	assert.Eventually(t, func() bool { return srv.ClosedConnections() == 1 }, time.Second, 10*time.Millisecond)
}

func TestReportTimeoutBound(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the full report timeout")
	}

	for _, mode := range []socketiotest.Mode{socketiotest.ModeHangHTTP, socketiotest.ModeSilentOpen} {
		srv := socketiotest.NewServer()
		srv.Mode = mode

		start := time.Now()
		res := NewChannel(srv.Endpoint("/gps")).Report(context.Background(), testMessage(), "t")
		elapsed := time.Since(start)

		assert.Equal(t, OutcomeTimeout, res.Outcome, "mode %d", mode)
		assert.GreaterOrEqual(t, elapsed, DefaultTimeout-50*time.Millisecond)
		assert.Less(t, elapsed, 5*time.Second)
		srv.Close()
	}
}

func TestReportHonoursParentDeadline(t *testing.T) {
	srv := socketiotest.NewServer()
	srv.Mode = socketiotest.ModeSilentOpen
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := NewChannel(srv.Endpoint("/gps")).Report(ctx, testMessage(), "t")
	assert.Equal(t, OutcomeTimeout, res.Outcome)
	assert.Less(t, time.Since(start), time.Second)
}

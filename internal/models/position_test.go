package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPositionUpdateUsesCaptureTime(t *testing.T) {
	loc := time.FixedZone("CLT", -3*3600)
	sample := PositionSample{
		Latitude:   -33.6117,
		Longitude:  -70.5757,
		CapturedAt: time.Date(2025, 3, 1, 9, 30, 15, 250_000_000, loc),
	}

	msg := NewPositionUpdate(42, sample)

	assert.Equal(t, 42, msg.UserID)
	assert.Equal(t, "2025-03-01T12:30:15.250Z", msg.Timestamp)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":42,"lat":-33.6117,"lng":-70.5757,"timestamp":"2025-03-01T12:30:15.250Z"}`, string(raw))
}

func TestWorkOrderActive(t *testing.T) {
	var missing *WorkOrder
	assert.False(t, missing.Active())
	assert.True(t, (&WorkOrder{ID: 1}).Active())
	assert.False(t, (&WorkOrder{ID: 1, Completed: true}).Active())
}

func TestWorkOrderDecodesBackendFields(t *testing.T) {
	var wo WorkOrder
	err := json.Unmarshal([]byte(`{"id":7,"completada":false,"route_id":3,"stops_visited":[1,2]}`), &wo)
	require.NoError(t, err)

	assert.Equal(t, 7, wo.ID)
	require.NotNil(t, wo.RouteID)
	assert.Equal(t, 3, *wo.RouteID)
	assert.Equal(t, []int{1, 2}, wo.StopsVisited)
}

func TestSessionComplete(t *testing.T) {
	assert.False(t, Session{}.Complete())
	assert.False(t, Session{AccessToken: "t"}.Complete())
	assert.False(t, Session{UserID: 1}.Complete())
	assert.True(t, Session{AccessToken: "t", UserID: 1}.Complete())
}

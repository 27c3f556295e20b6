package models

import "time"

// ISOTimestampLayout matches the millisecond UTC format the backend parses
const ISOTimestampLayout = "2006-01-02T15:04:05.000Z"

// PositionSample is a single fix from the location source. Never persisted.
type PositionSample struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   *float64  `json:"accuracy,omitempty"` // meters
	CapturedAt time.Time `json:"captured_at"`
}

// PositionUpdateMessage is the payload of the GPS update socket event
type PositionUpdateMessage struct {
	UserID    int     `json:"id"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Timestamp string  `json:"timestamp"`
}

// NewPositionUpdate builds the wire message for a sample. The timestamp is the
// capture time so the backend can order reports that arrive out of order.
func NewPositionUpdate(userID int, sample PositionSample) PositionUpdateMessage {
	return PositionUpdateMessage{
		UserID:    userID,
		Latitude:  sample.Latitude,
		Longitude: sample.Longitude,
		Timestamp: sample.CapturedAt.UTC().Format(ISOTimestampLayout),
	}
}

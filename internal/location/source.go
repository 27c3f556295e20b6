// Package location wraps the device position primitives: permission
// prompts, continuous delivery of sample batches to a named task, and
// one-shot fixes.
package location

import (
	"context"
	"errors"
	"time"

	"paraderos-agent/internal/models"
)

var (
	ErrPermissionDenied = errors.New("location: permission denied")
	ErrNoFix            = errors.New("location: no position fix available")
)

// Accuracy is a hint for how precise a fix should be
type Accuracy string

const (
	AccuracyLow      Accuracy = "low"
	AccuracyBalanced Accuracy = "balanced"
	AccuracyHigh     Accuracy = "high"
)

type PermissionStatus string

const (
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
	PermissionUndetermined PermissionStatus = "undetermined"
)

// Notice is the persistent notification shown while updates run in background
type Notice struct {
	Title string `yaml:"title" json:"title"`
	Body  string `yaml:"body" json:"body"`
}

// UpdatesConfig controls continuous delivery
type UpdatesConfig struct {
	Accuracy            Accuracy      `yaml:"accuracy" json:"accuracy"`
	MinDistanceMeters   float64       `yaml:"min_distance_meters" json:"min_distance_meters"`
	MinInterval         time.Duration `yaml:"min_interval" json:"min_interval"`
	DeferredBatchWindow time.Duration `yaml:"deferred_batch_window" json:"deferred_batch_window"`
	ShowIndicator       bool          `yaml:"show_indicator" json:"show_indicator"`
	Notice              Notice        `yaml:"notice" json:"notice"`
}

// DefaultUpdatesConfig is the configuration used while a route is in progress
func DefaultUpdatesConfig() UpdatesConfig {
	return UpdatesConfig{
		Accuracy:            AccuracyHigh,
		MinDistanceMeters:   15,
		MinInterval:         10 * time.Second,
		DeferredBatchWindow: 5 * time.Second,
		ShowIndicator:       true,
		Notice: Notice{
			Title: "Route in progress",
			Body:  "Monitoring your location for the assigned order",
		},
	}
}

// Batch is the data of a location task invocation
type Batch struct {
	Samples []models.PositionSample
}

// Latest returns the most recently captured sample. Ties go to the later
// entry in the batch.
func (b Batch) Latest() (models.PositionSample, bool) {
	if len(b.Samples) == 0 {
		return models.PositionSample{}, false
	}
	latest := b.Samples[0]
	for _, s := range b.Samples[1:] {
		if !s.CapturedAt.Before(latest.CapturedAt) {
			latest = s
		}
	}
	return latest, true
}

// Source is the position contract the tracking tasks depend on
type Source interface {
	RequestForegroundPermission(ctx context.Context) (PermissionStatus, error)
	RequestBackgroundPermission(ctx context.Context) (PermissionStatus, error)
	StartContinuousUpdates(ctx context.Context, cfg UpdatesConfig) error
	IsRunning() bool
	StopContinuousUpdates(ctx context.Context) error
	CurrentPosition(ctx context.Context, accuracy Accuracy) (models.PositionSample, error)
}

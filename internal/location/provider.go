package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"paraderos-agent/internal/models"
)

// Provider yields the device's current fix
type Provider interface {
	Fix(ctx context.Context, accuracy Accuracy) (models.PositionSample, error)
}

// StaticProvider always reports the same coordinates, stamped with the
// current time
type StaticProvider struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
	Now       func() time.Time
}

func (p StaticProvider) Fix(ctx context.Context, accuracy Accuracy) (models.PositionSample, error) {
	if err := ctx.Err(); err != nil {
		return models.PositionSample{}, err
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return models.PositionSample{
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		Accuracy:   p.Accuracy,
		CapturedAt: now(),
	}, nil
}

// FixFileProvider reads the latest fix the platform location bridge wrote to
// disk as JSON: {"latitude":..,"longitude":..,"accuracy":..,"captured_at":..}
type FixFileProvider struct {
	Path string
	// MaxAge rejects fixes older than this; zero accepts any age
	MaxAge time.Duration
	Now    func() time.Time
}

func (p FixFileProvider) Fix(ctx context.Context, accuracy Accuracy) (models.PositionSample, error) {
	if err := ctx.Err(); err != nil {
		return models.PositionSample{}, err
	}

	raw, err := os.ReadFile(p.Path)
	if errors.Is(err, os.ErrNotExist) {
		return models.PositionSample{}, ErrNoFix
	}
	if err != nil {
		return models.PositionSample{}, fmt.Errorf("failed to read fix file: %w", err)
	}

	var sample models.PositionSample
	if err := json.Unmarshal(raw, &sample); err != nil {
		return models.PositionSample{}, fmt.Errorf("%w: invalid fix file: %v", ErrNoFix, err)
	}
	if sample.CapturedAt.IsZero() {
		return models.PositionSample{}, fmt.Errorf("%w: fix has no capture time", ErrNoFix)
	}

	if p.MaxAge > 0 {
		now := time.Now
		if p.Now != nil {
			now = p.Now
		}
		if age := now().Sub(sample.CapturedAt); age > p.MaxAge {
			return models.PositionSample{}, fmt.Errorf("%w: fix is %s old", ErrNoFix, age.Round(time.Second))
		}
	}

	return sample, nil
}

package location

import (
	"math"
	"sync"

	"paraderos-agent/internal/models"
)

// MaxAccuracy is the worst accuracy (meters) a sample may report and still be
// delivered
const MaxAccuracy = 100.0

// DeltaFilter drops samples that moved less than MinDistance from the last
// accepted sample
type DeltaFilter struct {
	MinDistance float64

	last  *models.PositionSample
	stats FilterStats
	mutex sync.Mutex
}

// FilterStats counts filter decisions
type FilterStats struct {
	Accepted          int64 `json:"accepted"`
	SkippedByAccuracy int64 `json:"skipped_by_accuracy"`
	SkippedByDelta    int64 `json:"skipped_by_delta"`
}

func NewDeltaFilter(minDistance float64) *DeltaFilter {
	return &DeltaFilter{MinDistance: minDistance}
}

// Accept reports whether s should be delivered and records it as the new
// reference point when it is
func (f *DeltaFilter) Accept(s models.PositionSample) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if s.Accuracy != nil && *s.Accuracy > MaxAccuracy {
		f.stats.SkippedByAccuracy++
		return false
	}

	if f.last != nil {
		d := haversineDistance(f.last.Latitude, f.last.Longitude, s.Latitude, s.Longitude)
		if d < f.MinDistance {
			f.stats.SkippedByDelta++
			return false
		}
	}

	f.last = &s
	f.stats.Accepted++
	return true
}

// Reset forgets the reference point
func (f *DeltaFilter) Reset() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.last = nil
}

func (f *DeltaFilter) Stats() FilterStats {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.stats
}

// haversineDistance calculates the distance between two GPS coordinates in meters
func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000.0

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

package dispatch

import (
	"sync"
	"time"

	geo "github.com/kellydunn/golang-geo"

	"github.com/omnitak/cot-go/pkg/cot"
)

// History defaults.
const (
	// DefaultMinDistance is the movement (meters) below which a new
	// position does not produce a new sample.
	DefaultMinDistance = 5.0

	// DefaultMinInterval is the elapsed time that forces a new sample
	// even without movement.
	DefaultMinInterval = 30 * time.Second

	// DefaultMaxSamples is the per-unit sample cap.
	DefaultMaxSamples = 200

	// DefaultMaxAge is the retention window for samples.
	DefaultMaxAge = 30 * time.Minute
)

// HistoryConfig tunes the position-history sampling policy.
// Zero values select the package defaults.
type HistoryConfig struct {
	MinDistance float64
	MinInterval time.Duration
	MaxSamples  int
	MaxAge      time.Duration
}

// Sample is one recorded position for a unit.
type Sample struct {
	Lat    float64
	Lon    float64
	HAE    float64
	Time   time.Time
	Speed  *float64
	Course *float64
}

// History is the per-unit position cache, keyed by event uid.
// Mutated only from the dispatch path; reads return copies so
// consumers on other goroutines never share the backing arrays.
type History struct {
	config HistoryConfig

	mu    sync.RWMutex
	units map[string][]Sample
}

// NewHistory creates an empty history with the given policy.
func NewHistory(config HistoryConfig) *History {
	if config.MinDistance <= 0 {
		config.MinDistance = DefaultMinDistance
	}
	if config.MinInterval <= 0 {
		config.MinInterval = DefaultMinInterval
	}
	if config.MaxSamples <= 0 {
		config.MaxSamples = DefaultMaxSamples
	}
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultMaxAge
	}
	return &History{
		config: config,
		units:  make(map[string][]Sample),
	}
}

// Record updates the history for the event's unit and reports whether
// a new sample was appended. A sample is appended for a new unit, or
// when the position moved more than MinDistance meters, or when more
// than MinInterval has elapsed since the last sample. Old samples are
// purged on every call.
func (h *History) Record(evt *cot.Event) bool {
	sample := Sample{
		Lat:    evt.Point.Lat,
		Lon:    evt.Point.Lon,
		HAE:    evt.Point.HAE,
		Time:   evt.Time,
		Speed:  evt.Detail.Speed,
		Course: evt.Detail.Course,
	}
	if sample.Time.IsZero() {
		sample.Time = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	samples, exists := h.units[evt.UID]

	appended := false
	if !exists || len(samples) == 0 {
		samples = []Sample{sample}
		appended = true
	} else {
		last := samples[len(samples)-1]
		moved := distanceMeters(last.Lat, last.Lon, sample.Lat, sample.Lon) > h.config.MinDistance
		elapsed := sample.Time.Sub(last.Time) > h.config.MinInterval
		if moved || elapsed {
			samples = append(samples, sample)
			appended = true
		}
	}

	h.units[evt.UID] = h.trim(samples)

	return appended
}

// trim applies the count cap and the age window.
func (h *History) trim(samples []Sample) []Sample {
	if len(samples) > h.config.MaxSamples {
		samples = samples[len(samples)-h.config.MaxSamples:]
	}

	cutoff := time.Now().Add(-h.config.MaxAge)
	firstFresh := 0
	for firstFresh < len(samples) && samples[firstFresh].Time.Before(cutoff) {
		firstFresh++
	}
	return samples[firstFresh:]
}

// Samples returns a copy of the unit's history, oldest first.
// Returns nil for an unknown unit.
func (h *History) Samples(uid string) []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	samples, ok := h.units[uid]
	if !ok {
		return nil
	}
	out := make([]Sample, len(samples))
	copy(out, samples)
	return out
}

// Last returns the most recent sample for a unit.
func (h *History) Last(uid string) (Sample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	samples, ok := h.units[uid]
	if !ok || len(samples) == 0 {
		return Sample{}, false
	}
	return samples[len(samples)-1], true
}

// Units returns the uids currently tracked.
func (h *History) Units() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	uids := make([]string, 0, len(h.units))
	for uid := range h.units {
		uids = append(uids, uid)
	}
	return uids
}

// Remove drops one unit's history.
func (h *History) Remove(uid string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.units, uid)
}

// Clear drops all history.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.units = make(map[string][]Sample)
}

// distanceMeters is the great-circle distance between two positions.
func distanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := geo.NewPoint(lat1, lon1)
	p2 := geo.NewPoint(lat2, lon2)
	return p1.GreatCircleDistance(p2) * 1000
}

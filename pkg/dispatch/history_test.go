package dispatch

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnitak/cot-go/pkg/cot"
)

func eventAt(uid string, lat, lon float64, at time.Time) *cot.Event {
	return &cot.Event{
		UID:   uid,
		Type:  "a-f-G-U-C",
		Time:  at,
		Point: cot.Point{Lat: lat, Lon: lon},
	}
}

func TestHistoryFirstSample(t *testing.T) {
	h := NewHistory(HistoryConfig{})

	appended := h.Record(eventAt("U-1", 48.1, 11.5, time.Now()))
	assert.True(t, appended)

	samples := h.Samples("U-1")
	require.Len(t, samples, 1)
	assert.InDelta(t, 48.1, samples[0].Lat, 1e-9)
}

func TestHistoryDistanceThreshold(t *testing.T) {
	h := NewHistory(HistoryConfig{MinDistance: 5, MinInterval: time.Hour})
	base := time.Now()

	h.Record(eventAt("U-1", 48.100000, 11.500000, base))

	// Roughly 1 m north of the first fix: below the threshold.
	appended := h.Record(eventAt("U-1", 48.100009, 11.500000, base.Add(time.Second)))
	assert.False(t, appended, "1m move must not produce a sample")
	assert.Len(t, h.Samples("U-1"), 1)

	// Roughly 110 m north: well above the threshold.
	appended = h.Record(eventAt("U-1", 48.101000, 11.500000, base.Add(2*time.Second)))
	assert.True(t, appended, "110m move must produce a sample")
	assert.Len(t, h.Samples("U-1"), 2)
}

func TestHistoryIntervalForcesSample(t *testing.T) {
	h := NewHistory(HistoryConfig{MinDistance: 5, MinInterval: 30 * time.Second})
	base := time.Now()

	h.Record(eventAt("U-1", 48.1, 11.5, base))

	// Stationary but long after the last sample.
	appended := h.Record(eventAt("U-1", 48.1, 11.5, base.Add(31*time.Second)))
	assert.True(t, appended, "elapsed interval must force a sample")
}

func TestHistoryMaxSamples(t *testing.T) {
	h := NewHistory(HistoryConfig{MinDistance: 1, MinInterval: time.Hour, MaxSamples: 5})
	base := time.Now()

	for i := 0; i < 10; i++ {
		// Each step moves ~110 m.
		h.Record(eventAt("U-1", 48.1+float64(i)*0.001, 11.5, base.Add(time.Duration(i)*time.Second)))
	}

	samples := h.Samples("U-1")
	require.Len(t, samples, 5)
	// Oldest entries are dropped, newest kept.
	assert.InDelta(t, 48.1+9*0.001, samples[4].Lat, 1e-9)
	assert.InDelta(t, 48.1+5*0.001, samples[0].Lat, 1e-9)
}

func TestHistoryMaxAge(t *testing.T) {
	h := NewHistory(HistoryConfig{MinDistance: 1, MinInterval: time.Second, MaxAge: time.Minute})

	h.Record(eventAt("U-1", 48.1, 11.5, time.Now().Add(-2*time.Minute)))
	h.Record(eventAt("U-1", 48.2, 11.5, time.Now()))

	samples := h.Samples("U-1")
	require.Len(t, samples, 1, "expired samples must be purged")
	assert.InDelta(t, 48.2, samples[0].Lat, 1e-9)
}

func TestHistoryTrack(t *testing.T) {
	h := NewHistory(HistoryConfig{})
	speed := 12.5
	course := 270.0

	evt := eventAt("U-1", 48.1, 11.5, time.Now())
	evt.Detail.Speed = &speed
	evt.Detail.Course = &course
	h.Record(evt)

	last, ok := h.Last("U-1")
	require.True(t, ok)
	require.NotNil(t, last.Speed)
	assert.Equal(t, 12.5, *last.Speed)
	require.NotNil(t, last.Course)
	assert.Equal(t, 270.0, *last.Course)
}

func TestHistoryUnitsRemoveClear(t *testing.T) {
	h := NewHistory(HistoryConfig{})
	for i := 0; i < 3; i++ {
		h.Record(eventAt(fmt.Sprintf("U-%d", i), 48.1, 11.5, time.Now()))
	}

	assert.Len(t, h.Units(), 3)

	h.Remove("U-1")
	assert.Len(t, h.Units(), 2)
	_, ok := h.Last("U-1")
	assert.False(t, ok)

	h.Clear()
	assert.Empty(t, h.Units())
}

func TestHistorySamplesAreCopies(t *testing.T) {
	h := NewHistory(HistoryConfig{})
	h.Record(eventAt("U-1", 48.1, 11.5, time.Now()))

	samples := h.Samples("U-1")
	samples[0].Lat = 0

	fresh := h.Samples("U-1")
	assert.InDelta(t, 48.1, fresh[0].Lat, 1e-9, "mutating a returned slice must not affect the cache")
}

func TestHistoryUnknownUnit(t *testing.T) {
	h := NewHistory(HistoryConfig{})
	assert.Nil(t, h.Samples("nobody"))
	_, ok := h.Last("nobody")
	assert.False(t, ok)
}

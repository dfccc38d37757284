package transport

import (
	"context"
	"sync"
	"time"

	"github.com/omnitak/cot-go/pkg/cot"
)

// DefaultBeaconInterval is the default self-report cadence. CoT
// situational-awareness feeds expect position refreshes on a
// seconds-to-minute scale.
const DefaultBeaconInterval = 60 * time.Second

// Beacon periodically emits a self-report event over a connection.
// The source callback produces the event (typically the unit's
// current position); returning nil skips that tick, so a client
// without a position fix stays silent.
type Beacon struct {
	interval time.Duration
	source   func() *cot.Event
	send     func(*cot.Event) error

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	sent     uint64
	failures uint64
	lastSent time.Time
}

// BeaconStats contains beacon counters.
type BeaconStats struct {
	Sent     uint64
	Failures uint64
	LastSent time.Time
}

// NewBeacon creates a beacon. interval <= 0 uses the default.
func NewBeacon(interval time.Duration, source func() *cot.Event, send func(*cot.Event) error) *Beacon {
	if interval <= 0 {
		interval = DefaultBeaconInterval
	}
	return &Beacon{
		interval: interval,
		source:   source,
		send:     send,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the beacon loop. A beacon sends immediately, then on
// every interval tick until stopped or the context ends.
func (b *Beacon) Start(ctx context.Context) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.stopCh = make(chan struct{})
	stopCh := b.stopCh
	b.mu.Unlock()

	go b.loop(ctx, stopCh)
}

// Stop stops the beacon. Safe to call repeatedly.
func (b *Beacon) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.running = false
	close(b.stopCh)
}

// IsRunning returns true while the beacon loop is active.
func (b *Beacon) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Stats returns current beacon counters.
func (b *Beacon) Stats() BeaconStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BeaconStats{
		Sent:     b.sent,
		Failures: b.failures,
		LastSent: b.lastSent,
	}
}

// loop is the beacon send loop.
func (b *Beacon) loop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.emit()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			b.emit()
		}
	}
}

// emit produces and sends one self-report.
func (b *Beacon) emit() {
	evt := b.source()
	if evt == nil {
		return
	}

	err := b.send(evt)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		// Send failures are expected while disconnected; the
		// connection state machine owns the recovery story.
		b.failures++
		return
	}
	b.sent++
	b.lastSent = time.Now()
}

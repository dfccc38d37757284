package dispatch

import (
	"sync"
	"time"

	"github.com/omnitak/cot-go/pkg/cot"
	"github.com/omnitak/cot-go/pkg/log"
)

// Chat is a decoded GeoChat message.
type Chat struct {
	// Event is the underlying CoT event.
	Event *cot.Event

	// Sender is the sending unit's callsign.
	Sender string

	// Room is the destination chat room ("All Chat Rooms" for
	// broadcast).
	Room string

	// Message is the chat body.
	Message string
}

// Sink receives classified events. Methods are invoked from the
// connection's dispatch path, in arrival order; implementations that
// hand work to other goroutines must do their own queueing.
type Sink interface {
	// OnEvent receives generic position/state events.
	OnEvent(evt *cot.Event)

	// OnChat receives GeoChat messages.
	OnChat(chat *Chat)

	// OnMarker receives waypoint/marker events.
	OnMarker(evt *cot.Event)
}

// Dispatcher classifies decoded events and fans them out to sinks,
// recording generic events into the position history.
type Dispatcher struct {
	history *History

	mu    sync.RWMutex
	sinks []Sink

	// Tracing support (optional)
	logger log.Logger
	connID string
}

// New creates a dispatcher with the given history policy.
func New(historyConfig HistoryConfig) *Dispatcher {
	return &Dispatcher{
		history: NewHistory(historyConfig),
	}
}

// AddSink registers a downstream consumer. Sinks added after dispatch
// has started only see subsequent events.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// History returns the position-history cache.
func (d *Dispatcher) History() *History {
	return d.history
}

// SetLogger configures tracing for this dispatcher.
// Pass nil to disable tracing.
func (d *Dispatcher) SetLogger(logger log.Logger, connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = logger
	d.connID = connID
}

// Dispatch routes one decoded event. Classification order: chat,
// then marker, then generic. Server pings are consumed without
// reaching any sink.
func (d *Dispatcher) Dispatch(evt *cot.Event) {
	d.trace(evt)

	if evt.IsPing() {
		return
	}

	d.mu.RLock()
	sinks := d.sinks
	d.mu.RUnlock()

	switch {
	case evt.IsChat():
		chat := newChat(evt)
		for _, s := range sinks {
			s.OnChat(chat)
		}

	case evt.IsWaypoint():
		for _, s := range sinks {
			s.OnMarker(evt)
		}

	default:
		d.history.Record(evt)
		for _, s := range sinks {
			s.OnEvent(evt)
		}
	}
}

// newChat extracts GeoChat addressing from the event detail. Senders
// that omit the __chat element still produce a usable message from
// contact callsign and remarks.
func newChat(evt *cot.Event) *Chat {
	chat := &Chat{
		Event:   evt,
		Sender:  evt.Detail.Callsign,
		Message: evt.Detail.Remarks,
	}
	if evt.Detail.Chat != nil {
		if evt.Detail.Chat.Sender != "" {
			chat.Sender = evt.Detail.Chat.Sender
		}
		chat.Room = evt.Detail.Chat.Room
	}
	return chat
}

// trace records the decoded event in the trace log.
func (d *Dispatcher) trace(evt *cot.Event) {
	d.mu.RLock()
	logger := d.logger
	connID := d.connID
	d.mu.RUnlock()

	if logger == nil {
		return
	}

	logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerDispatch,
		Category:     log.CategoryMessage,
		UID:          evt.UID,
		EventType:    evt.Type,
		Message: &log.MessageEvent{
			UID:      evt.UID,
			Type:     evt.Type,
			Callsign: evt.Detail.Callsign,
			Lat:      evt.Point.Lat,
			Lon:      evt.Point.Lon,
		},
	})
}

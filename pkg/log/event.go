package log

import (
	"time"
)

// Event represents a protocol trace event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the peer address (host:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// UID is the CoT unit identifier, when the event concerns a
	// decoded message.
	UID string `cbor:"7,keyasint,omitempty"`

	// EventType is the CoT taxonomy code, when known.
	EventType string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"9,keyasint,omitempty"`  // Transport layer
	Message     *MessageEvent     `cbor:"10,keyasint,omitempty"` // Decoded CoT event
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"` // Connection state
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the socket/framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerCot is the CoT codec layer (decoded XML events).
	LayerCot Layer = 1
	// LayerDispatch is the event routing layer.
	LayerDispatch Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerCot:
		return "COT"
	case LayerDispatch:
		return "DISPATCH"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a wire or decoded message.
	CategoryMessage Category = 0
	// CategoryState indicates a connection state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures one raw wire message at the transport layer.
type FrameEvent struct {
	// Size is the full message size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the message content, possibly truncated.
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates Data was cut to the trace size limit.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent summarizes one decoded CoT event.
type MessageEvent struct {
	// UID is the unit identifier.
	UID string `cbor:"1,keyasint"`

	// Type is the CoT taxonomy code.
	Type string `cbor:"2,keyasint"`

	// Callsign is the reported unit callsign.
	Callsign string `cbor:"3,keyasint,omitempty"`

	// Lat and Lon are the event position in decimal degrees.
	Lat float64 `cbor:"4,keyasint,omitempty"`
	Lon float64 `cbor:"5,keyasint,omitempty"`
}

// StateChangeEvent captures a connection state transition.
type StateChangeEvent struct {
	// OldState is the state before the transition.
	OldState string `cbor:"1,keyasint"`

	// NewState is the state after the transition.
	NewState string `cbor:"2,keyasint"`

	// Reason explains failure transitions, empty otherwise.
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures an error at any layer.
type ErrorEventData struct {
	// Code is a short machine-readable error class
	// (e.g. "decode", "overflow", "read").
	Code string `cbor:"1,keyasint"`

	// Message is the human-readable error text.
	Message string `cbor:"2,keyasint"`
}

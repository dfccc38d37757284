package cot

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Well-known type taxonomy prefixes.
const (
	// TypeChat is the GeoChat message type.
	TypeChat = "b-t-f"

	// TypeWaypoint is the waypoint marker type.
	TypeWaypoint = "b-m-p-w"

	// TypeEmergency is the prefix shared by emergency alert types.
	TypeEmergency = "b-a-o-"

	// TypeEmergencyCancel cancels a previously raised emergency.
	TypeEmergencyCancel = "b-a-o-can"

	// TypePing is the server ping type.
	TypePing = "t-x-c-t"

	// TypeFriendlyGround is the standard self-report type for a
	// ground unit under friendly control.
	TypeFriendlyGround = "a-f-G-U-C"
)

// ChatRoomAll is the broadcast chat room every TAK client joins.
const ChatRoomAll = "All Chat Rooms"

// Default values for optional point attributes.
const (
	// DefaultCE is the circular (horizontal) error in meters when the
	// sender did not report one.
	DefaultCE = 10.0

	// DefaultLE is the linear (vertical) error in meters when the
	// sender did not report one.
	DefaultLE = 10.0

	// DefaultStaleAfter is how long a generated event stays fresh.
	DefaultStaleAfter = 2 * time.Minute
)

// TimeFormat is the timestamp layout used on the wire.
// CoT timestamps are UTC with millisecond precision.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// Point is a geographic position with error estimates.
// Latitude and longitude are decimal degrees, hae is meters above the
// WGS-84 ellipsoid, ce/le are horizontal/vertical error in meters.
type Point struct {
	Lat float64
	Lon float64
	HAE float64
	CE  float64
	LE  float64
}

// ChatDetail carries GeoChat addressing extracted from a chat event.
type ChatDetail struct {
	// Room is the chat room name ("All Chat Rooms" for broadcast).
	Room string

	// RoomID is the room identifier, when present.
	RoomID string

	// Sender is the sending unit's callsign.
	Sender string
}

// Detail holds the optional sub-elements of an event.
// Absent values are zero strings or nil pointers.
type Detail struct {
	// Callsign is the human-readable unit name. Defaults to the
	// event UID when the sender omits a contact element.
	Callsign string

	// Endpoint is the contact network endpoint, when advertised.
	Endpoint string

	// Team is the group/team color name (empty when not reported).
	Team string

	// Role is the unit role within its team.
	Role string

	// Speed is ground speed in meters/second, nil when not reported.
	Speed *float64

	// Course is degrees from true north (0-360), nil when not reported.
	Course *float64

	// Battery is the device battery percentage, nil when not reported.
	Battery *int

	// Remarks is free text (chat bodies, marker annotations).
	Remarks string

	// Device identification from the takv element.
	Device   string
	Platform string
	OS       string
	Version  string

	// IconPath is the vendor icon set path for marker events.
	IconPath string

	// Chat is GeoChat addressing, set only on chat events.
	Chat *ChatDetail
}

// Event is one decoded CoT event. Events are immutable values: the
// decoder produces one per wire message and ownership passes to the
// dispatcher and its subscribers.
type Event struct {
	// UID is the stable unit or message identifier.
	UID string

	// Type is the opaque dotted/dashed taxonomy code.
	Type string

	// How describes position derivation (e.g. "m-g" machine-GPS).
	How string

	// Time is when the event was generated.
	Time time.Time

	// Start is when the event becomes valid.
	Start time.Time

	// Stale is when a receiver should consider the event outdated.
	Stale time.Time

	// Point is the event position.
	Point Point

	// Detail holds the optional sub-elements.
	Detail Detail
}

// IsChat reports whether the event is a GeoChat message.
func (e *Event) IsChat() bool {
	return strings.HasPrefix(e.Type, TypeChat)
}

// IsWaypoint reports whether the event is a waypoint/marker. Vendor
// marker events do not always carry the b-m-p-w type, but they do
// carry an icon detail element.
func (e *Event) IsWaypoint() bool {
	return strings.HasPrefix(e.Type, TypeWaypoint) || e.Detail.IconPath != ""
}

// IsEmergency reports whether the event is an emergency alert or
// cancellation.
func (e *Event) IsEmergency() bool {
	return strings.HasPrefix(e.Type, TypeEmergency)
}

// IsEmergencyCancel reports whether the event cancels an emergency.
func (e *Event) IsEmergencyCancel() bool {
	return e.Type == TypeEmergencyCancel
}

// IsFriendly reports whether the event describes a friendly unit.
func (e *Event) IsFriendly() bool {
	return strings.HasPrefix(e.Type, "a-f-")
}

// IsPing reports whether the event is a server ping.
func (e *Event) IsPing() bool {
	return strings.HasPrefix(e.Type, TypePing)
}

// IsStale reports whether the event's stale time has passed.
func (e *Event) IsStale(now time.Time) bool {
	return !e.Stale.IsZero() && now.After(e.Stale)
}

// NewPositionEvent builds a self-report position event in the standard
// friendly-ground taxonomy. Time/start are now, stale is
// DefaultStaleAfter in the future.
func NewPositionEvent(uid, callsign string, lat, lon, hae float64) *Event {
	now := time.Now().UTC()
	return &Event{
		UID:   uid,
		Type:  TypeFriendlyGround,
		How:   "m-g",
		Time:  now,
		Start: now,
		Stale: now.Add(DefaultStaleAfter),
		Point: Point{
			Lat: lat,
			Lon: lon,
			HAE: hae,
			CE:  DefaultCE,
			LE:  DefaultLE,
		},
		Detail: Detail{
			Callsign: callsign,
		},
	}
}

// NewChatEvent builds a GeoChat message from the given sender to a
// room ("All Chat Rooms" for broadcast). The event UID follows the
// GeoChat.<sender>.<room>.<message-id> convention so receivers can
// thread messages.
func NewChatEvent(senderUID, senderCallsign, room, message string) *Event {
	now := time.Now().UTC()
	msgID := uuid.New().String()
	return &Event{
		UID:   fmt.Sprintf("GeoChat.%s.%s.%s", senderUID, room, msgID),
		Type:  TypeChat,
		How:   "h-g-i-g-o",
		Time:  now,
		Start: now,
		Stale: now.Add(DefaultStaleAfter),
		Point: Point{
			CE: DefaultCE,
			LE: DefaultLE,
		},
		Detail: Detail{
			Callsign: senderCallsign,
			Remarks:  message,
			Chat: &ChatDetail{
				Room:   room,
				RoomID: room,
				Sender: senderCallsign,
			},
		},
	}
}

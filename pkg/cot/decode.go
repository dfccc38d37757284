package cot

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Decode errors.
var (
	// ErrNotEvent indicates the message's top-level element is not <event>.
	ErrNotEvent = errors.New("not a CoT event element")

	// ErrMissingField indicates a required attribute is absent.
	ErrMissingField = errors.New("missing required field")

	// ErrBadCoordinate indicates lat or lon did not parse as a float.
	ErrBadCoordinate = errors.New("invalid coordinate")
)

// Permissive wire-side view of an event. All attributes are kept as
// strings so absent and malformed values can be told apart; unknown
// elements and attributes are ignored by encoding/xml.
type xmlEvent struct {
	XMLName xml.Name  `xml:"event"`
	UID     string    `xml:"uid,attr"`
	Type    string    `xml:"type,attr"`
	How     string    `xml:"how,attr"`
	Time    string    `xml:"time,attr"`
	Start   string    `xml:"start,attr"`
	Stale   string    `xml:"stale,attr"`
	Point   *xmlPoint `xml:"point"`
	Detail  xmlDetail `xml:"detail"`
}

type xmlPoint struct {
	Lat string `xml:"lat,attr"`
	Lon string `xml:"lon,attr"`
	HAE string `xml:"hae,attr"`
	CE  string `xml:"ce,attr"`
	LE  string `xml:"le,attr"`
}

type xmlDetail struct {
	Contact  *xmlContact  `xml:"contact"`
	Group    *xmlGroup    `xml:"__group"`
	Status   *xmlStatus   `xml:"status"`
	Track    *xmlTrack    `xml:"track"`
	Takv     *xmlTakv     `xml:"takv"`
	Remarks  *xmlRemarks  `xml:"remarks"`
	UserIcon *xmlUserIcon `xml:"usericon"`
	Chat     *xmlChat     `xml:"__chat"`
}

type xmlContact struct {
	Callsign string `xml:"callsign,attr"`
	Endpoint string `xml:"endpoint,attr,omitempty"`
}

type xmlGroup struct {
	Name string `xml:"name,attr"`
	Role string `xml:"role,attr"`
}

type xmlStatus struct {
	Battery string `xml:"battery,attr"`
}

type xmlTrack struct {
	Speed  string `xml:"speed,attr,omitempty"`
	Course string `xml:"course,attr,omitempty"`
}

type xmlTakv struct {
	Device   string `xml:"device,attr,omitempty"`
	Platform string `xml:"platform,attr,omitempty"`
	OS       string `xml:"os,attr,omitempty"`
	Version  string `xml:"version,attr,omitempty"`
}

// Remarks bodies arrive both as plain text and as CDATA; chardata
// covers both.
type xmlRemarks struct {
	To   string `xml:"to,attr,omitempty"`
	Text string `xml:",chardata"`
}

type xmlUserIcon struct {
	IconSetPath string `xml:"iconsetpath,attr"`
}

type xmlChat struct {
	ID             string `xml:"id,attr,omitempty"`
	Chatroom       string `xml:"chatroom,attr,omitempty"`
	SenderCallsign string `xml:"senderCallsign,attr,omitempty"`
}

// Decode parses one complete wire message into an Event.
//
// Only uid, type, point.lat and point.lon are required; a message
// missing any of them fails to decode and should be dropped by the
// caller without affecting other messages. All other fields fall back
// to documented defaults (hae=0, ce=10, le=10, callsign=uid).
func Decode(data []byte) (*Event, error) {
	var raw xmlEvent
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed event XML: %w", err)
	}
	if raw.XMLName.Local != "event" {
		return nil, ErrNotEvent
	}

	if strings.TrimSpace(raw.UID) == "" {
		return nil, fmt.Errorf("%w: uid", ErrMissingField)
	}
	if strings.TrimSpace(raw.Type) == "" {
		return nil, fmt.Errorf("%w: type", ErrMissingField)
	}
	if raw.Point == nil {
		return nil, fmt.Errorf("%w: point", ErrMissingField)
	}

	lat, err := parseCoordinate(raw.Point.Lat, "lat")
	if err != nil {
		return nil, err
	}
	lon, err := parseCoordinate(raw.Point.Lon, "lon")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	evt := &Event{
		UID:   raw.UID,
		Type:  raw.Type,
		How:   raw.How,
		Time:  parseTime(raw.Time, now),
		Start: parseTime(raw.Start, now),
		Stale: parseTime(raw.Stale, now.Add(DefaultStaleAfter)),
		Point: Point{
			Lat: lat,
			Lon: lon,
			HAE: parseFloatDefault(raw.Point.HAE, 0),
			CE:  parseFloatDefault(raw.Point.CE, DefaultCE),
			LE:  parseFloatDefault(raw.Point.LE, DefaultLE),
		},
	}

	evt.Detail = decodeDetail(raw.Detail, evt.UID)

	return evt, nil
}

// decodeDetail converts the wire detail into the event detail,
// applying defaults for absent elements.
func decodeDetail(d xmlDetail, uid string) Detail {
	detail := Detail{
		Callsign: uid,
	}

	if d.Contact != nil {
		if d.Contact.Callsign != "" {
			detail.Callsign = d.Contact.Callsign
		}
		detail.Endpoint = d.Contact.Endpoint
	}
	if d.Group != nil {
		detail.Team = d.Group.Name
		detail.Role = d.Group.Role
	}
	if d.Status != nil {
		if battery, err := strconv.Atoi(strings.TrimSpace(d.Status.Battery)); err == nil {
			detail.Battery = &battery
		}
	}
	if d.Track != nil {
		if speed, err := strconv.ParseFloat(strings.TrimSpace(d.Track.Speed), 64); err == nil {
			detail.Speed = &speed
		}
		if course, err := strconv.ParseFloat(strings.TrimSpace(d.Track.Course), 64); err == nil {
			detail.Course = &course
		}
	}
	if d.Takv != nil {
		detail.Device = d.Takv.Device
		detail.Platform = d.Takv.Platform
		detail.OS = d.Takv.OS
		detail.Version = d.Takv.Version
	}
	if d.Remarks != nil {
		detail.Remarks = strings.TrimSpace(d.Remarks.Text)
	}
	if d.UserIcon != nil {
		detail.IconPath = d.UserIcon.IconSetPath
	}
	if d.Chat != nil {
		detail.Chat = &ChatDetail{
			Room:   d.Chat.Chatroom,
			RoomID: d.Chat.ID,
			Sender: d.Chat.SenderCallsign,
		}
	}

	return detail
}

// parseCoordinate parses a required lat/lon attribute.
func parseCoordinate(s, name string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: point.%s", ErrMissingField, name)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: point.%s=%q", ErrBadCoordinate, name, s)
	}
	return v, nil
}

// parseFloatDefault parses an optional float attribute, falling back
// to def when absent or malformed.
func parseFloatDefault(s string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return def
	}
	return v
}

// parseTime parses a CoT timestamp, falling back to def when absent
// or malformed. Senders vary in fractional-second precision; RFC 3339
// accepts all observed forms.
func parseTime(s string, def time.Time) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return t.UTC()
}

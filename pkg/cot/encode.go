package cot

import (
	"encoding/xml"
	"fmt"
	"strconv"
)

// Wire-side output view. Optional detail children are pointers so
// encoding/xml omits the ones that are absent.
type encEvent struct {
	XMLName xml.Name  `xml:"event"`
	Version string    `xml:"version,attr"`
	UID     string    `xml:"uid,attr"`
	Type    string    `xml:"type,attr"`
	How     string    `xml:"how,attr,omitempty"`
	Time    string    `xml:"time,attr"`
	Start   string    `xml:"start,attr"`
	Stale   string    `xml:"stale,attr"`
	Point   encPoint  `xml:"point"`
	Detail  *encDetail `xml:"detail,omitempty"`
}

type encPoint struct {
	Lat string `xml:"lat,attr"`
	Lon string `xml:"lon,attr"`
	HAE string `xml:"hae,attr"`
	CE  string `xml:"ce,attr"`
	LE  string `xml:"le,attr"`
}

type encDetail struct {
	Contact  *xmlContact  `xml:"contact,omitempty"`
	Group    *xmlGroup    `xml:"__group,omitempty"`
	Status   *xmlStatus   `xml:"status,omitempty"`
	Track    *xmlTrack    `xml:"track,omitempty"`
	Takv     *xmlTakv     `xml:"takv,omitempty"`
	Chat     *xmlChat     `xml:"__chat,omitempty"`
	Remarks  *xmlRemarks  `xml:"remarks,omitempty"`
	UserIcon *xmlUserIcon `xml:"usericon,omitempty"`
}

// Marshal serializes the event to its XML wire form, without a
// trailing delimiter (the transport appends one on send).
func (e *Event) Marshal() ([]byte, error) {
	if e.UID == "" {
		return nil, fmt.Errorf("%w: uid", ErrMissingField)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("%w: type", ErrMissingField)
	}

	out := encEvent{
		Version: "2.0",
		UID:     e.UID,
		Type:    e.Type,
		How:     e.How,
		Time:    e.Time.UTC().Format(TimeFormat),
		Start:   e.Start.UTC().Format(TimeFormat),
		Stale:   e.Stale.UTC().Format(TimeFormat),
		Point: encPoint{
			Lat: formatFloat(e.Point.Lat),
			Lon: formatFloat(e.Point.Lon),
			HAE: formatFloat(e.Point.HAE),
			CE:  formatFloat(e.Point.CE),
			LE:  formatFloat(e.Point.LE),
		},
		Detail: encodeDetail(e),
	}

	data, err := xml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return data, nil
}

// encodeDetail builds the detail element, or nil when the event
// carries no detail at all.
func encodeDetail(e *Event) *encDetail {
	d := &encDetail{}
	empty := true

	if e.Detail.Callsign != "" || e.Detail.Endpoint != "" {
		d.Contact = &xmlContact{
			Callsign: e.Detail.Callsign,
			Endpoint: e.Detail.Endpoint,
		}
		empty = false
	}
	if e.Detail.Team != "" || e.Detail.Role != "" {
		d.Group = &xmlGroup{
			Name: e.Detail.Team,
			Role: e.Detail.Role,
		}
		empty = false
	}
	if e.Detail.Battery != nil {
		d.Status = &xmlStatus{
			Battery: strconv.Itoa(*e.Detail.Battery),
		}
		empty = false
	}
	if e.Detail.Speed != nil || e.Detail.Course != nil {
		track := &xmlTrack{}
		if e.Detail.Speed != nil {
			track.Speed = formatFloat(*e.Detail.Speed)
		}
		if e.Detail.Course != nil {
			track.Course = formatFloat(*e.Detail.Course)
		}
		d.Track = track
		empty = false
	}
	if e.Detail.Device != "" || e.Detail.Platform != "" {
		d.Takv = &xmlTakv{
			Device:   e.Detail.Device,
			Platform: e.Detail.Platform,
			OS:       e.Detail.OS,
			Version:  e.Detail.Version,
		}
		empty = false
	}
	if e.Detail.Chat != nil {
		d.Chat = &xmlChat{
			ID:             e.Detail.Chat.RoomID,
			Chatroom:       e.Detail.Chat.Room,
			SenderCallsign: e.Detail.Chat.Sender,
		}
		empty = false
	}
	if e.Detail.Remarks != "" {
		d.Remarks = &xmlRemarks{Text: e.Detail.Remarks}
		empty = false
	}
	if e.Detail.IconPath != "" {
		d.UserIcon = &xmlUserIcon{IconSetPath: e.Detail.IconPath}
		empty = false
	}

	if empty {
		return nil
	}
	return d
}

// formatFloat renders a float attribute without trailing zeros so
// coordinates survive an encode/decode round trip bit-exactly.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

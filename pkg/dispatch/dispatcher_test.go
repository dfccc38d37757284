package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnitak/cot-go/pkg/cot"
)

type captureSink struct {
	events  []*cot.Event
	chats   []*Chat
	markers []*cot.Event
}

func (s *captureSink) OnEvent(evt *cot.Event)  { s.events = append(s.events, evt) }
func (s *captureSink) OnChat(chat *Chat)       { s.chats = append(s.chats, chat) }
func (s *captureSink) OnMarker(evt *cot.Event) { s.markers = append(s.markers, evt) }

func positionEvent(uid string, lat, lon float64) *cot.Event {
	evt := cot.NewPositionEvent(uid, uid, lat, lon, 0)
	return evt
}

func TestDispatchGenericEvent(t *testing.T) {
	d := New(HistoryConfig{})
	sink := &captureSink{}
	d.AddSink(sink)

	evt := positionEvent("U-1", 48.1, 11.5)
	d.Dispatch(evt)

	require.Len(t, sink.events, 1)
	assert.Empty(t, sink.chats)
	assert.Empty(t, sink.markers)

	// Generic events feed the history.
	last, ok := d.History().Last("U-1")
	require.True(t, ok)
	assert.InDelta(t, 48.1, last.Lat, 1e-9)
}

func TestDispatchChat(t *testing.T) {
	d := New(HistoryConfig{})
	sink := &captureSink{}
	d.AddSink(sink)

	evt := cot.NewChatEvent("U-2", "HAWK", cot.ChatRoomAll, "check")
	d.Dispatch(evt)

	require.Len(t, sink.chats, 1)
	chat := sink.chats[0]
	assert.Equal(t, "HAWK", chat.Sender)
	assert.Equal(t, cot.ChatRoomAll, chat.Room)
	assert.Equal(t, "check", chat.Message)
	assert.Same(t, evt, chat.Event)

	assert.Empty(t, sink.events, "chat must not reach the generic path")
	_, ok := d.History().Last(evt.UID)
	assert.False(t, ok, "chat must not enter position history")
}

func TestDispatchChatWithoutChatDetail(t *testing.T) {
	d := New(HistoryConfig{})
	sink := &captureSink{}
	d.AddSink(sink)

	evt := &cot.Event{
		UID:  "GeoChat.U-3.x.1",
		Type: cot.TypeChat,
		Detail: cot.Detail{
			Callsign: "VIPER",
			Remarks:  "fallback body",
		},
	}
	d.Dispatch(evt)

	require.Len(t, sink.chats, 1)
	assert.Equal(t, "VIPER", sink.chats[0].Sender)
	assert.Equal(t, "fallback body", sink.chats[0].Message)
}

func TestDispatchMarker(t *testing.T) {
	d := New(HistoryConfig{})
	sink := &captureSink{}
	d.AddSink(sink)

	evt := &cot.Event{
		UID:   "WP-1",
		Type:  cot.TypeWaypoint,
		Point: cot.Point{Lat: 10, Lon: 20},
	}
	d.Dispatch(evt)

	require.Len(t, sink.markers, 1)
	assert.Empty(t, sink.events)
}

func TestDispatchMarkerByIcon(t *testing.T) {
	d := New(HistoryConfig{})
	sink := &captureSink{}
	d.AddSink(sink)

	evt := &cot.Event{
		UID:    "WP-2",
		Type:   "b-m-p",
		Detail: cot.Detail{IconPath: "COT_MAPPING_2525B/a-u/a-u-G.png"},
	}
	d.Dispatch(evt)

	require.Len(t, sink.markers, 1, "icon detail marks the event as a marker")
}

func TestDispatchConsumesPings(t *testing.T) {
	d := New(HistoryConfig{})
	sink := &captureSink{}
	d.AddSink(sink)

	d.Dispatch(&cot.Event{UID: "ping-1", Type: cot.TypePing})

	assert.Empty(t, sink.events)
	assert.Empty(t, sink.chats)
	assert.Empty(t, sink.markers)
}

func TestDispatchMultipleSinks(t *testing.T) {
	d := New(HistoryConfig{})
	a, b := &captureSink{}, &captureSink{}
	d.AddSink(a)
	d.AddSink(b)

	d.Dispatch(positionEvent("U-4", 1, 2))

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestDispatchEmergencyReachesGenericSink(t *testing.T) {
	d := New(HistoryConfig{})
	sink := &captureSink{}
	d.AddSink(sink)

	evt := &cot.Event{
		UID:   "U-5",
		Type:  "b-a-o-tbl",
		Point: cot.Point{Lat: 1, Lon: 2},
		Stale: time.Now().Add(time.Minute),
	}
	d.Dispatch(evt)

	require.Len(t, sink.events, 1)
	assert.True(t, sink.events[0].IsEmergency())
}

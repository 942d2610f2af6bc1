package macro

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/nikosalonen/macrod/test/helpers/goroutinechecker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSerializedShapes(t *testing.T) {
	defer goroutinechecker.New(t)()

	tcs := []struct {
		Name  string
		Event Event
		JSON  string
	}{
		{
			Name:  "Mouse Move",
			Event: Event{Type: MouseMove, Time: 0.5, X: 100, Y: 200},
			JSON:  `{"type":"mouse_move","time":0.5,"x":100,"y":200}`,
		},
		{
			Name: "Mouse Click",
			Event: Event{
				Type: MouseClick, Time: 1.25, X: 10, Y: 20,
				Button: ButtonLeft, Pressed: true,
			},
			JSON: `{"type":"mouse_click","time":1.25,"x":10,"y":20,"button":"left","pressed":true}`,
		},
		{
			Name:  "Mouse Scroll",
			Event: Event{Type: MouseScroll, Time: 2, X: 5, Y: 6, DX: 0, DY: -3},
			JSON:  `{"type":"mouse_scroll","time":2,"x":5,"y":6,"dx":0,"dy":-3}`,
		},
		{
			Name:  "Key Press",
			Event: Event{Type: KeyPress, Time: 3.5, Key: "a"},
			JSON:  `{"type":"key_press","time":3.5,"key":"a"}`,
		},
		{
			Name:  "Key Release",
			Event: Event{Type: KeyRelease, Time: 3.6, Key: "shift"},
			JSON:  `{"type":"key_release","time":3.6,"key":"shift"}`,
		},
		{
			Name:  "Stop Request",
			Event: Event{Type: StopRequest},
			JSON:  `{"type":"stop_request"}`,
		},
		{
			Name:  "Error",
			Event: Event{Type: ErrorEvent, Message: "boom"},
			JSON:  `{"type":"error","message":"boom"}`,
		},
		{
			Name:  "Child Exit",
			Event: Event{Type: ChildExit},
			JSON:  `{"type":"child_exit"}`,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t2 *testing.T) {
			data, err := json.Marshal(tc.Event)
			require.NoError(t2, err, "unable to serialize event")
			assert.JSONEq(t2, tc.JSON, string(data), "wrong serialized shape")

			var back Event
			require.NoError(t2, json.Unmarshal(data, &back), "unable to parse event back")
			assert.Equal(t2, tc.Event, back, "event changed across a round trip")
		})
	}
}

func TestEventSerializeUnknownType(t *testing.T) {
	defer goroutinechecker.New(t)()

	_, err := json.Marshal(Event{Type: "telepathy"})
	assert.Error(t, err, "unknown event type must not serialize")
}

func TestEventParseRequiresType(t *testing.T) {
	defer goroutinechecker.New(t)()

	var e Event
	err := json.Unmarshal([]byte(`{"time":1,"x":2,"y":3}`), &e)
	assert.Error(t, err, "record without a type must be rejected")
}

func TestEventParseExtraFieldsIgnored(t *testing.T) {
	defer goroutinechecker.New(t)()

	var e Event
	err := json.Unmarshal([]byte(`{"type":"key_press","time":1,"key":"a","vendor":"other-tool"}`), &e)
	require.NoError(t, err)
	assert.Equal(t, Event{Type: KeyPress, Time: 1, Key: "a"}, e)
}

func TestEventValidate(t *testing.T) {
	defer goroutinechecker.New(t)()

	tcs := []struct {
		Name  string
		Event Event
		OK    bool
	}{
		{"Valid Move", Event{Type: MouseMove, Time: 0}, true},
		{"Valid Click", Event{Type: MouseClick, Time: 1, Button: ButtonMiddle}, true},
		{"Valid Scroll", Event{Type: MouseScroll, Time: 1, DY: 1}, true},
		{"Valid Key", Event{Type: KeyPress, Time: 1, Key: "a"}, true},
		{"Control Always Valid", Event{Type: StopRequest}, true},
		{"Unknown Type", Event{Type: "warp", Time: 1}, false},
		{"Unknown Button", Event{Type: MouseClick, Time: 1, Button: "side"}, false},
		{"Missing Key", Event{Type: KeyRelease, Time: 1}, false},
		{"Negative Time", Event{Type: MouseMove, Time: -0.5}, false},
		{"NaN Time", Event{Type: MouseMove, Time: math.NaN()}, false},
		{"Infinite Time", Event{Type: MouseMove, Time: math.Inf(1)}, false},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t2 *testing.T) {
			err := tc.Event.Validate()
			if tc.OK {
				assert.NoError(t2, err, "event should be playable")
			} else {
				assert.Error(t2, err, "event should be rejected")
			}
		})
	}
}

func TestIsControl(t *testing.T) {
	defer goroutinechecker.New(t)()

	assert.True(t, Event{Type: StopRequest}.IsControl())
	assert.True(t, Event{Type: ErrorEvent}.IsControl())
	assert.True(t, Event{Type: ChildExit}.IsControl())
	assert.False(t, Event{Type: MouseMove}.IsControl())
	assert.False(t, Event{Type: KeyPress}.IsControl())
}

func TestStripControl(t *testing.T) {
	defer goroutinechecker.New(t)()

	events := []Event{
		{Type: MouseMove, Time: 0, X: 1, Y: 2},
		{Type: StopRequest},
		{Type: KeyPress, Time: 0.1, Key: "a"},
		{Type: ErrorEvent, Message: "x"},
		{Type: ChildExit},
	}

	data := StripControl(events)
	require.Len(t, data, 2)
	assert.Equal(t, MouseMove, data[0].Type)
	assert.Equal(t, KeyPress, data[1].Type)
	assert.Len(t, events, 5, "input slice must not be modified")
}

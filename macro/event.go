package macro

import (
	"encoding/json"
	"math"

	"github.com/pkg/errors"
)

// Type identifies what kind of input an Event describes.
type Type string

// Input event types.
const (
	MouseMove   Type = "mouse_move"
	MouseClick  Type = "mouse_click"
	MouseScroll Type = "mouse_scroll"
	KeyPress    Type = "key_press"
	KeyRelease  Type = "key_release"
)

// Control event types. These flow through the capture transport to signal
// state changes and are never persisted or replayed.
const (
	StopRequest Type = "stop_request"
	ErrorEvent  Type = "error"
	ChildExit   Type = "child_exit"
)

// Button identifies a mouse button.
type Button string

// Mouse buttons.
const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// Event is a single captured input event. Which fields are meaningful
// depends on Type; serialization only carries the fields the type uses.
//
// Time is in seconds since the start of the capture session.
type Event struct {
	Type    Type
	Time    float64
	X       float64
	Y       float64
	DX      int
	DY      int
	Button  Button
	Pressed bool
	Key     string
	Message string
}

// IsControl reports whether the event is a transport control record rather
// than captured input.
func (e Event) IsControl() bool {
	switch e.Type {
	case StopRequest, ErrorEvent, ChildExit:
		return true
	}
	return false
}

// Validate checks that the event carries everything its type requires for
// playback. Control records are always valid; they are filtered elsewhere.
func (e Event) Validate() error {
	if e.IsControl() {
		return nil
	}
	if math.IsNaN(e.Time) || math.IsInf(e.Time, 0) || e.Time < 0 {
		return errors.Errorf("event has unusable time %v", e.Time)
	}
	switch e.Type {
	case MouseMove, MouseScroll:
	case MouseClick:
		switch e.Button {
		case ButtonLeft, ButtonRight, ButtonMiddle:
		default:
			return errors.Errorf("unknown mouse button %q", e.Button)
		}
	case KeyPress, KeyRelease:
		if e.Key == "" {
			return errors.New("key event without a key name")
		}
	default:
		return errors.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// MarshalJSON writes only the fields that the event's type uses, so records
// round-trip to their original shape.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case MouseMove:
		return json.Marshal(struct {
			Type Type    `json:"type"`
			Time float64 `json:"time"`
			X    float64 `json:"x"`
			Y    float64 `json:"y"`
		}{e.Type, e.Time, e.X, e.Y})
	case MouseClick:
		return json.Marshal(struct {
			Type    Type    `json:"type"`
			Time    float64 `json:"time"`
			X       float64 `json:"x"`
			Y       float64 `json:"y"`
			Button  Button  `json:"button"`
			Pressed bool    `json:"pressed"`
		}{e.Type, e.Time, e.X, e.Y, e.Button, e.Pressed})
	case MouseScroll:
		return json.Marshal(struct {
			Type Type    `json:"type"`
			Time float64 `json:"time"`
			X    float64 `json:"x"`
			Y    float64 `json:"y"`
			DX   int     `json:"dx"`
			DY   int     `json:"dy"`
		}{e.Type, e.Time, e.X, e.Y, e.DX, e.DY})
	case KeyPress, KeyRelease:
		return json.Marshal(struct {
			Type Type    `json:"type"`
			Time float64 `json:"time"`
			Key  string  `json:"key"`
		}{e.Type, e.Time, e.Key})
	case StopRequest, ChildExit:
		return json.Marshal(struct {
			Type Type `json:"type"`
		}{e.Type})
	case ErrorEvent:
		return json.Marshal(struct {
			Type    Type   `json:"type"`
			Message string `json:"message"`
		}{e.Type, e.Message})
	}
	return nil, errors.Errorf("cannot serialize event type %q", e.Type)
}

// UnmarshalJSON accepts any record shape but requires a type tag.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w struct {
		Type    *Type   `json:"type"`
		Time    float64 `json:"time"`
		X       float64 `json:"x"`
		Y       float64 `json:"y"`
		DX      int     `json:"dx"`
		DY      int     `json:"dy"`
		Button  Button  `json:"button"`
		Pressed bool    `json:"pressed"`
		Key     string  `json:"key"`
		Message string  `json:"message"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.Wrap(err, "decoding event")
	}
	if w.Type == nil {
		return errors.New("event record without a type")
	}
	*e = Event{
		Type:    *w.Type,
		Time:    w.Time,
		X:       w.X,
		Y:       w.Y,
		DX:      w.DX,
		DY:      w.DY,
		Button:  w.Button,
		Pressed: w.Pressed,
		Key:     w.Key,
		Message: w.Message,
	}
	return nil
}

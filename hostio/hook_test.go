package hostio

import (
	"testing"
	"time"

	hook "github.com/robotn/gohook"

	"github.com/nikosalonen/macrod/log"
	"github.com/nikosalonen/macrod/macro"
	"github.com/nikosalonen/macrod/test/helpers/goroutinechecker"
	"github.com/nikosalonen/macrod/test/helpers/testlogger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHook(t *testing.T) *Hook {
	t.Helper()
	logger, _ := testlogger.NewTestLogger(t, log.Debug)
	return NewHook(logger)
}

func TestSampleTranslatesRawEvents(t *testing.T) {
	defer goroutinechecker.New(t)()
	h := newTestHook(t)

	testCases := []struct {
		Name    string
		In      hook.Event
		Want    macro.Sample
		Dropped bool
	}{
		{
			Name: "Move",
			In:   hook.Event{Kind: hook.MouseMove, X: 10, Y: 20},
			Want: macro.Sample{Type: macro.MouseMove, X: 10, Y: 20},
		},
		{
			Name: "DragIsMove",
			In:   hook.Event{Kind: hook.MouseDrag, X: 5, Y: 6},
			Want: macro.Sample{Type: macro.MouseMove, X: 5, Y: 6},
		},
		{
			Name: "LeftDown",
			In:   hook.Event{Kind: hook.MouseDown, Button: 1, X: 1, Y: 2},
			Want: macro.Sample{Type: macro.MouseClick, X: 1, Y: 2, Button: macro.ButtonLeft, Pressed: true},
		},
		{
			Name: "RightUp",
			In:   hook.Event{Kind: hook.MouseUp, Button: 2, X: 1, Y: 2},
			Want: macro.Sample{Type: macro.MouseClick, X: 1, Y: 2, Button: macro.ButtonRight},
		},
		{
			Name: "MiddleDown",
			In:   hook.Event{Kind: hook.MouseDown, Button: 3},
			Want: macro.Sample{Type: macro.MouseClick, Button: macro.ButtonMiddle, Pressed: true},
		},
		{
			Name:    "UnknownButtonDropped",
			In:      hook.Event{Kind: hook.MouseDown, Button: 9},
			Dropped: true,
		},
		{
			Name: "VerticalWheel",
			In:   hook.Event{Kind: hook.MouseWheel, X: 4, Y: 5, Direction: 3, Rotation: -2},
			Want: macro.Sample{Type: macro.MouseScroll, X: 4, Y: 5, DY: -2},
		},
		{
			Name: "HorizontalWheel",
			In:   hook.Event{Kind: hook.MouseWheel, X: 4, Y: 5, Direction: 4, Rotation: 1},
			Want: macro.Sample{Type: macro.MouseScroll, X: 4, Y: 5, DX: 1},
		},
		{
			Name:    "HookChatterDropped",
			In:      hook.Event{Kind: hook.HookEnabled},
			Dropped: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t2 *testing.T) {
			got, ok := h.sample(tc.In)
			if tc.Dropped {
				assert.False(t2, ok, "event should be dropped, got %+v", got)
				return
			}
			require.True(t2, ok, "event should translate")
			assert.Equal(t2, tc.Want, got)
		})
	}
}

func TestSampleKeyEvents(t *testing.T) {
	defer goroutinechecker.New(t)()
	h := newTestHook(t)

	// Key names come from a platform table, so assert the shape and the
	// press/release mapping rather than the exact name.
	got, ok := h.sample(hook.Event{Kind: hook.KeyDown, Keychar: 'z'})
	require.True(t, ok)
	assert.Equal(t, macro.KeyPress, got.Type)
	assert.NotEmpty(t, got.Key)

	// Auto-repeat counts as pressing again.
	got, ok = h.sample(hook.Event{Kind: hook.KeyHold, Keychar: 'z'})
	require.True(t, ok)
	assert.Equal(t, macro.KeyPress, got.Type)

	got, ok = h.sample(hook.Event{Kind: hook.KeyUp, Keychar: 'z'})
	require.True(t, ok)
	assert.Equal(t, macro.KeyRelease, got.Type)
}

func TestTranslatePumpsAndFilters(t *testing.T) {
	defer goroutinechecker.New(t)()
	h := newTestHook(t)

	raw := make(chan hook.Event, 4)
	first := hook.Event{Kind: hook.MouseMove, X: 1, Y: 2}
	samples := h.translate(raw, &first)

	raw <- hook.Event{Kind: hook.MouseDown, Button: 1, X: 3, Y: 4}
	raw <- hook.Event{Kind: hook.HookEnabled}
	close(raw)

	var got []macro.Sample
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-samples:
			if !ok {
				assert.Equal(t, []macro.Sample{
					{Type: macro.MouseMove, X: 1, Y: 2},
					{Type: macro.MouseClick, X: 3, Y: 4, Button: macro.ButtonLeft, Pressed: true},
				}, got)
				return
			}
			got = append(got, s)
		case <-deadline:
			t.Fatal("sample stream did not close")
		}
	}
}

func TestCloseBeforeOpen(t *testing.T) {
	defer goroutinechecker.New(t)()
	h := newTestHook(t)
	assert.NoError(t, h.Close())
}

func TestNewSourceFactoryPicksBackend(t *testing.T) {
	defer goroutinechecker.New(t)()
	logger, _ := testlogger.NewTestLogger(t, log.Debug)

	src := NewSourceFactory(logger, macro.ModeIsolated, macro.Options{})()
	assert.IsType(t, &macro.IsolatedSource{}, src)

	src = NewSourceFactory(logger, macro.ModeInProcess, macro.Options{})()
	assert.IsType(t, &macro.InProcessSource{}, src)
}

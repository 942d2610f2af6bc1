// Package hostio binds the capture engine to the host's input facilities:
// a global input hook for capture and an input injector for playback.
package hostio

import (
	"sync"
	"time"
	"unicode"

	"github.com/pkg/errors"
	hook "github.com/robotn/gohook"

	"github.com/nikosalonen/macrod/log"
	"github.com/nikosalonen/macrod/macro"
)

// hookStartTimeout bounds how long Open waits for the platform hook to
// report itself installed. On systems without input-monitoring permission
// the hook never comes up.
const hookStartTimeout = 3 * time.Second

// Hook captures global mouse and keyboard input. The platform hook is
// process-wide, so at most one Hook can be open at a time.
type Hook struct {
	log log.Logger

	mu     sync.Mutex
	opened bool
	closed bool
}

// NewHook creates an unopened input hook.
func NewHook(logger log.Logger) *Hook {
	if logger == nil {
		panic("nil logger given")
	}
	return &Hook{log: logger}
}

// Open installs the global input hook and starts translating its events
// into samples. The sample stream closes when the hook ends.
func (h *Hook) Open() (<-chan macro.Sample, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opened {
		return nil, errors.New("input hook already open")
	}

	raw := hook.Start()

	// The hook announces itself once installed; silence means it never
	// came up.
	select {
	case ev, ok := <-raw:
		if !ok {
			return nil, errors.New("input hook ended before starting")
		}
		if ev.Kind != hook.HookEnabled {
			// Already live; don't lose the first real event.
			h.opened = true
			return h.translate(raw, &ev), nil
		}
	case <-time.After(hookStartTimeout):
		hook.End()
		return nil, errors.New("input hook did not start; missing input monitoring permission?")
	}

	h.opened = true
	return h.translate(raw, nil), nil
}

// Close removes the hook. The sample stream ends shortly after.
func (h *Hook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.opened || h.closed {
		return nil
	}
	h.closed = true
	hook.End()
	return nil
}

// translate pumps raw hook events into capture samples. first, when not
// nil, is an event received during startup that still needs delivering.
func (h *Hook) translate(raw <-chan hook.Event, first *hook.Event) <-chan macro.Sample {
	samples := make(chan macro.Sample, 64)
	go func() {
		defer close(samples)
		if first != nil {
			if s, ok := h.sample(*first); ok {
				samples <- s
			}
		}
		for ev := range raw {
			if s, ok := h.sample(ev); ok {
				samples <- s
			}
		}
	}()
	return samples
}

// sample converts one hook event. Events that cannot be replayed (unknown
// buttons, keys with no usable name) are dropped here.
func (h *Hook) sample(ev hook.Event) (macro.Sample, bool) {
	switch ev.Kind {
	case hook.MouseMove, hook.MouseDrag:
		return macro.Sample{
			Type: macro.MouseMove,
			X:    float64(ev.X),
			Y:    float64(ev.Y),
		}, true
	case hook.MouseDown, hook.MouseUp:
		b, ok := buttonName(ev.Button)
		if !ok {
			h.log.Debugf("ignoring mouse button %d", ev.Button)
			return macro.Sample{}, false
		}
		return macro.Sample{
			Type:    macro.MouseClick,
			X:       float64(ev.X),
			Y:       float64(ev.Y),
			Button:  b,
			Pressed: ev.Kind == hook.MouseDown,
		}, true
	case hook.MouseWheel:
		s := macro.Sample{
			Type: macro.MouseScroll,
			X:    float64(ev.X),
			Y:    float64(ev.Y),
		}
		// Direction 3 is the vertical wheel.
		if ev.Direction == 3 {
			s.DY = int(ev.Rotation)
		} else {
			s.DX = int(ev.Rotation)
		}
		return s, true
	case hook.KeyDown, hook.KeyHold:
		return h.keySample(ev, macro.KeyPress)
	case hook.KeyUp:
		return h.keySample(ev, macro.KeyRelease)
	}
	return macro.Sample{}, false
}

func (h *Hook) keySample(ev hook.Event, t macro.Type) (macro.Sample, bool) {
	name := keyName(ev)
	if name == "" {
		h.log.Debugf("ignoring key with rawcode %d", ev.Rawcode)
		return macro.Sample{}, false
	}
	return macro.Sample{Type: t, Key: name}, true
}

// keyName picks a stable, replayable name for a key event.
func keyName(ev hook.Event) string {
	if name := hook.RawcodetoKeychar(ev.Rawcode); name != "" {
		return name
	}
	if ev.Keychar != hook.CharUndefined && unicode.IsPrint(ev.Keychar) {
		return string(ev.Keychar)
	}
	return ""
}

func buttonName(b uint16) (macro.Button, bool) {
	switch b {
	case 1:
		return macro.ButtonLeft, true
	case 2:
		return macro.ButtonRight, true
	case 3:
		return macro.ButtonMiddle, true
	}
	return "", false
}

// NewSourceFactory returns a factory producing capture sources for the
// given mode. workerArgv overrides the isolated mode's worker command;
// without it the current executable is respawned as the worker.
func NewSourceFactory(logger log.Logger, mode macro.Mode, opts macro.Options, workerArgv ...string) macro.SourceFactory {
	if mode == macro.ModeIsolated {
		return func() macro.Source {
			return macro.NewIsolatedSource(logger, opts, workerArgv...)
		}
	}
	return func() macro.Source {
		return macro.NewInProcessSource(logger, opts, NewHook(logger))
	}
}

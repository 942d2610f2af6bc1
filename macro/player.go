package macro

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	errors2 "errors"

	"github.com/pkg/errors"

	"github.com/nikosalonen/macrod/log"
)

// ErrPlaybackActive is returned when an operation cannot run because a
// playback session is in progress.
var ErrPlaybackActive = errors2.New("playback in progress")

// sleepSlice bounds each individual sleep during playback so a stop
// request never waits behind a long inter-event gap.
const sleepSlice = 25 * time.Millisecond

// Injector performs input on the host, one event at a time.
type Injector interface {
	MoveMouse(x, y int) error
	ToggleButton(b Button, down bool) error
	Scroll(dx, dy int) error
	ToggleKey(key string, down bool) error
	TypeString(s string) error
}

// PlaybackStatus is a snapshot of playback state.
type PlaybackStatus struct {
	Playing     bool
	CurrentLoop int // 1-based; 0 when idle
	TotalLoops  int // -1 means until stopped
}

// Player replays captured event sequences with their original relative
// timing, scaled by a speed factor.
type Player struct {
	log log.Logger
	inj Injector

	stop atomic.Bool

	mu          sync.Mutex
	playing     bool
	currentLoop int
	totalLoops  int
}

// NewPlayer creates a player that performs input through inj.
func NewPlayer(logger log.Logger, inj Injector) *Player {
	if logger == nil {
		panic("nil logger given")
	}
	if inj == nil {
		panic("nil injector given")
	}
	return &Player{
		log: logger,
		inj: inj,
	}
}

// checkPlayArgs validates a playback request before any state changes.
func checkPlayArgs(loops int, speed float64) error {
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return errors.Errorf("invalid playback speed %v", speed)
	}
	if loops < -1 {
		return errors.Errorf("invalid loop count %d", loops)
	}
	return nil
}

// Play replays the sequence loops times at the given speed and returns when
// done or stopped. A loop count of -1 repeats until Stop; 0 does nothing.
// Speed scales the recorded gaps: 2 plays twice as fast, 0.5 at half speed.
//
// Records a run cannot use (control records, events missing required
// fields) are dropped up front with a diagnostic, so a repeat-forever run
// over nothing playable returns instead of spinning.
func (p *Player) Play(events []Event, loops int, speed float64) error {
	if err := checkPlayArgs(loops, speed); err != nil {
		return err
	}

	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return ErrPlaybackActive
	}
	p.playing = true
	p.currentLoop = 0
	p.totalLoops = loops
	p.mu.Unlock()
	p.stop.Store(false)

	defer func() {
		p.mu.Lock()
		p.playing = false
		p.currentLoop = 0
		p.totalLoops = 0
		p.mu.Unlock()
	}()

	playable := p.playable(events)
	if loops == 0 || len(playable) == 0 {
		return nil
	}

run:
	for loop := 0; loops == -1 || loop < loops; loop++ {
		if p.stop.Load() {
			break
		}
		p.setLoop(loop + 1)

		last := 0.0
		for _, e := range playable {
			if p.stop.Load() {
				break run
			}
			if wait := (e.Time - last) / speed; wait > 0 {
				if !p.sleepFor(wait) {
					break run
				}
			}
			last = e.Time
			if err := p.execute(e); err != nil {
				p.log.Warnf("performing %s event: %v", e.Type, err)
			}
		}
	}
	return nil
}

// Stop asks the current run to end at the next event boundary. It returns
// immediately; Play unwinds on its own.
func (p *Player) Stop() {
	p.stop.Store(true)
}

// Status returns a snapshot of the player's state.
func (p *Player) Status() PlaybackStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PlaybackStatus{
		Playing:     p.playing,
		CurrentLoop: p.currentLoop,
		TotalLoops:  p.totalLoops,
	}
}

// playable filters the sequence down to the records a run can perform.
func (p *Player) playable(events []Event) []Event {
	result := make([]Event, 0, len(events))
	for i, e := range events {
		if e.IsControl() {
			continue
		}
		if err := e.Validate(); err != nil {
			p.log.Debugf("skipping event %d: %v", i, err)
			continue
		}
		result = append(result, e)
	}
	return result
}

func (p *Player) setLoop(n int) {
	p.mu.Lock()
	p.currentLoop = n
	p.mu.Unlock()
}

// sleepFor waits the given number of seconds in short slices, so a stop
// request cuts the wait short. It reports false when playback should end.
func (p *Player) sleepFor(seconds float64) bool {
	remaining := time.Duration(seconds * float64(time.Second))
	for remaining > 0 {
		if p.stop.Load() {
			return false
		}
		slice := remaining
		if slice > sleepSlice {
			slice = sleepSlice
		}
		time.Sleep(slice)
		remaining -= slice
	}
	return !p.stop.Load()
}

func (p *Player) execute(e Event) error {
	switch e.Type {
	case MouseMove:
		return p.inj.MoveMouse(int(e.X), int(e.Y))
	case MouseClick:
		if err := p.inj.MoveMouse(int(e.X), int(e.Y)); err != nil {
			return err
		}
		return p.inj.ToggleButton(e.Button, e.Pressed)
	case MouseScroll:
		return p.inj.Scroll(e.DX, e.DY)
	case KeyPress, KeyRelease:
		down := e.Type == KeyPress
		name, ok := ResolveKey(e.Key)
		if !ok {
			if down {
				p.log.Debugf("typing unresolved key %q literally", e.Key)
				return p.inj.TypeString(e.Key)
			}
			return nil
		}
		return p.inj.ToggleKey(name, down)
	}
	return errors.Errorf("cannot perform event type %q", e.Type)
}

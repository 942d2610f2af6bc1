// Package macro captures timed desktop input sessions and plays them back.
//
// A Controller owns at most one activity at a time: it either records
// through a capture Source or replays through a Player, never both. Capture
// can run inside the process or in a worker child process; both feed the
// same event stream shape.
package macro

import (
	"sync"

	errors2 "errors"

	"github.com/google/uuid"

	"github.com/nikosalonen/macrod/log"
)

// Sentinel errors for operations that conflict with the controller's
// current activity.
var (
	ErrCaptureActive = errors2.New("capture in progress")
	ErrNoEvents      = errors2.New("no events to play")
)

// SourceFactory creates a fresh capture source. Sources are single-session,
// so every recording gets a new one.
type SourceFactory func() Source

// Status is a point-in-time view of the controller, shaped for polling.
type Status struct {
	Recording   bool   `json:"recording"`
	Playing     bool   `json:"playing"`
	CurrentLoop int    `json:"current_loop"`
	TotalLoops  int    `json:"total_loops"`
	Events      int    `json:"events"`
	SessionID   string `json:"session_id,omitempty"`
	CaptureErr  string `json:"capture_error,omitempty"`
}

// Controller coordinates capture, playback and the captured sequence.
type Controller struct {
	log       log.Logger
	newSource SourceFactory
	player    *Player
	store     *Store

	mu         sync.Mutex
	recording  bool
	playing    bool
	src        Source
	drained    chan struct{}
	sessionID  string
	captureErr string
}

// NewController creates a controller that records through sources from
// newSource and replays through inj.
func NewController(logger log.Logger, newSource SourceFactory, inj Injector) *Controller {
	if logger == nil {
		panic("nil logger given")
	}
	if newSource == nil {
		panic("nil source factory given")
	}
	return &Controller{
		log:       logger,
		newSource: newSource,
		player:    NewPlayer(logger, inj),
		store:     NewStore(),
	}
}

// StartCapture begins a new recording, discarding the previous sequence.
// It is rejected while a recording or playback is active; a rejected or
// failed start leaves the controller unchanged.
func (c *Controller) StartCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording {
		return ErrCaptureActive
	}
	if c.playing {
		return ErrPlaybackActive
	}

	src := c.newSource()
	if err := src.Start(); err != nil {
		return err
	}

	c.store.Replace(nil)
	c.recording = true
	c.src = src
	c.sessionID = uuid.NewString()
	c.captureErr = ""
	drained := make(chan struct{})
	c.drained = drained
	go c.drain(src, drained)

	c.log.Debugf("capture session %s started", c.sessionID)
	return nil
}

// StopCapture ends the active recording and returns once every captured
// event has landed in the sequence. Without an active recording it is a
// no-op.
func (c *Controller) StopCapture() {
	c.mu.Lock()
	src, drained := c.src, c.drained
	c.mu.Unlock()

	if src == nil {
		return
	}
	src.Stop()
	<-drained
}

// drain consumes a capture session's stream until it ends. Data events go
// to the sequence; control records steer the session.
func (c *Controller) drain(src Source, drained chan struct{}) {
	for e := range src.Events() {
		switch e.Type {
		case StopRequest:
			c.log.Debug("stop requested from the capture stream")
			go c.StopCapture()
		case ErrorEvent:
			c.log.Errorf("capture fault: %s", e.Message)
			c.mu.Lock()
			c.captureErr = e.Message
			c.mu.Unlock()
			go c.StopCapture()
		case ChildExit:
			// The source consumes these; one slipping through is noise.
		default:
			c.store.Append(e)
		}
	}

	c.mu.Lock()
	c.recording = false
	c.src = nil
	c.mu.Unlock()
	close(drained)
	c.log.Debug("capture session drained")
}

// Play replays the current sequence on its own goroutine and returns once
// playback has been admitted. It is rejected while a recording or another
// playback is active, and when there is nothing to play.
func (c *Controller) Play(loops int, speed float64) error {
	if err := checkPlayArgs(loops, speed); err != nil {
		return err
	}

	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		return ErrCaptureActive
	}
	if c.playing {
		c.mu.Unlock()
		return ErrPlaybackActive
	}
	events := c.store.Snapshot()
	if len(events) == 0 {
		c.mu.Unlock()
		return ErrNoEvents
	}
	c.playing = true
	c.mu.Unlock()

	go func() {
		if err := c.player.Play(events, loops, speed); err != nil {
			c.log.Errorf("playback: %v", err)
		}
		c.mu.Lock()
		c.playing = false
		c.mu.Unlock()
	}()
	return nil
}

// StopPlayback asks the active playback to end at its next event boundary.
// Without an active playback it is a no-op.
func (c *Controller) StopPlayback() {
	c.player.Stop()
}

// Status reports the controller's current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		Recording:  c.recording,
		Playing:    c.playing,
		SessionID:  c.sessionID,
		CaptureErr: c.captureErr,
	}
	c.mu.Unlock()

	ps := c.player.Status()
	st.CurrentLoop = ps.CurrentLoop
	st.TotalLoops = ps.TotalLoops
	st.Events = c.store.Len()
	return st
}

// Events returns a copy of the sequence from index since onward, for
// pollers following a recording as it grows.
func (c *Controller) Events(since int) []Event {
	return c.store.Since(since)
}

// Snapshot returns a copy of the full sequence.
func (c *Controller) Snapshot() []Event {
	return c.store.Snapshot()
}

// SetEvents replaces the sequence. It is rejected while a recording or
// playback is active; a rejected call changes nothing. Control records are
// dropped on the way in.
func (c *Controller) SetEvents(events []Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording {
		return ErrCaptureActive
	}
	if c.playing {
		return ErrPlaybackActive
	}
	c.store.Replace(StripControl(events))
	return nil
}

// SaveFile writes the current sequence to the named file. Allowed at any
// time; an active recording saves what has been captured so far.
func (c *Controller) SaveFile(path string) error {
	return SaveFile(path, c.store.Snapshot())
}

// LoadFile replaces the sequence with the contents of the named file. The
// same activity rules as SetEvents apply, and a file that cannot be read
// or parsed leaves the sequence untouched.
func (c *Controller) LoadFile(path string) error {
	events, skipped, err := LoadFile(path)
	if err != nil {
		return err
	}
	if skipped > 0 {
		c.log.Warnf("ignored %d unreadable records in %s", skipped, path)
	}
	return c.SetEvents(events)
}

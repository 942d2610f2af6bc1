package macro

import (
	"runtime"
	"strings"
	"sync"
	"time"

	errors2 "errors"

	"github.com/pkg/errors"

	"github.com/nikosalonen/macrod/log"
)

// ErrStarted is returned when Start is called on a source that already ran.
// Sources are single-session; a new session needs a new source.
var ErrStarted = errors2.New("capture source already started")

// Mode selects how a capture session runs.
type Mode string

// Capture modes.
const (
	// ModeInProcess runs the input hooks inside this process.
	ModeInProcess Mode = "inprocess"
	// ModeIsolated runs the input hooks in a child process. On platforms
	// where the hook runtime cannot share a process with other event
	// loops, this keeps a capture session from wedging the host process.
	ModeIsolated Mode = "isolated"
)

// DefaultMode returns the capture mode suited to the current platform.
func DefaultMode() Mode {
	if runtime.GOOS == "darwin" {
		return ModeIsolated
	}
	return ModeInProcess
}

// Sample is a raw input record as reported by a hook, before the session
// clock stamps it.
type Sample struct {
	Type    Type
	X       float64
	Y       float64
	DX      int
	DY      int
	Button  Button
	Pressed bool
	Key     string
}

// HookSource delivers raw input samples from a platform hook.
type HookSource interface {
	// Open installs the hook and returns its sample stream. The stream
	// closes when the hook is closed or fails.
	Open() (<-chan Sample, error)
	// Close removes the hook. Safe to call more than once.
	Close() error
}

// Source produces the timed event stream for one capture session.
type Source interface {
	// Start begins capturing. A failed start leaves nothing running and
	// returns a *StartError.
	Start() error
	// Events returns the session stream. The channel is closed once the
	// source has fully stopped.
	Events() <-chan Event
	// Stop ends the session. It is idempotent; teardown problems are
	// logged rather than returned. Stop before Start is a no-op.
	Stop()
}

// StartError reports that a capture session could not be started. Whatever
// was partially set up has already been torn down.
type StartError struct {
	Cause error
}

func (e *StartError) Error() string {
	return "starting capture: " + e.Cause.Error()
}

func (e *StartError) Unwrap() error {
	return e.Cause
}

// Options configures a capture source.
type Options struct {
	// StopKey names a key that ends the session from the keyboard. A press
	// of it becomes a stop request instead of a recorded event. Empty
	// disables interception.
	StopKey string
	// QueueSize caps the internal transport. Zero means DefaultQueueSize.
	QueueSize int
	// Clock overrides the session time base, for tests. Nil means
	// time.Now.
	Clock func() time.Time
}

func (o Options) clock() func() time.Time {
	if o.Clock != nil {
		return o.Clock
	}
	return time.Now
}

// InProcessSource captures input through hooks installed in this process.
//
// The event stream ends when Stop is called or when every hook stream has
// closed on its own, whichever comes first. A consumer that did not call
// Stop and sees the stream end knows the hooks died under it.
type InProcessSource struct {
	log   log.Logger
	hooks []HookSource
	opts  Options

	q    *queue
	wg   sync.WaitGroup
	done chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewInProcessSource creates a source over the given hooks. At least one
// hook is required.
func NewInProcessSource(logger log.Logger, opts Options, hooks ...HookSource) *InProcessSource {
	if logger == nil {
		panic("nil logger given")
	}
	if len(hooks) == 0 {
		panic("no hook sources given")
	}
	return &InProcessSource{
		log:   logger,
		hooks: hooks,
		opts:  opts,
		q:     newQueue(logger, opts.QueueSize),
		done:  make(chan struct{}),
	}
}

// Start opens every hook and begins streaming. If any hook fails to open,
// the ones already opened are closed again before the error is returned.
func (s *InProcessSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrStarted
	}

	streams := make([]<-chan Sample, 0, len(s.hooks))
	for i, h := range s.hooks {
		stream, err := h.Open()
		if err != nil {
			for j := i - 1; j >= 0; j-- {
				if cerr := s.hooks[j].Close(); cerr != nil {
					s.log.Warnf("closing hook after failed start: %v", cerr)
				}
			}
			return &StartError{Cause: errors.Wrapf(err, "opening hook %d", i)}
		}
		streams = append(streams, stream)
	}

	s.started = true
	epoch := s.opts.clock()()
	for _, stream := range streams {
		s.wg.Add(1)
		go s.pump(stream, epoch)
	}
	go func() {
		s.wg.Wait()
		s.q.Close()
		close(s.done)
	}()
	return nil
}

// pump stamps samples with session time and forwards them to the queue.
// It exits when its hook's stream closes.
func (s *InProcessSource) pump(stream <-chan Sample, epoch time.Time) {
	defer s.wg.Done()

	clock := s.opts.clock()
	for sample := range stream {
		e := stampSample(sample, clock().Sub(epoch).Seconds())
		if intercepted, stop := interceptStopKey(e, s.opts.StopKey); stop {
			s.q.Put(Event{Type: StopRequest})
			continue
		} else if intercepted {
			continue
		}
		s.q.Put(e)
	}
}

// Events returns the session stream.
func (s *InProcessSource) Events() <-chan Event {
	return s.q.Events()
}

// Stop closes the hooks and returns once in-flight samples have landed and
// the stream has ended.
func (s *InProcessSource) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	already := s.stopped
	s.stopped = true
	s.mu.Unlock()

	if !already {
		for _, h := range s.hooks {
			if err := h.Close(); err != nil {
				s.log.Warnf("closing hook: %v", err)
			}
		}
	}
	<-s.done
}

// stampSample turns a raw sample into a session event at the given time.
func stampSample(sample Sample, t float64) Event {
	return Event{
		Type:    sample.Type,
		Time:    t,
		X:       sample.X,
		Y:       sample.Y,
		DX:      sample.DX,
		DY:      sample.DY,
		Button:  sample.Button,
		Pressed: sample.Pressed,
		Key:     sample.Key,
	}
}

// interceptStopKey reports whether the event involves the configured stop
// key. A press asks for a stop; the matching release is swallowed so it
// does not end up in the recording.
func interceptStopKey(e Event, stopKey string) (intercepted, stop bool) {
	if stopKey == "" || e.Key == "" {
		return false, false
	}
	if !strings.EqualFold(e.Key, stopKey) {
		return false, false
	}
	switch e.Type {
	case KeyPress:
		return true, true
	case KeyRelease:
		return true, false
	}
	return false, false
}

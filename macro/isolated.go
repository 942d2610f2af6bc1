package macro

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/nikosalonen/macrod/log"
)

// Environment variables an isolated source sets for its worker process.
const (
	EnvStopKey   = "MACROD_STOP_KEY"
	EnvQueueSize = "MACROD_QUEUE_SIZE"
)

// WorkerMode is the argument that switches the macrod binary into capture
// worker mode.
const WorkerMode = "capture-worker"

const (
	// stopExitWait is how long Stop waits for the worker to exit on its
	// own after the stop command.
	stopExitWait = 2 * time.Second
	// killExitWait is how long Stop waits after killing the worker.
	killExitWait = 1 * time.Second
)

// IsolatedSource captures input through a worker child process, keeping the
// platform hooks out of this process entirely. The worker streams events
// back over its stdout as JSON Lines.
type IsolatedSource struct {
	log  log.Logger
	opts Options
	argv []string

	q    *queue
	done chan struct{}

	cmd      *exec.Cmd
	stdin    io.WriteCloser
	g        *errgroup.Group
	stopping atomic.Bool

	stopWait time.Duration
	killWait time.Duration

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewIsolatedSource creates a source that will spawn the given worker
// command. An empty argv means the current executable in capture worker
// mode.
func NewIsolatedSource(logger log.Logger, opts Options, argv ...string) *IsolatedSource {
	if logger == nil {
		panic("nil logger given")
	}
	return &IsolatedSource{
		log:      logger,
		opts:     opts,
		argv:     argv,
		q:        newQueue(logger, opts.QueueSize),
		done:     make(chan struct{}),
		stopWait: stopExitWait,
		killWait: killExitWait,
	}
}

// Start spawns the worker and begins relaying its event stream.
func (s *IsolatedSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrStarted
	}

	argv := s.argv
	if len(argv) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return &StartError{Cause: errors.Wrap(err, "locating worker executable")}
		}
		argv = []string{exe, WorkerMode}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), EnvStopKey+"="+s.opts.StopKey)
	if s.opts.QueueSize > 0 {
		cmd.Env = append(cmd.Env, EnvQueueSize+"="+strconv.Itoa(s.opts.QueueSize))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &StartError{Cause: errors.Wrap(err, "opening worker stdin")}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &StartError{Cause: errors.Wrap(err, "opening worker stdout")}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &StartError{Cause: errors.Wrap(err, "opening worker stderr")}
	}

	s.log.Debugf("starting capture worker: %s", shellquote.Join(argv...))
	if err := cmd.Start(); err != nil {
		return &StartError{Cause: errors.Wrap(err, "spawning capture worker")}
	}

	s.cmd = cmd
	s.stdin = stdin
	s.started = true

	s.g = new(errgroup.Group)
	s.g.Go(func() error { return s.relayEvents(stdout) })
	s.g.Go(func() error { return s.relayStderr(stderr) })
	go func() {
		if err := s.g.Wait(); err != nil {
			s.log.Warnf("capture worker stream: %v", err)
		}
		if err := s.cmd.Wait(); err != nil && !s.stopping.Load() {
			s.log.Warnf("capture worker: %v", err)
		}
		s.q.Close()
		close(s.done)
	}()
	return nil
}

// relayEvents decodes the worker's stdout into the session stream. It
// returns when the worker announces its exit or the pipe ends.
func (s *IsolatedSource) relayEvents(stdout io.Reader) error {
	dec := json.NewDecoder(stdout)
	for {
		var e Event
		if err := dec.Decode(&e); err != nil {
			if s.stopping.Load() {
				// A killed worker never writes its exit marker.
				s.log.Debug("capture worker stream ended without exit marker")
				return nil
			}
			// Ending without the exit marker means the worker died on us.
			s.q.Put(Event{Type: ErrorEvent, Message: "capture worker exited unexpectedly"})
			if errors.Is(err, io.EOF) {
				return errors.New("capture worker exited unexpectedly")
			}
			return errors.Wrap(err, "decoding worker stream")
		}
		if e.Type == ChildExit {
			s.log.Debug("capture worker announced exit")
			return nil
		}
		s.q.Put(e)
	}
}

// relayStderr forwards worker diagnostics to the session logger.
func (s *IsolatedSource) relayStderr(stderr io.Reader) error {
	sc := bufio.NewScanner(stderr)
	for sc.Scan() {
		s.log.Debugf("capture worker: %s", sc.Text())
	}
	return sc.Err()
}

// Events returns the session stream.
func (s *IsolatedSource) Events() <-chan Event {
	return s.q.Events()
}

// Stop asks the worker to exit, escalating to a kill if it does not go on
// its own.
func (s *IsolatedSource) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	already := s.stopped
	s.stopped = true
	s.mu.Unlock()

	if already {
		<-s.done
		return
	}
	s.stopping.Store(true)

	if _, err := io.WriteString(s.stdin, StopCommand+"\n"); err != nil {
		s.log.Debugf("sending stop to capture worker: %v", err)
	}
	if err := s.stdin.Close(); err != nil {
		s.log.Debugf("closing capture worker stdin: %v", err)
	}

	select {
	case <-s.done:
		return
	case <-time.After(s.stopWait):
		s.log.Warn("capture worker did not stop in time, killing it")
	}

	if err := s.cmd.Process.Kill(); err != nil {
		s.log.Warnf("killing capture worker: %v", err)
	}

	select {
	case <-s.done:
	case <-time.After(s.killWait):
		s.log.Error("capture worker did not exit after kill")
		s.q.Close()
	}
}

package macro

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/nikosalonen/macrod/log"
)

// StopCommand is the line a parent writes to a capture worker's stdin to
// end the session. Closing stdin works too.
const StopCommand = "stop"

// workerPollInterval is how often the worker checks its stop flag while no
// events are arriving.
const workerPollInterval = 50 * time.Millisecond

// WorkerConfig configures a capture worker run.
type WorkerConfig struct {
	Options

	// PollInterval overrides the stop-flag polling cadence, for tests.
	PollInterval time.Duration
}

// RunCaptureWorker runs the child half of an isolated capture session: it
// captures through the given hooks and streams the session's events to out
// as JSON Lines, one record per line.
//
// The run ends when a stop command arrives on in, when in reaches EOF
// (the parent is gone), or when the hooks fail. A failed start or a dead
// hook is reported as an error record on the stream. The last record is
// always a child exit marker, so the parent can tell a finished stream
// from a severed one.
func RunCaptureWorker(logger log.Logger, in io.Reader, out io.Writer, conf WorkerConfig, hooks ...HookSource) error {
	if logger == nil {
		panic("nil logger given")
	}

	enc := json.NewEncoder(out)
	writeEvent := func(e Event) error {
		return enc.Encode(e)
	}

	src := NewInProcessSource(logger, conf.Options, hooks...)
	if err := src.Start(); err != nil {
		_ = writeEvent(Event{Type: ErrorEvent, Message: err.Error()})
		_ = writeEvent(Event{Type: ChildExit})
		return err
	}

	var stopping atomic.Bool
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			if strings.TrimSpace(sc.Text()) == StopCommand {
				break
			}
		}
		stopping.Store(true)
	}()

	poll := conf.PollInterval
	if poll <= 0 {
		poll = workerPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-src.Events():
			if !ok {
				if !stopping.Load() {
					logger.Error("input hooks ended without a stop request")
					_ = writeEvent(Event{Type: ErrorEvent, Message: "input hooks ended unexpectedly"})
					_ = writeEvent(Event{Type: ChildExit})
					return errors.New("input hooks ended unexpectedly")
				}
				_ = writeEvent(Event{Type: ChildExit})
				return nil
			}
			if err := writeEvent(e); err != nil {
				logger.Errorf("writing event stream: %v", err)
				src.Stop()
				_ = writeEvent(Event{Type: ChildExit})
				return errors.Wrap(err, "writing event stream")
			}
		case <-ticker.C:
			if stopping.Load() {
				// Idempotent; the drained stream ends the loop above.
				src.Stop()
			}
		}
	}
}

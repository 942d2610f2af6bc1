package macro

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	errors2 "errors"

	"github.com/nikosalonen/macrod/log"
	"github.com/nikosalonen/macrod/test/helpers/goroutinechecker"
	"github.com/nikosalonen/macrod/test/helpers/testlogger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeStream parses a JSON Lines event stream.
func decodeStream(t *testing.T, data []byte) []Event {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(data))
	var events []Event
	for {
		var e Event
		err := dec.Decode(&e)
		if errors2.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err, "unreadable worker stream")
		events = append(events, e)
	}
}

// workerRun drives RunCaptureWorker on its own goroutine.
type workerRun struct {
	out  *testlogger.Buffer
	inW  *io.PipeWriter
	done chan error
}

func startWorker(t *testing.T, conf WorkerConfig, hooks ...HookSource) *workerRun {
	t.Helper()

	logger, _ := testlogger.NewTestLogger(t, log.Debug)
	inR, inW := io.Pipe()
	if conf.PollInterval == 0 {
		conf.PollInterval = 5 * time.Millisecond
	}

	r := &workerRun{
		out:  &testlogger.Buffer{},
		inW:  inW,
		done: make(chan error, 1),
	}
	go func() {
		r.done <- RunCaptureWorker(logger, inR, r.out, conf, hooks...)
		_ = inR.Close()
	}()
	t.Cleanup(func() { _ = inW.Close() })
	return r
}

func (r *workerRun) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for the worker to finish")
	}
	return nil
}

func TestWorkerStreamsEventsAndStopsOnCommand(t *testing.T) {
	defer goroutinechecker.New(t)()

	h := newFakeHook()
	r := startWorker(t, WorkerConfig{}, h)

	h.emit(Sample{Type: MouseMove, X: 1, Y: 2})
	h.emit(Sample{Type: KeyPress, Key: "a"})

	_, err := io.WriteString(r.inW, StopCommand+"\n")
	require.NoError(t, err)
	require.NoError(t, r.wait(t), "clean stop must not error")

	events := decodeStream(t, r.out.Bytes())
	require.NotEmpty(t, events)
	assert.Equal(t, ChildExit, events[len(events)-1].Type,
		"the stream must end with the exit marker")

	var types []Type
	for _, e := range events[:len(events)-1] {
		types = append(types, e.Type)
	}
	assert.Equal(t, []Type{MouseMove, KeyPress}, types, "captured events lost or reordered")
}

func TestWorkerStopsOnStdinEOF(t *testing.T) {
	defer goroutinechecker.New(t)()

	h := newFakeHook()
	r := startWorker(t, WorkerConfig{}, h)

	h.emit(Sample{Type: MouseMove, X: 5, Y: 5})
	require.NoError(t, r.inW.Close(), "closing stdin stands in for a vanished parent")
	require.NoError(t, r.wait(t))

	events := decodeStream(t, r.out.Bytes())
	require.NotEmpty(t, events)
	assert.Equal(t, ChildExit, events[len(events)-1].Type)
}

func TestWorkerForwardsStopRequests(t *testing.T) {
	defer goroutinechecker.New(t)()

	h := newFakeHook()
	r := startWorker(t, WorkerConfig{Options: Options{StopKey: "f2"}}, h)

	h.emit(Sample{Type: KeyPress, Key: "f2"})

	// The worker relays the stop request and keeps running; ending the
	// session is the parent's call.
	require.Eventually(t, func() bool {
		return strings.Contains(r.out.String(), string(StopRequest))
	}, 2*time.Second, 10*time.Millisecond, "stop request not forwarded")

	select {
	case err := <-r.done:
		t.Fatalf("worker exited on its own: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	_, err := io.WriteString(r.inW, StopCommand+"\n")
	require.NoError(t, err)
	require.NoError(t, r.wait(t))
}

func TestWorkerReportsStartFailure(t *testing.T) {
	defer goroutinechecker.New(t)()

	h := newFakeHook()
	h.openErr = errors2.New("no permission")

	logger, _ := testlogger.NewTestLogger(t, log.Debug)
	var out bytes.Buffer
	err := RunCaptureWorker(logger, strings.NewReader(""), &out, WorkerConfig{}, h)

	var startErr *StartError
	require.True(t, errors2.As(err, &startErr), "start failure must surface")

	events := decodeStream(t, out.Bytes())
	require.Len(t, events, 2)
	assert.Equal(t, ErrorEvent, events[0].Type)
	assert.Contains(t, events[0].Message, "no permission")
	assert.Equal(t, ChildExit, events[1].Type)
}

func TestWorkerReportsHookDeath(t *testing.T) {
	defer goroutinechecker.New(t)()

	h := newFakeHook()
	r := startWorker(t, WorkerConfig{}, h)

	h.emit(Sample{Type: MouseMove, X: 1, Y: 1})
	require.Eventually(t, func() bool {
		return strings.Contains(r.out.String(), string(MouseMove))
	}, 2*time.Second, 10*time.Millisecond)

	h.die()
	err := r.wait(t)
	require.Error(t, err, "a dead hook is a failed session")

	events := decodeStream(t, r.out.Bytes())
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, ErrorEvent, events[len(events)-2].Type, "missing fault record")
	assert.Equal(t, ChildExit, events[len(events)-1].Type, "missing exit marker")
}

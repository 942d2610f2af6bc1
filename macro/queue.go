package macro

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nikosalonen/macrod/log"
)

// DefaultQueueSize is the capture transport capacity. Large enough to ride
// out bursts of mouse movement without the producer ever blocking an input
// hook callback.
const DefaultQueueSize = 10000

const (
	// controlRetryTimeout bounds how long a Put of a control record may
	// wait for space when the queue is full.
	controlRetryTimeout = 100 * time.Millisecond
	// logDropEvery limits drop warnings under sustained backpressure.
	logDropEvery = 1000
)

// queue is the bounded FIFO between a capture producer and its consumer.
// It preserves arrival order; the only loss mode is dropping data events
// when the consumer falls behind.
//
// Put must not be called after Close. Events is closed by Close once the
// buffered events have a chance to drain.
type queue struct {
	log       log.Logger
	ch        chan Event
	dropped   atomic.Uint64
	closeOnce sync.Once
}

func newQueue(logger log.Logger, size int) *queue {
	if logger == nil {
		panic("nil logger given")
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &queue{
		log: logger,
		ch:  make(chan Event, size),
	}
}

// Put enqueues the event without blocking the caller. A full queue drops
// data events. Control records get one bounded retry before being dropped,
// since losing one desynchronizes shutdown.
func (q *queue) Put(e Event) {
	select {
	case q.ch <- e:
		return
	default:
	}

	if !e.IsControl() {
		n := q.dropped.Add(1)
		if n == 1 || n%logDropEvery == 0 {
			q.log.Warnf("capture queue full: %d events dropped", n)
		}
		return
	}

	t := time.NewTimer(controlRetryTimeout)
	defer t.Stop()
	select {
	case q.ch <- e:
	case <-t.C:
		q.log.Errorf("capture queue full: dropping control record %q", e.Type)
	}
}

// Events returns the receive side of the queue. It is closed after Close.
func (q *queue) Events() <-chan Event {
	return q.ch
}

// Dropped returns how many data events were discarded due to backpressure.
func (q *queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close ends the stream. Safe to call more than once.
func (q *queue) Close() {
	q.closeOnce.Do(func() {
		if n := q.dropped.Load(); n > 0 {
			q.log.Warnf("capture queue dropped %d events in total", n)
		}
		close(q.ch)
	})
}

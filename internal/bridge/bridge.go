// Package bridge runs core operations on one dedicated background goroutine
// and lets foreground callers invoke them with a blocking call-with-timeout
// surface. A timed-out caller returns immediately; the in-flight operation
// still runs to completion and its result is discarded.
package bridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pv/obd-monitor-go/internal/logger"
)

var (
	// ErrTimeout means a bridged call exceeded its caller-specified
	// deadline. Distinct from every operation error so callers can choose
	// retry vs abandon.
	ErrTimeout = errors.New("bridge: operation timed out")

	// ErrClosed is returned for submissions after Shutdown began
	ErrClosed = errors.New("bridge: closed")
)

// ShutdownError means the worker failed to halt within the shutdown bound.
type ShutdownError struct {
	Timeout time.Duration
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("bridge: worker did not stop within %s", e.Timeout)
}

// Task is one unit of work submitted to the worker.
type Task func() (any, error)

type result struct {
	value any
	err   error
}

type call struct {
	fn Task
	// Buffered: the worker's send never blocks when the caller has
	// already given up.
	out chan result
}

// Bridge owns the background worker and its task queue.
type Bridge struct {
	tasks chan call

	// intake guards tasks against close. Submitters hold it shared, so they
	// never serialize each other; each releases within its own deadline.
	intake sync.RWMutex
	closed bool

	done chan struct{}
}

// New starts the worker. queueSize bounds pending submissions; submitters
// block while the queue is full.
func New(queueSize int) *Bridge {
	if queueSize <= 0 {
		queueSize = 16
	}
	b := &Bridge{
		tasks: make(chan call, queueSize),
		done:  make(chan struct{}),
	}
	go b.worker()
	return b
}

func (b *Bridge) worker() {
	defer close(b.done)

	log := logger.Component("bridge")
	for c := range b.tasks {
		value, err := c.fn()
		select {
		case c.out <- result{value: value, err: err}:
		default:
			// Caller timed out; result is discarded.
			if err != nil {
				log.Debug("discarding result of abandoned call", "error", err)
			}
		}
	}
}

// Call runs fn on the worker and blocks for at most timeout. The deadline
// covers the enqueue too: a full queue never holds the caller past it.
func (b *Bridge) Call(fn Task, timeout time.Duration) (any, error) {
	c := call{fn: fn, out: make(chan result, 1)}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	b.intake.RLock()
	if b.closed {
		b.intake.RUnlock()
		return nil, ErrClosed
	}
	select {
	case b.tasks <- c:
		b.intake.RUnlock()
	case <-timer.C:
		b.intake.RUnlock()
		return nil, ErrTimeout
	}

	select {
	case r := <-c.out:
		return r.value, r.err
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Do is the typed variant of Call
func Do[T any](b *Bridge, timeout time.Duration, fn func() (T, error)) (T, error) {
	value, err := b.Call(func() (any, error) {
		return fn()
	}, timeout)
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := value.(T)
	return v, nil
}

// Run is Call for operations without a result
func (b *Bridge) Run(fn func() error, timeout time.Duration) error {
	_, err := b.Call(func() (any, error) {
		return nil, fn()
	}, timeout)
	return err
}

// Shutdown stops accepting submissions, lets the worker drain its queue and
// joins it within the given bound. Failure to join is a resource leak and
// is surfaced as ShutdownError.
func (b *Bridge) Shutdown(timeout time.Duration) error {
	b.intake.Lock()
	if !b.closed {
		b.closed = true
		close(b.tasks)
	}
	b.intake.Unlock()

	select {
	case <-b.done:
		return nil
	case <-time.After(timeout):
		return &ShutdownError{Timeout: timeout}
	}
}

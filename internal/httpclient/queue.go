package httpclient

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrQueueClosed is returned by Add once the queue has been shut down.
var ErrQueueClosed = errors.New("httpclient: queue closed")

type job struct {
	fn   func() error
	done chan error
}

// Queue serializes outbound calls strictly one at a time, in submission
// order, waiting minDelay plus a bounded random jitter between the completion
// of one job and the start of the next. Upstream exchange APIs impose per-IP
// rate limits; fanning requests out concurrently trips 429s, so latency is
// traded for rate-limit safety.
type Queue struct {
	minDelay       time.Duration
	maxRandomDelay time.Duration

	jobs chan job
	quit chan struct{}
	once sync.Once
}

// NewQueue constructs a Queue and starts its worker goroutine.
func NewQueue(minDelay, maxRandomDelay time.Duration) *Queue {
	q := &Queue{
		minDelay:       minDelay,
		maxRandomDelay: maxRandomDelay,
		jobs:           make(chan job),
		quit:           make(chan struct{}),
	}
	go q.loop()
	return q
}

// Add enqueues fn and blocks until it has run, returning fn's error. A
// failing job never stalls the queue; subsequent jobs still execute.
func (q *Queue) Add(ctx context.Context, fn func() error) error {
	j := job{fn: fn, done: make(chan error, 1)}

	select {
	case q.jobs <- j:
	case <-q.quit:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		// The job may still run; its result is discarded.
		return ctx.Err()
	}
}

// Close stops the worker. Jobs not yet started are abandoned with
// ErrQueueClosed on their pending Add calls.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.quit) })
}

func (q *Queue) loop() {
	for {
		select {
		case <-q.quit:
			return
		case j := <-q.jobs:
			j.done <- j.fn()
			if !q.pause() {
				return
			}
		}
	}
}

// pause waits the configured inter-job delay; it returns false when the queue
// was closed while waiting.
func (q *Queue) pause() bool {
	delay := q.minDelay
	if q.maxRandomDelay > 0 {
		delay += time.Duration(rand.Int63n(int64(q.maxRandomDelay)))
	}
	if delay <= 0 {
		return true
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-q.quit:
		return false
	case <-timer.C:
		return true
	}
}

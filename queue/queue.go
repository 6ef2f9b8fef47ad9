// Package queue implements the bounded, thread-safe FIFO used between the
// pipeline's stages (Qc between Intake and Converter, Qs between Converter
// and Sender): many producers, many consumers, non-blocking enqueue, and a
// blocking dequeue bounded to a short timeout so a consumer can observe
// cancellation between dequeues.
//
// A buffered channel already gives FIFO ordering and safe concurrent
// access, so that's the primitive underneath -- no separate mutex is needed
// for the hot path. A small atomic counter tracks cumulative overflow drops
// for observability, since enqueue-side overflow on Qs (the converter
// forwarding into a full send queue) is a pipeline bug worth a warning log,
// not silent data loss.
package queue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/alephprint/gsprintd/job"
)

// Queue is a bounded FIFO of *job.Job.
type Queue struct {
	ch       chan *job.Job
	capacity int
	dropped  atomic.Int64
}

// New creates a Queue with the given capacity. A capacity <= 0 panics --
// an unbounded queue defeats the backpressure intake relies on.
func New(capacity int) *Queue {
	if capacity <= 0 {
		panic("queue: capacity must be positive")
	}
	return &Queue{
		ch:       make(chan *job.Job, capacity),
		capacity: capacity,
	}
}

// TryEnqueue appends j to the queue if capacity allows, returning false
// immediately if the queue is full. It never blocks.
func (q *Queue) TryEnqueue(j *job.Job) bool {
	select {
	case q.ch <- j:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Dequeue waits up to timeout for a job to become available. ok is false if
// the timeout elapsed or ctx was cancelled first, in which case the caller
// should loop back around to re-check its own cancellation state.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (j *job.Job, ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case j = <-q.ch:
		return j, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Len reports the number of jobs currently queued.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Capacity reports the configured maximum queue length.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Dropped reports the cumulative number of TryEnqueue calls that found the
// queue full.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Package queue runs tasks one at a time in submission order.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue closed")

// Task is one unit of work. The context is the one passed to Start.
type Task func(context.Context) error

// Queue is a single-worker FIFO.
type Queue struct {
	mu     sync.Mutex
	closed bool
	ch     chan Task
	onErr  func(error)
}

// New returns a queue buffering up to size pending tasks. onErr, when not
// nil, receives every task error.
func New(size int, onErr func(error)) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan Task, size), onErr: onErr}
}

// Start runs tasks until ctx is done or the queue is closed and drained.
func (q *Queue) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-q.ch:
			if !ok {
				return
			}
			if task == nil {
				continue
			}
			if err := task(ctx); err != nil && q.onErr != nil {
				q.onErr(err)
			}
		}
	}
}

// Enqueue appends task, blocking while the buffer is full.
func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks. Tasks already queued still run.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

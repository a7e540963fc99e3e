// Package commandbuffer implements the single-consumer FIFO task queue
// used to serialize terminal-status callbacks and other side effects
// coming out of concurrent file-transfer sessions: a single goroutine
// drains an unbounded FIFO of queued funcs one at a time, and Close
// waits for the drain to finish.
package commandbuffer

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of work run by the buffer's consumer goroutine.
type Task func(ctx context.Context)

// Buffer is a single-consumer FIFO queue of Tasks. Pushed tasks run in
// the order they were pushed, one at a time, on a dedicated goroutine —
// this is what lets FileTransferSession callbacks be emitted without
// holding a session's own lock.
type Buffer struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu     sync.Mutex
	queue  []Task
	notify chan struct{}
	closed bool
}

// New starts a Buffer's consumer goroutine. Call Close to stop
// accepting new work and wait for already-queued tasks to drain.
func New(parent context.Context) *Buffer {
	ctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(ctx)
	b := &Buffer{
		ctx:    gctx,
		cancel: cancel,
		group:  g,
		notify: make(chan struct{}, 1),
	}
	g.Go(b.run)
	return b
}

// Push enqueues fn to run after every task already queued. Push after
// Close is a no-op: no new work should begin once a session starts
// shutting down.
func (b *Buffer) Push(fn Task) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, fn)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *Buffer) run() error {
	for {
		task, ok := b.pop()
		if ok {
			task(b.ctx)
			continue
		}
		select {
		case <-b.ctx.Done():
			// Drain whatever is left before exiting; cancellation stops
			// new Push calls but must not drop already-queued work.
			for {
				task, ok := b.pop()
				if !ok {
					return nil
				}
				task(context.Background())
			}
		case <-b.notify:
		}
	}
}

func (b *Buffer) pop() (Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil, false
	}
	task := b.queue[0]
	b.queue = b.queue[1:]
	return task, true
}

// Close stops accepting new work and blocks until every already-queued
// task has run.
func (b *Buffer) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cancel()
	return b.group.Wait()
}

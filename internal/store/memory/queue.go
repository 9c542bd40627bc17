package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

var errQueueClosed = errors.New("queue closed")

// Queue is a bounded in-memory task queue with context-aware operations.
// Delayed tasks ride a timer onto the same channel. The task channel is never
// closed; shutdown is signaled through done so producers racing Close cannot
// panic on a closed channel.
type Queue struct {
	ch        chan scrape.Task
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch:   make(chan scrape.Task, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a task or returns if the context ends or the queue closes.
func (q *Queue) Enqueue(ctx context.Context, task scrape.Task) error {
	select {
	case <-q.done:
		return errQueueClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return errQueueClosed
	case q.ch <- task:
		return nil
	}
}

// EnqueueDelayed delivers the task after the delay elapses.
func (q *Queue) EnqueueDelayed(_ context.Context, task scrape.Task, delay time.Duration) error {
	time.AfterFunc(delay, func() {
		select {
		case <-q.done:
		case q.ch <- task:
		default: // full queue drops the re-check; caller re-schedules
		}
	})
	return nil
}

// Dequeue pops the next task, respecting context cancellation. Tasks buffered
// before Close are still delivered.
func (q *Queue) Dequeue(ctx context.Context) (scrape.Task, error) {
	select {
	case task := <-q.ch:
		return task, nil
	default:
	}
	select {
	case <-ctx.Done():
		return scrape.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return scrape.Task{}, errQueueClosed
	case task := <-q.ch:
		return task, nil
	}
}

// Ack is a no-op: receiving from the channel already removed the task, and an
// in-process queue cannot outlive a consumer crash anyway.
func (q *Queue) Ack(context.Context, scrape.Task) error { return nil }

// Close stops the queue for shutdown. Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

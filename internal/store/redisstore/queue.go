package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

const (
	readyKey      = "queue:tasks"
	delayedKey    = "queue:delayed"
	processingKey = "queue:processing"

	// pickedAtKey records when each in-flight task was handed to a consumer,
	// scored by pickup time, so crashed consumers can be detected.
	pickedAtKey = "queue:processing:picked"

	// popTimeout bounds each blocking pop so Dequeue can promote due delayed
	// tasks, reclaim stale in-flight ones, and observe context cancellation
	// between waits.
	popTimeout = 2 * time.Second

	// reclaimAfter is how long a task may sit un-acked on the processing list
	// before it is assumed orphaned and pushed back to the ready list. Must
	// exceed the longest legitimate scrape.
	reclaimAfter = 5 * time.Minute
)

// Queue is a Redis-backed named-task queue: a list for ready tasks, a sorted
// set scored by due time for delayed ones, and a processing list holding
// tasks between Dequeue and Ack. A task a consumer dies on is reclaimed after
// reclaimAfter, so delivery is at least once; consumers dedupe by task
// payload identity.
type Queue struct {
	client *redis.Client
}

// NewQueue wraps an existing Redis client.
func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue makes the task immediately available to consumers.
func (q *Queue) Enqueue(ctx context.Context, task scrape.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.Name, err)
	}
	if err := q.client.LPush(ctx, readyKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Name, err)
	}
	return nil
}

// EnqueueDelayed schedules the task to become available after delay.
func (q *Queue) EnqueueDelayed(ctx context.Context, task scrape.Task, delay time.Duration) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.Name, err)
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, delayedKey, redis.Z{Score: due, Member: payload}).Err(); err != nil {
		return fmt.Errorf("enqueue delayed %s: %w", task.Name, err)
	}
	return nil
}

// Dequeue blocks until a task is available or ctx is done. The task is moved
// to the processing list rather than removed, so a consumer crash before Ack
// leaves it recoverable. Due delayed tasks are promoted and stale in-flight
// ones reclaimed before each wait.
func (q *Queue) Dequeue(ctx context.Context) (scrape.Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return scrape.Task{}, err
		}
		if err := q.promoteDue(ctx); err != nil {
			return scrape.Task{}, err
		}
		if err := q.reclaimStale(ctx); err != nil {
			return scrape.Task{}, err
		}

		raw, err := q.client.BLMove(ctx, readyKey, processingKey, "RIGHT", "LEFT", popTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return scrape.Task{}, fmt.Errorf("dequeue: %w", err)
		}

		pickedAt := redis.Z{Score: float64(time.Now().UnixMilli()), Member: raw}
		if err := q.client.ZAdd(ctx, pickedAtKey, pickedAt).Err(); err != nil {
			return scrape.Task{}, fmt.Errorf("record pickup: %w", err)
		}

		var task scrape.Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			// An undecodable member can never be acked; drop it rather than
			// reclaim it forever.
			q.client.LRem(ctx, processingKey, 1, raw)
			q.client.ZRem(ctx, pickedAtKey, raw)
			return scrape.Task{}, fmt.Errorf("unmarshal task: %w", err)
		}
		return task, nil
	}
}

// Ack removes a handled task from the processing list. Tasks round-trip
// through compact JSON byte-for-byte, so re-marshaling reproduces the exact
// member to remove.
func (q *Queue) Ack(ctx context.Context, task scrape.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.Name, err)
	}
	pipe := q.client.Pipeline()
	pipe.LRem(ctx, processingKey, 1, payload)
	pipe.ZRem(ctx, pickedAtKey, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack %s: %w", task.Name, err)
	}
	return nil
}

// promoteDue moves delayed tasks whose due time has passed onto the ready
// list. LPush before ZRem can duplicate a task if two consumers race, never
// lose one; consumers already tolerate duplicates.
func (q *Queue) promoteDue(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	members, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return fmt.Errorf("scan delayed tasks: %w", err)
	}

	for _, member := range members {
		if err := q.client.LPush(ctx, readyKey, member).Err(); err != nil {
			return fmt.Errorf("promote delayed task: %w", err)
		}
		if err := q.client.ZRem(ctx, delayedKey, member).Err(); err != nil {
			return fmt.Errorf("promote delayed task: %w", err)
		}
	}
	return nil
}

// reclaimStale pushes tasks whose consumer has gone quiet past reclaimAfter
// back onto the ready list. Ordered LPush, LRem, ZRem: a crash mid-reclaim
// duplicates a task, never loses one.
func (q *Queue) reclaimStale(ctx context.Context) error {
	cutoff := fmt.Sprintf("%d", time.Now().Add(-reclaimAfter).UnixMilli())
	members, err := q.client.ZRangeByScore(ctx, pickedAtKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: cutoff,
	}).Result()
	if err != nil {
		return fmt.Errorf("scan in-flight tasks: %w", err)
	}

	for _, member := range members {
		if err := q.client.LPush(ctx, readyKey, member).Err(); err != nil {
			return fmt.Errorf("reclaim task: %w", err)
		}
		if err := q.client.LRem(ctx, processingKey, 1, member).Err(); err != nil {
			return fmt.Errorf("reclaim task: %w", err)
		}
		if err := q.client.ZRem(ctx, pickedAtKey, member).Err(); err != nil {
			return fmt.Errorf("reclaim task: %w", err)
		}
	}
	return nil
}

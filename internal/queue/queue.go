// Package queue implements the durable job transport over Redis.
// Each named queue is a Redis list pushed by producers and popped by
// workers; delayed jobs park in a per-queue sorted set scored by their
// ready time until a worker promotes them onto the list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/profile-enricher/internal/errors"
)

// Envelope wraps a job payload on the wire.
type Envelope struct {
	ID         string          `json:"id"`
	JobKind    string          `json:"jobKind"`
	Args       json.RawMessage `json:"args"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// Decode unmarshals the envelope's args into v.
func (e *Envelope) Decode(v interface{}) error {
	return json.Unmarshal(e.Args, v)
}

// Queue is the Redis-backed job queue.
type Queue struct {
	client redis.UniversalClient
}

// New creates a queue over an existing Redis client.
func New(client redis.UniversalClient) *Queue {
	return &Queue{client: client}
}

func listKey(name string) string    { return "queue:" + name }
func delayedKey(name string) string { return "queue:" + name + ":delayed" }

func envelope(jobKind string, args interface{}) (*Envelope, []byte, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, nil, apperrors.NewQueueError("marshal args", err)
	}
	env := &Envelope{
		ID:         uuid.NewString(),
		JobKind:    jobKind,
		Args:       raw,
		EnqueuedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, nil, apperrors.NewQueueError("marshal envelope", err)
	}
	return env, payload, nil
}

// Enqueue submits a job to the named queue.
func (q *Queue) Enqueue(ctx context.Context, queueName, jobKind string, args interface{}) error {
	_, payload, err := envelope(jobKind, args)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, listKey(queueName), payload).Err(); err != nil {
		return apperrors.NewQueueError("enqueue", err)
	}
	return nil
}

// EnqueueIn submits a job that becomes ready after the given delay.
func (q *Queue) EnqueueIn(ctx context.Context, delay time.Duration, queueName, jobKind string, args interface{}) error {
	_, payload, err := envelope(jobKind, args)
	if err != nil {
		return err
	}
	readyAt := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, delayedKey(queueName), redis.Z{Score: readyAt, Member: payload}).Err(); err != nil {
		return apperrors.NewQueueError("enqueue delayed", err)
	}
	return nil
}

// Dequeue blocks up to timeout for a job on any of the named queues.
// Queue order is priority order. A nil envelope with a nil error means
// the timeout elapsed with nothing to do.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration, queueNames ...string) (*Envelope, string, error) {
	keys := make([]string, len(queueNames))
	for i, name := range queueNames {
		keys[i] = listKey(name)
	}

	res, err := q.client.BRPop(ctx, timeout, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", nil
		}
		return nil, "", apperrors.NewQueueError("dequeue", err)
	}
	if len(res) != 2 {
		return nil, "", apperrors.NewQueueError("dequeue", fmt.Errorf("unexpected BRPOP reply of %d elements", len(res)))
	}

	var env Envelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return nil, "", apperrors.NewQueueError("decode envelope", err)
	}

	queueName := res[0][len("queue:"):]
	return &env, queueName, nil
}

// PromoteDelayed moves every due delayed job onto the named queue's
// list and returns how many were promoted. Promotion is not atomic
// across members; a crash mid-promotion leaves jobs parked, never
// duplicated from this path alone.
func (q *Queue) PromoteDelayed(ctx context.Context, queueName string) (int, error) {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())

	members, err := q.client.ZRangeByScore(ctx, delayedKey(queueName), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return 0, apperrors.NewQueueError("list due delayed jobs", err)
	}

	promoted := 0
	for _, member := range members {
		removed, err := q.client.ZRem(ctx, delayedKey(queueName), member).Result()
		if err != nil {
			return promoted, apperrors.NewQueueError("remove delayed job", err)
		}
		if removed == 0 {
			// Another promoter claimed it first.
			continue
		}
		if err := q.client.LPush(ctx, listKey(queueName), member).Err(); err != nil {
			return promoted, apperrors.NewQueueError("promote delayed job", err)
		}
		promoted++
	}

	return promoted, nil
}

// Len returns the number of ready jobs on the named queue.
func (q *Queue) Len(ctx context.Context, queueName string) (int64, error) {
	n, err := q.client.LLen(ctx, listKey(queueName)).Result()
	if err != nil {
		return 0, apperrors.NewQueueError("queue length", err)
	}
	return n, nil
}

// DelayedLen returns the number of parked delayed jobs for the queue.
func (q *Queue) DelayedLen(ctx context.Context, queueName string) (int64, error) {
	n, err := q.client.ZCard(ctx, delayedKey(queueName)).Result()
	if err != nil {
		return 0, apperrors.NewQueueError("delayed queue length", err)
	}
	return n, nil
}

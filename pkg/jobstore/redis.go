package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"

	"github.com/ladleworks/reelchef/pkg/pipeline"
)

const redisKeyPrefix = "reelchef:job:"

// Redis stores job snapshots as JSON values with a retention TTL.
// Every process sharing the Redis instance sees the same jobs, which
// is what lets the HTTP surface and the workers run separately.
type Redis struct {
	client    redis.Cmdable
	retention time.Duration
}

// NewRedis creates a Redis-backed store. retention <= 0 uses the
// default.
func NewRedis(client redis.Cmdable, retention time.Duration) *Redis {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Redis{client: client, retention: retention}
}

func (r *Redis) Put(ctx context.Context, job *pipeline.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := r.client.Set(redisKeyPrefix+job.ID, payload, r.retention).Err(); err != nil {
		return fmt.Errorf("write job %s: %w", job.ID, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, id string) (*pipeline.Job, error) {
	payload, err := r.client.Get(redisKeyPrefix + id).Bytes()
	if err == redis.Nil {
		return nil, pipeline.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read job %s: %w", id, err)
	}
	var job pipeline.Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	return r.client.Del(redisKeyPrefix + id).Err()
}

// DefaultQueueKey is the Redis list shared by submitters and workers.
const DefaultQueueKey = "reelchef:queue"

// RedisQueue is a job queue on a Redis list. The HTTP process pushes
// accepted job ids, worker processes pop them.
type RedisQueue struct {
	client redis.Cmdable
	key    string
}

var _ pipeline.Queue = (*RedisQueue)(nil)

// NewRedisQueue creates a queue on the given list key. An empty key
// uses the default.
func NewRedisQueue(client redis.Cmdable, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, id string) error {
	if err := q.client.LPush(q.key, id).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", id, err)
	}
	return nil
}

// Dequeue blocks until a job id is available or ctx is cancelled. The
// blocking pop uses a short timeout so cancellation is noticed.
func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		res, err := q.client.BRPop(time.Second, q.key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("dequeue: %w", err)
		}
		return res[1], nil
	}
}

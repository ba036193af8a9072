package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a FIFO of render ids: LPUSH to enqueue, BRPOP to take.
type RedisQueue struct {
	rdb       redis.UniversalClient
	queueName string
}

func NewRedisQueue(rdb redis.UniversalClient, queueName string) *RedisQueue {
	return &RedisQueue{rdb: rdb, queueName: queueName}
}

// Push enqueues a render id.
func (q *RedisQueue) Push(ctx context.Context, renderID string) error {
	return q.rdb.LPush(ctx, q.queueName, renderID).Err()
}

// Pop blocks up to timeout for the next id. An expired wait returns "", nil.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.queueName).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

// Len reports the queue depth.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.queueName).Result()
}

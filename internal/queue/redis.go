package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds configuration for the Redis queue provider.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// Password is the Redis AUTH password (empty for none).
	Password string

	// Key is the base key; the provider derives ready/in-flight/dead keys
	// from it.
	Key string

	// VisibilityTimeout is how long a received message stays invisible
	// before it is re-queued for another delivery.
	VisibilityTimeout time.Duration

	// MaxDeliveries is the delivery count past which a message is parked
	// in the dead-letter list instead of being re-queued.
	MaxDeliveries int
}

// envelope is the on-wire wrapper stored in Redis. Deliveries rides along
// so redeliveries carry their count without a separate bookkeeping key.
type envelope struct {
	ID         string `json:"id"`
	Body       []byte `json:"body"`
	Deliveries int    `json:"deliveries"`
}

// RedisQueue implements the Queue interface on Redis lists.
//
// Layout:
//   - {key}:ready     list of envelopes awaiting delivery
//   - {key}:inflight  hash receipt -> envelope for delivered messages
//   - {key}:expiry    zset receipt -> visibility deadline (unix seconds)
//   - {key}:dead      list of envelopes past MaxDeliveries
//
// Receive reaps expired in-flight deliveries back onto the ready list
// before popping, which gives SQS-like visibility-timeout semantics. The
// reap is not safe against multiple competing consumer processes racing on
// the same receipt; run one consumer process per queue key.
type RedisQueue struct {
	client            *redis.Client
	key               string
	visibilityTimeout time.Duration
	maxDeliveries     int
	logger            *slog.Logger
}

// NewRedisQueue creates a new RedisQueue and verifies connectivity.
func NewRedisQueue(cfg RedisConfig, logger *slog.Logger) (*RedisQueue, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis queue key is required")
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 2 * time.Minute
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 5
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	logger.Info("initialized redis queue",
		"addr", cfg.Addr,
		"key", cfg.Key,
		"visibility_timeout", cfg.VisibilityTimeout,
		"max_deliveries", cfg.MaxDeliveries,
	)

	return &RedisQueue{
		client:            client,
		key:               cfg.Key,
		visibilityTimeout: cfg.VisibilityTimeout,
		maxDeliveries:     cfg.MaxDeliveries,
		logger:            logger,
	}, nil
}

// Close closes the underlying Redis client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) readyKey() string    { return q.key + ":ready" }
func (q *RedisQueue) inflightKey() string { return q.key + ":inflight" }
func (q *RedisQueue) expiryKey() string   { return q.key + ":expiry" }
func (q *RedisQueue) deadKey() string     { return q.key + ":dead" }

// Send enqueues a payload onto the ready list.
func (q *RedisQueue) Send(ctx context.Context, body []byte) (string, error) {
	env := envelope{ID: uuid.NewString(), Body: body}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", &QueueError{Op: "Send", Err: err}
	}
	if err := q.client.LPush(ctx, q.readyKey(), raw).Err(); err != nil {
		return "", &QueueError{Op: "Send", Err: err}
	}
	return env.ID, nil
}

// Receive re-queues expired deliveries, then pops up to max envelopes.
// When the ready list is empty and wait is positive, it blocks up to wait
// for the first message.
func (q *RedisQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max < 1 {
		return nil, nil
	}

	if err := q.reapExpired(ctx); err != nil {
		return nil, &QueueError{Op: "Receive", Err: err}
	}

	var raws [][]byte
	for len(raws) < max {
		raw, err := q.client.RPop(ctx, q.readyKey()).Bytes()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return nil, &QueueError{Op: "Receive", Err: err}
		}
		raws = append(raws, raw)
	}

	// Long-poll for the first message only; once something arrived we
	// return what we have rather than waiting for a full batch.
	if len(raws) == 0 && wait > 0 {
		res, err := q.client.BRPop(ctx, wait, q.readyKey()).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, &QueueError{Op: "Receive", Err: err}
		}
		if len(res) == 2 {
			raws = append(raws, []byte(res[1]))
		}
	}

	messages := make([]Message, 0, len(raws))
	deadline := float64(time.Now().Add(q.visibilityTimeout).Unix())
	for _, raw := range raws {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			q.logger.Error("dropping undecodable queue entry", "error", err)
			continue
		}
		env.Deliveries++

		receipt := uuid.NewString()
		stored, err := json.Marshal(env)
		if err != nil {
			return nil, &QueueError{Op: "Receive", Err: err}
		}

		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, q.inflightKey(), receipt, stored)
		pipe.ZAdd(ctx, q.expiryKey(), redis.Z{Score: deadline, Member: receipt})
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, &QueueError{Op: "Receive", Err: err}
		}

		messages = append(messages, Message{
			ID:            env.ID,
			Body:          env.Body,
			ReceiptHandle: receipt,
			DeliveryCount: env.Deliveries,
		})
	}
	return messages, nil
}

// Delete acknowledges a delivery, removing it from the in-flight set.
func (q *RedisQueue) Delete(ctx context.Context, receiptHandle string) error {
	pipe := q.client.TxPipeline()
	pipe.HDel(ctx, q.inflightKey(), receiptHandle)
	pipe.ZRem(ctx, q.expiryKey(), receiptHandle)
	if _, err := pipe.Exec(ctx); err != nil {
		return &QueueError{Op: "Delete", Err: err}
	}
	return nil
}

// reapExpired moves deliveries whose visibility window has lapsed back to
// the ready list, or to the dead-letter list once they have exhausted
// MaxDeliveries.
func (q *RedisQueue) reapExpired(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	receipts, err := q.client.ZRangeByScore(ctx, q.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return err
	}

	for _, receipt := range receipts {
		raw, err := q.client.HGet(ctx, q.inflightKey(), receipt).Bytes()
		if errors.Is(err, redis.Nil) {
			// Acknowledged between the range scan and this lookup.
			q.client.ZRem(ctx, q.expiryKey(), receipt)
			continue
		}
		if err != nil {
			return err
		}

		var env envelope
		dest := q.readyKey()
		if err := json.Unmarshal(raw, &env); err == nil && env.Deliveries >= q.maxDeliveries {
			dest = q.deadKey()
			q.logger.Warn("message exhausted deliveries, moving to dead letter",
				"message_id", env.ID,
				"deliveries", env.Deliveries,
			)
		}

		pipe := q.client.TxPipeline()
		pipe.LPush(ctx, dest, raw)
		pipe.HDel(ctx, q.inflightKey(), receipt)
		pipe.ZRem(ctx, q.expiryKey(), receipt)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

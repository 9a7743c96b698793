// Package queue provides the durable work-queue abstraction between the
// admission path and the consumer.
//
// This package defines a Queue interface with implementations for:
// - SQSQueue: AWS SQS for production
// - RedisQueue: Redis lists for development and self-hosted deployments
//
// Both providers are at-least-once: a received message stays invisible for
// a visibility window and reappears if it is not deleted in time. Consumers
// must therefore tolerate redelivery.
package queue

import (
	"context"
	"fmt"
	"time"
)

// Message is a single delivered queue entry.
type Message struct {
	// ID is the provider-assigned message identifier.
	ID string

	// Body is the raw message payload.
	Body []byte

	// ReceiptHandle identifies this delivery for acknowledgment. It is
	// only valid until the visibility window expires.
	ReceiptHandle string

	// DeliveryCount is how many times this message has been delivered,
	// including this delivery. Zero when the provider doesn't report it.
	DeliveryCount int
}

// Queue is the work-queue capability.
//
// Implementations:
// - SQSQueue: AWS SQS
// - RedisQueue: Redis-backed queue with visibility timeouts
type Queue interface {
	// Send enqueues a payload and returns the provider message id.
	Send(ctx context.Context, body []byte) (string, error)

	// Receive returns up to max messages, long-polling for up to wait
	// when the queue is empty. An empty slice is not an error.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)

	// Delete acknowledges a delivery. Only delete after the message has
	// been fully processed; anything else breaks at-least-once delivery.
	Delete(ctx context.Context, receiptHandle string) error
}

// Provider constants
const (
	// ProviderSQS identifies the AWS SQS queue provider.
	ProviderSQS = "sqs"

	// ProviderRedis identifies the Redis queue provider.
	ProviderRedis = "redis"
)

// QueueError wraps queue operation errors with the failed operation.
type QueueError struct {
	Op  string // operation that failed (e.g., "Send", "Receive")
	Err error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue %s: %v", e.Op, e.Err)
}

func (e *QueueError) Unwrap() error {
	return e.Err
}

// Package consumer drains the call queue with a bounded pool of
// in-flight message handlers.
//
// A single control loop owns all queue receives. Each cycle it asks the
// queue for at most as many messages as it has spare capacity for, so
// the number of concurrently processing messages never exceeds the
// configured limit and no received message waits behind a full pool.
// The loop survives every error: queue failures and processing failures
// are logged and the next cycle proceeds after the idle delay.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/voxwatch/voxwatch/internal/metrics"
	"github.com/voxwatch/voxwatch/internal/queue"
)

// Processor handles one queue message body. A nil return acknowledges
// the message; an error leaves it for redelivery.
type Processor interface {
	ProcessUpload(ctx context.Context, body []byte) error
}

// Consumer polls the queue and dispatches messages to the processor.
type Consumer struct {
	queue     queue.Queue
	processor Processor
	config    Config
	logger    *slog.Logger

	sem      *semaphore.Weighted
	inFlight atomic.Int64

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a Consumer. Start it with Start() and stop it with Stop().
func New(q queue.Queue, processor Processor, config Config, logger *slog.Logger) (*Consumer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Consumer{
		queue:     q,
		processor: processor,
		config:    config,
		logger:    logger,
		sem:       semaphore.NewWeighted(int64(config.Concurrency)),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start launches the control loop in a background goroutine.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()

	c.logger.Info("consumer started",
		"concurrency", c.config.Concurrency,
		"poll_wait", c.config.PollWait,
	)
}

// Stop signals the control loop to exit and waits for in-flight
// messages, up to the configured shutdown wait.
func (c *Consumer) Stop() {
	c.logger.Info("stopping consumer...")
	close(c.stopCh)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("consumer stopped gracefully")
	case <-time.After(c.config.ShutdownWait):
		c.logger.Warn("consumer shutdown wait exceeded, some messages may still be processing",
			"in_flight", c.inFlight.Load(),
		)
	}
}

// InFlight returns the number of messages currently being processed.
func (c *Consumer) InFlight() int {
	return int(c.inFlight.Load())
}

// run is the control loop. It never returns except on shutdown.
func (c *Consumer) run(ctx context.Context) {
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.cycle(ctx)

		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(c.config.IdleDelay):
		}
	}
}

// cycle performs one poll-and-dispatch pass.
func (c *Consumer) cycle(ctx context.Context) {
	spare := c.config.Concurrency - int(c.inFlight.Load())
	if spare <= 0 {
		// Pool is full; do not touch the queue until a slot frees up.
		return
	}

	messages, err := c.queue.Receive(ctx, spare, c.config.PollWait)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Error("queue receive failed", "error", err)
		return
	}
	if len(messages) == 0 {
		return
	}

	metrics.QueueMessagesReceivedTotal.Add(float64(len(messages)))

	for _, msg := range messages {
		// Cannot block: the receive above was bounded by spare capacity.
		if !c.sem.TryAcquire(1) {
			c.logger.Error("no slot for received message, leaving it for redelivery",
				"message_id", msg.ID,
			)
			break
		}

		c.inFlight.Add(1)
		metrics.JobsInFlight.Inc()

		c.wg.Add(1)
		go c.handle(ctx, msg)
	}
}

// handle processes a single message and acknowledges it on success.
// The slot is released unconditionally, whatever the outcome.
func (c *Consumer) handle(ctx context.Context, msg queue.Message) {
	defer func() {
		c.sem.Release(1)
		c.inFlight.Add(-1)
		metrics.JobsInFlight.Dec()
		c.wg.Done()
	}()

	logger := c.logger.With("message_id", msg.ID, "delivery_count", msg.DeliveryCount)
	start := time.Now()

	procCtx, cancel := context.WithTimeout(ctx, c.config.ProcessTimeout)
	defer cancel()

	if err := c.processor.ProcessUpload(procCtx, msg.Body); err != nil {
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		logger.Error("message processing failed, leaving message for redelivery",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}

	if err := c.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		// The work itself succeeded; redelivery will be a no-op thanks
		// to idempotent persistence.
		metrics.JobsTotal.WithLabelValues("ack_failed").Inc()
		logger.Error("failed to acknowledge processed message", "error", err)
		return
	}

	metrics.JobsTotal.WithLabelValues("succeeded").Inc()
	metrics.JobDuration.Observe(time.Since(start).Seconds())
	metrics.QueueMessagesDeletedTotal.Inc()

	logger.Info("message processed",
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

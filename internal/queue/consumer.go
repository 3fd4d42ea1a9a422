package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enrichment-worker/internal/model"
)

const (
	defaultBlockTimeout = 20 * time.Second
	defaultVisibility   = 5 * time.Minute

	// maxPendingCheck caps how many pending entries one reclaim pass inspects.
	maxPendingCheck = 100
)

// ConsumerConfig holds settings for a single worker's queue consumer.
type ConsumerConfig struct {
	ConsumerID   string        // unique per worker instance, required
	BlockTimeout time.Duration // long-poll duration (0 = 20s)
	Visibility   time.Duration // min idle before another consumer may reclaim (0 = 5m)
}

// Consumer reads work items one at a time for a single worker instance.
type Consumer struct {
	queue        *Queue
	consumerID   string
	blockTimeout time.Duration
	visibility   time.Duration
}

// NewConsumer creates a Consumer and ensures the consumer group exists.
func NewConsumer(ctx context.Context, q *Queue, cfg ConsumerConfig) (*Consumer, error) {
	if cfg.ConsumerID == "" {
		return nil, eris.New("queue: consumer ID is required")
	}

	blockTimeout := cfg.BlockTimeout
	if blockTimeout <= 0 {
		blockTimeout = defaultBlockTimeout
	}
	visibility := cfg.Visibility
	if visibility <= 0 {
		visibility = defaultVisibility
	}

	if err := q.EnsureGroup(ctx); err != nil {
		return nil, err
	}

	return &Consumer{
		queue:        q,
		consumerID:   cfg.ConsumerID,
		blockTimeout: blockTimeout,
		visibility:   visibility,
	}, nil
}

// Receive returns the next work item, blocking up to the configured poll
// timeout. It returns (nil, nil) when no message arrived in time, which the
// worker counts as an idle poll. Entries left pending by a dead or stalled
// worker past the visibility window are reclaimed before new entries are
// read, so redelivery beats fresh work.
func (c *Consumer) Receive(ctx context.Context) (*model.WorkItem, error) {
	if item := c.reclaimPending(ctx); item != nil {
		return item, nil
	}

	streams, err := c.queue.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.queue.group,
		Consumer: c.consumerID,
		Streams:  []string{c.queue.stream, ">"},
		Count:    1,
		Block:    c.blockTimeout,
	}).Result()
	if err != nil {
		if eris.Is(err, redis.Nil) {
			return nil, nil // poll timeout, no message
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, eris.Wrap(err, "queue: xreadgroup")
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if item := c.parseOrDrop(ctx, msg); item != nil {
				return item, nil
			}
		}
	}
	return nil, nil
}

// Ack acknowledges a processed work item so it is never redelivered.
func (c *Consumer) Ack(ctx context.Context, receiptID string) error {
	if receiptID == "" {
		return eris.New("queue: receipt ID is required")
	}
	if err := c.queue.client.XAck(ctx, c.queue.stream, c.queue.group, receiptID).Err(); err != nil {
		return eris.Wrap(err, "queue: xack")
	}
	return nil
}

// reclaimPending claims the oldest entry whose idle time exceeds the
// visibility window. Errors are logged and treated as "nothing to reclaim":
// a reclaim failure must not stop the worker from reading new entries.
func (c *Consumer) reclaimPending(ctx context.Context) *model.WorkItem {
	pending, err := c.queue.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.queue.stream,
		Group:  c.queue.group,
		Start:  "-",
		End:    "+",
		Count:  maxPendingCheck,
	}).Result()
	if err != nil {
		if !eris.Is(err, redis.Nil) && ctx.Err() == nil {
			zap.L().Warn("queue: pending lookup failed", zap.Error(err))
		}
		return nil
	}

	for _, entry := range pending {
		if entry.Idle < c.visibility {
			continue
		}

		claimed, claimErr := c.queue.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.queue.stream,
			Group:    c.queue.group,
			Consumer: c.consumerID,
			MinIdle:  c.visibility,
			Messages: []string{entry.ID},
		}).Result()
		if claimErr != nil || len(claimed) == 0 {
			// Another worker won the claim race.
			continue
		}

		item := c.parseOrDrop(ctx, claimed[0])
		if item == nil {
			continue
		}
		zap.L().Info("queue: reclaimed stalled message",
			zap.String("message_id", entry.ID),
			zap.Duration("idle", entry.Idle),
			zap.Int64("deliveries", entry.RetryCount),
		)
		return item
	}
	return nil
}

// parseOrDrop decodes a message. Malformed messages are acknowledged so
// they cannot poison the queue, then skipped.
func (c *Consumer) parseOrDrop(ctx context.Context, msg redis.XMessage) *model.WorkItem {
	item, err := parseMessage(msg)
	if err != nil {
		zap.L().Error("queue: dropping malformed message",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		if ackErr := c.Ack(ctx, msg.ID); ackErr != nil {
			zap.L().Warn("queue: failed to ack malformed message", zap.Error(ackErr))
		}
		return nil
	}
	return item
}

// ConsumerID returns the consumer identifier.
func (c *Consumer) ConsumerID() string {
	return c.consumerID
}

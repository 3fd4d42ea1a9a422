// Package queue implements the work queue on Redis Streams. A consumer
// group gives at-least-once delivery: a received entry stays pending until
// acknowledged, and entries idle past the visibility window are reclaimed
// by whichever worker polls next.
package queue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enrichment-worker/internal/model"
)

const (
	// payloadField is the stream field holding the serialized WorkItem.
	payloadField = "payload"
	// enqueuedAtField is the stream field holding the enqueue timestamp.
	enqueuedAtField = "enqueued_at"

	connectTimeout = 2 * time.Second
)

// Config holds connection settings for the work queue.
type Config struct {
	Addr     string
	Password string `json:"-"`
	DB       int
	Stream   string
	Group    string
}

// Queue wraps a Redis client with the stream and group names for one queue.
type Queue struct {
	client *redis.Client
	stream string
	group  string
}

// New connects to Redis and returns a Queue. It pings the server so
// misconfiguration fails at startup rather than on the first poll.
func New(cfg Config) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, eris.Wrap(err, "queue: connect")
	}

	return NewFromClient(client, cfg.Stream, cfg.Group), nil
}

// NewFromClient builds a Queue around an existing Redis client.
func NewFromClient(client *redis.Client, stream, group string) *Queue {
	if stream == "" {
		stream = "enrichment:leads"
	}
	if group == "" {
		group = "enrichment-workers"
	}
	return &Queue{client: client, stream: stream, group: group}
}

// EnsureGroup creates the consumer group if it does not exist yet.
func (q *Queue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return eris.Wrap(err, "queue: create consumer group")
	}
	return nil
}

// Enqueue appends a work item to the stream and returns its message ID.
// Used by the dispatcher and by tests; workers only consume.
func (q *Queue) Enqueue(ctx context.Context, item model.WorkItem) (string, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return "", eris.Wrap(err, "queue: marshal work item")
	}

	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{
			payloadField:    string(payload),
			enqueuedAtField: time.Now().UTC().Format(time.RFC3339),
		},
	}).Result()
	if err != nil {
		return "", eris.Wrap(err, "queue: xadd")
	}
	return id, nil
}

// Stats summarizes queue depth for monitoring.
type Stats struct {
	// Length is the total number of entries in the stream, acknowledged
	// entries included until the stream is trimmed.
	Length int64
	// Pending is the number of delivered-but-unacknowledged entries
	// (in-flight plus awaiting redelivery).
	Pending int64
}

// Stats returns current queue depth counters.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	length, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		return Stats{}, eris.Wrap(err, "queue: xlen")
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		if eris.Is(err, redis.Nil) || strings.Contains(err.Error(), "NOGROUP") {
			return Stats{Length: length}, nil
		}
		return Stats{}, eris.Wrap(err, "queue: xpending")
	}

	return Stats{Length: length, Pending: pending.Count}, nil
}

// Close closes the underlying Redis client.
func (q *Queue) Close() error {
	return q.client.Close()
}

// parseMessage decodes a stream entry into a WorkItem, attaching the
// message ID as the receipt handle.
func parseMessage(msg redis.XMessage) (*model.WorkItem, error) {
	payload, ok := msg.Values[payloadField].(string)
	if !ok {
		return nil, eris.New("queue: message missing payload")
	}

	var item model.WorkItem
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		return nil, eris.Wrap(err, "queue: unmarshal work item")
	}
	item.ReceiptID = msg.ID

	if ts, ok := msg.Values[enqueuedAtField].(string); ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			item.EnqueuedAt = t
		}
	}

	return &item, nil
}

// Package verdict publishes classified submissions to a Redis list for
// downstream consumers such as labelling and retraining jobs.
package verdict

import (
	"context"
	"fmt"
	"time"

	"botcheck/internal/data"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Event is the structure serialized to msgpack and pushed to the queue.
type Event struct {
	RequestID   string      `msgpack:"request_id"`
	TraceID     string      `msgpack:"trace_id"`
	Record      data.Record `msgpack:"record"`
	Prediction  float64     `msgpack:"prediction"`
	Label       string      `msgpack:"label"`
	TimestampMs int64       `msgpack:"timestamp_ms"`
}

// Publisher pushes verdict events onto a Redis list.
type Publisher struct {
	rdb   redis.Cmdable
	queue string

	newID func() string
	now   func() time.Time
}

// NewPublisher returns a publisher writing to queue.
func NewPublisher(rdb redis.Cmdable, queue string) *Publisher {
	return &Publisher{
		rdb:   rdb,
		queue: queue,
		newID: func() string { return uuid.New().String() },
		now:   time.Now,
	}
}

// Publish enriches the verdict with ids and a timestamp and pushes it.
// traceID may be empty, in which case a fresh one is generated.
func (p *Publisher) Publish(ctx context.Context, traceID string, rec data.Record, prediction float64, label string) (Event, error) {
	if traceID == "" {
		traceID = p.newID()
	}
	ev := Event{
		RequestID:   p.newID(),
		TraceID:     traceID,
		Record:      rec,
		Prediction:  prediction,
		Label:       label,
		TimestampMs: p.now().UnixMilli(),
	}

	b, err := msgpack.Marshal(&ev)
	if err != nil {
		return Event{}, fmt.Errorf("verdict: encode event: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, b).Err(); err != nil {
		return Event{}, fmt.Errorf("verdict: push to %s: %w", p.queue, err)
	}
	return ev, nil
}

// Decode unpacks an event read back from the queue. Consumers of the verdict
// queue (labelling and retraining jobs) use it to read what Publish pushed.
func Decode(b []byte) (Event, error) {
	var ev Event
	if err := msgpack.Unmarshal(b, &ev); err != nil {
		return Event{}, fmt.Errorf("verdict: decode event: %w", err)
	}
	return ev, nil
}

// Connect parses a redis:// URL and returns a client for it.
func Connect(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("verdict: parse redis URL: %w", err)
	}
	return redis.NewClient(opt), nil
}

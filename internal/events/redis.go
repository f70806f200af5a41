package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ssd-technologies/swarmgov/internal/swarm"
)

// DefaultStream is the Redis stream swarm events are appended to.
const DefaultStream = "swarmgov.events"

// RedisStream appends events to a Redis stream so out-of-process consumers
// (outcome scorers, dashboards) can follow the swarm.
type RedisStream struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

var _ swarm.Publisher = (*RedisStream)(nil)

// NewRedisStream connects to the Redis server at url. maxLen caps the stream
// length approximately; zero leaves it unbounded.
func NewRedisStream(url, stream string, maxLen int64) (*RedisStream, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStreamClient(redis.NewClient(opt), stream, maxLen), nil
}

// NewRedisStreamClient wraps an existing client.
func NewRedisStreamClient(rdb *redis.Client, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStream{rdb: rdb, stream: stream, maxLen: maxLen}
}

// Ping checks the connection.
func (r *RedisStream) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *RedisStream) Close() error {
	return r.rdb.Close()
}

// Publish implements swarm.Publisher with XADD.
func (r *RedisStream) Publish(ctx context.Context, ev swarm.Event) error {
	values, err := streamValues(ev)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: values,
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if _, err := r.rdb.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}

// streamValues flattens ev into stream entry fields. The record itself is
// carried as JSON in the "data" field.
func streamValues(ev swarm.Event) (map[string]interface{}, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("encode event data: %w", err)
	}
	return map[string]interface{}{
		"id":      ev.ID,
		"type":    string(ev.Type),
		"subject": ev.Subject,
		"time":    ev.At.Unix(),
		"data":    string(data),
	}, nil
}

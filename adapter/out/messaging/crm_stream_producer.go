package messaging

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"crm_server/core/port/out"

	"github.com/redis/go-redis/v9"
)

// Stream names
const (
	StreamSuggestions = "crm:suggestions"
)

const defaultStreamMaxLen = 10000

// RedisProducer publishes suggestion events to Redis Streams.
type RedisProducer struct {
	client *redis.Client
	maxLen int64
}

// NewRedisProducer creates a new producer. maxLen <= 0 uses the default cap.
func NewRedisProducer(client *redis.Client, maxLen int64) *RedisProducer {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &RedisProducer{client: client, maxLen: maxLen}
}

var _ out.SuggestionEventPublisher = (*RedisProducer)(nil)

// PublishSuggestionsUpdated appends event to the suggestions stream.
func (p *RedisProducer) PublishSuggestionsUpdated(ctx context.Context, event *out.SuggestionsUpdatedEvent) error {
	if event == nil {
		return nil
	}
	return p.publish(ctx, StreamSuggestions, map[string]interface{}{
		"type":       string(event.Type),
		"generation": strconv.FormatUint(event.Generation, 10),
	}, event)
}

func (p *RedisProducer) publish(ctx context.Context, stream string, fields map[string]interface{}, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	values := make(map[string]interface{}, len(fields)+1)
	for k, val := range fields {
		values[k] = val
	}
	values["data"] = string(data)

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: p.maxLen,
		Approx: true,
		ID:     "*",
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}

	return nil
}

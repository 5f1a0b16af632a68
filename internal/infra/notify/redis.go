package notify

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
)

// Redis Streamsに追記する（XADD, MAXLENで古いものを捨てる）
type RedisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisPublisher(addr, stream string) *RedisPublisher {
	return NewRedisPublisherFromClient(redis.NewClient(&redis.Options{Addr: addr}), stream)
}

func NewRedisPublisherFromClient(client *redis.Client, stream string) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream, maxLen: 10000}
}

func (p *RedisPublisher) Publish(ctx context.Context, n model.Notification) error {
	data, err := encode(n)
	if err != nil {
		return err
	}
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"event":    n.Event,
			"audience": string(n.AudienceRole),
			"key":      partitionKey(n),
			"payload":  data,
		},
	}).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

package notify

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func kafkaMessage(n model.Notification) (kafka.Message, error) {
	data, err := encode(n)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(partitionKey(n)),
		Value: data,
		Time:  n.CreatedAt.UTC(),
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(n.Event)},
			{Key: "audience", Value: []byte(n.AudienceRole)},
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, n model.Notification) error {
	msg, err := kafkaMessage(n)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

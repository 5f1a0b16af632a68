// Package notify publishes order, payment and inventory notifications to the
// outbound delivery collaborator. Delivery is fire-and-forget: callers never
// fail because a notification could not be sent.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rs-labo46/ec-fulfillment/internal/config"
	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
)

type Publisher interface {
	Publish(ctx context.Context, n model.Notification) error
	Close() error
}

func encode(n model.Notification) ([]byte, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return b, nil
}

// 注文コードがあればそれをキーに（同じ注文の通知は同じパーティションへ）
func partitionKey(n model.Notification) string {
	if n.OrderCode != "" {
		return n.OrderCode
	}
	return n.Event
}

// ---- log ----

type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, n model.Notification) error {
	p.logger.InfoContext(ctx, "notification",
		slog.String("type", string(n.Type)),
		slog.String("event", n.Event),
		slog.String("audience", string(n.AudienceRole)),
		slog.Int64("recipient_id", n.RecipientID),
		slog.String("order_code", n.OrderCode),
		slog.String("message", n.Message),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// ---- recorder ----

// Recorder keeps everything in memory. Used by tests and STORAGE_DRIVER=memory.
type Recorder struct {
	mu   sync.Mutex
	sent []model.Notification
	Err  error
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(ctx context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Sent() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Notification(nil), r.sent...)
}

func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Event)
	}
	return out
}

// ---- factory ----

// New は設定のドライバ名から Publisher を作る。
func New(cfg config.NotifierConfig, logger *slog.Logger) (Publisher, error) {
	switch cfg.Driver {
	case "", "log":
		return NewLogPublisher(logger), nil
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case "nats":
		return NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject)
	case "redis":
		return NewRedisPublisher(cfg.RedisAddr, cfg.RedisChannel), nil
	}
	return nil, fmt.Errorf("unsupported notifier driver: %s", cfg.Driver)
}

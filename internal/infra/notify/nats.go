package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
)

// subject は "<prefix>.<event>"（例: fulfillment.notifications.order.created）
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("ec-fulfillment"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{conn: conn, prefix: prefix}, nil
}

func NewNATSPublisherFromConn(conn *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

func (p *NATSPublisher) subject(n model.Notification) string {
	return p.prefix + "." + n.Event
}

func (p *NATSPublisher) Publish(ctx context.Context, n model.Notification) error {
	data, err := encode(n)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(p.subject(n))
	msg.Data = data
	msg.Header.Set("audience", string(n.AudienceRole))
	if n.OrderCode != "" {
		msg.Header.Set("order_code", n.OrderCode)
	}
	return p.conn.PublishMsg(msg)
}

func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

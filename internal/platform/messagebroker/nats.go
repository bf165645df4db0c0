package messagebroker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Message is the broker-agnostic view of a received message.
type Message interface {
	Subject() string
	Data() []byte
}

// Subscription represents an active subscription that can be torn down.
type Subscription interface {
	Unsubscribe() error
}

// NATSClient is the publish/subscribe surface used by application code.
// Keeping it an interface lets tests substitute a mock without a broker.
type NATSClient interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, queueGroup string, handler func(msg Message)) (Subscription, error)
	Close()
}

type natsMessage struct {
	msg *nats.Msg
}

func (m *natsMessage) Subject() string { return m.msg.Subject }
func (m *natsMessage) Data() []byte    { return m.msg.Data }

type natsClient struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSClient connects to NATS with reconnect handling.
// natsURL example: "nats://localhost:4222"
func NewNATSClient(natsURL string, logger *slog.Logger, appName string) (NATSClient, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name(appName),
		nats.Timeout(5*time.Second),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(3),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &natsClient{conn: conn, logger: logger}, nil
}

func (c *natsClient) Publish(ctx context.Context, subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}
	return nil
}

func (c *natsClient) Subscribe(ctx context.Context, subject string, queueGroup string, handler func(msg Message)) (Subscription, error) {
	natsHandler := func(m *nats.Msg) {
		handler(&natsMessage{msg: m})
	}

	var sub *nats.Subscription
	var err error
	if queueGroup != "" {
		sub, err = c.conn.QueueSubscribe(subject, queueGroup, natsHandler)
	} else {
		sub, err = c.conn.Subscribe(subject, natsHandler)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
	}
	return sub, nil
}

func (c *natsClient) Close() {
	if c.conn != nil && !c.conn.IsClosed() {
		// Drain ensures buffered published messages are flushed before closing.
		if err := c.conn.Drain(); err != nil {
			c.logger.Warn("Error draining NATS connection", "error", err)
		}
	}
}

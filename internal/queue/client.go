// Package queue carries generation requests and responses over RabbitMQ.
//
// The request queue is consumed with manual acknowledgement: a message is
// acked only after its handler returns. Failed messages are republished with
// an incremented retry header until the retry budget is spent, then moved to
// the dead-letter queue.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/ayush/medical-report-worker/internal/apperrors"
	"github.com/ayush/medical-report-worker/internal/models"
)

const (
	contentTypeJSON = "application/json"

	// RetryHeader counts how many times a request has been republished.
	RetryHeader = "x-retry-count"
	// ErrorHeader carries the last handler error on dead-lettered messages.
	ErrorHeader = "x-last-error"
)

// Channel is the subset of *amqp.Channel the client uses.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type connection interface {
	Close() error
	IsClosed() bool
}

// Config names the queues and delivery limits.
type Config struct {
	URL             string
	RequestQueue    string
	ResponseQueue   string
	DeadLetterQueue string
	Prefetch        int
	MaxRetries      int
}

// Client owns one AMQP connection and channel.
type Client struct {
	conn connection
	ch   Channel
	cfg  Config
	log  zerolog.Logger
}

// Dial connects, sets the prefetch window and declares the durable queues.
// Nothing stays open when it returns an error.
func Dial(cfg Config, log zerolog.Logger) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, apperrors.TransientInfra("rabbitmq dial", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, apperrors.TransientInfra("rabbitmq channel", err)
	}
	c, err := newClient(conn, ch, cfg, log)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return c, nil
}

func newClient(conn connection, ch Channel, cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.Prefetch < 1 {
		cfg.Prefetch = 1
	}
	c := &Client{conn: conn, ch: ch, cfg: cfg, log: log.With().Str("component", "queue").Logger()}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		return nil, apperrors.TransientInfra("rabbitmq qos", err)
	}
	for _, name := range []string{cfg.RequestQueue, cfg.ResponseQueue, cfg.DeadLetterQueue} {
		if name == "" {
			continue
		}
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return nil, apperrors.TransientInfra("rabbitmq declare "+name, err)
		}
	}
	c.log.Info().
		Str("request_queue", cfg.RequestQueue).
		Str("response_queue", cfg.ResponseQueue).
		Int("prefetch", cfg.Prefetch).
		Msg("rabbitmq ready")
	return c, nil
}

// Close releases the channel and the connection.
func (c *Client) Close() error {
	chErr := c.ch.Close()
	if c.conn == nil {
		return chErr
	}
	if err := c.conn.Close(); err != nil {
		return err
	}
	return chErr
}

// Healthy reports whether the connection is still open.
func (c *Client) Healthy() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// PublishResponse sends a persistent JSON message to the response queue.
func (c *Client) PublishResponse(ctx context.Context, msg models.ResponseMessage) error {
	if err := c.publishJSON(ctx, c.cfg.ResponseQueue, msg.RequestID, msg); err != nil {
		return err
	}
	c.log.Info().Str("request_id", msg.RequestID).Str("status", msg.Status).Msg("response published")
	return nil
}

// PublishRequest enqueues a generation request.
func (c *Client) PublishRequest(ctx context.Context, req *models.GenerationRequest) error {
	return c.publishJSON(ctx, c.cfg.RequestQueue, req.RequestID, req)
}

func (c *Client) publishJSON(ctx context.Context, queue, messageID string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message for %s: %w", queue, err)
	}
	err = c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

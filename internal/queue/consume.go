package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ayush/medical-report-worker/internal/models"
)

// ErrDeliveriesClosed is returned by the consume loops when the broker
// closes the delivery channel.
var ErrDeliveriesClosed = errors.New("rabbitmq delivery channel closed")

// Message is a request delivery handed to a Handler.
type Message struct {
	Body        []byte
	MessageID   string
	Attempt     int
	Redelivered bool
}

// Handler processes one request. A nil return acks the message; an error or
// panic sends it down the retry path.
type Handler func(ctx context.Context, msg Message) error

// Consume delivers request messages to h one at a time until ctx is
// cancelled or the channel closes.
func (c *Client) Consume(ctx context.Context, h Handler) error {
	deliveries, err := c.ch.Consume(c.cfg.RequestQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq consume %s: %w", c.cfg.RequestQueue, err)
	}
	c.log.Info().Str("queue", c.cfg.RequestQueue).Msg("consuming")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.handleDelivery(ctx, d, h)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, d amqp.Delivery, h Handler) {
	log := c.log.With().Str("message_id", d.MessageId).Uint64("delivery_tag", d.DeliveryTag).Logger()

	if !json.Valid(d.Body) {
		log.Error().Int("bytes", len(d.Body)).Msg("malformed message, dead-lettering")
		c.deadLetter(ctx, d, "malformed json")
		return
	}

	attempt := retryCount(d.Headers)
	err := runHandler(ctx, h, Message{
		Body:        d.Body,
		MessageID:   d.MessageId,
		Attempt:     attempt,
		Redelivered: d.Redelivered,
	})
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error().Err(ackErr).Msg("ack failed")
		}
		return
	}

	if attempt >= c.cfg.MaxRetries {
		log.Error().Err(err).Int("attempt", attempt).Msg("retries exhausted, dead-lettering")
		c.deadLetter(ctx, d, err.Error())
		return
	}

	log.Warn().Err(err).Int("attempt", attempt+1).Msg("handler failed, requeueing")
	headers := copyHeaders(d.Headers)
	headers[RetryHeader] = int32(attempt + 1)
	if pubErr := c.republish(ctx, c.cfg.RequestQueue, d, headers); pubErr != nil {
		log.Error().Err(pubErr).Msg("requeue publish failed, returning message to broker")
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// deadLetter moves d to the dead-letter queue. If that publish fails the
// message is returned to the broker rather than lost.
func (c *Client) deadLetter(ctx context.Context, d amqp.Delivery, reason string) {
	headers := copyHeaders(d.Headers)
	headers[ErrorHeader] = reason
	if err := c.republish(ctx, c.cfg.DeadLetterQueue, d, headers); err != nil {
		c.log.Error().Err(err).Str("message_id", d.MessageId).Msg("dead-letter publish failed")
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func (c *Client) republish(ctx context.Context, queue string, d amqp.Delivery, headers amqp.Table) error {
	contentType := d.ContentType
	if contentType == "" {
		contentType = contentTypeJSON
	}
	return c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		Headers:      headers,
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Timestamp:    time.Now().UTC(),
		Body:         d.Body,
	})
}

func runHandler(ctx context.Context, h Handler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, msg)
}

func retryCount(h amqp.Table) int {
	switch v := h[RetryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 0
}

func copyHeaders(h amqp.Table) amqp.Table {
	out := make(amqp.Table, len(h)+1)
	for k, v := range h {
		out[k] = v
	}
	return out
}

// ResponseHandler receives decoded response messages.
type ResponseHandler func(ctx context.Context, msg models.ResponseMessage) error

// ConsumeResponses reads the response queue until ctx is cancelled. Messages
// are acked after fn returns nil and requeued when it fails. Undecodable
// responses are dropped.
func (c *Client) ConsumeResponses(ctx context.Context, fn ResponseHandler) error {
	deliveries, err := c.ch.Consume(c.cfg.ResponseQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq consume %s: %w", c.cfg.ResponseQueue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			var msg models.ResponseMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				c.log.Error().Err(err).Msg("undecodable response dropped")
				_ = d.Nack(false, false)
				continue
			}
			if err := fn(ctx, msg); err != nil {
				c.log.Warn().Err(err).Str("request_id", msg.RequestID).Msg("response handler failed")
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

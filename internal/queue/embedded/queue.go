package embedded

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"log/slog"

	"github.com/flowcatalyst/messagerouter/internal/queue"
)

// Message adapts an engine delivery to the queue.Message interface.
type Message struct {
	engine   *Engine
	delivery Delivery
	subject  string
}

func (m *Message) ID() string                  { return m.delivery.ID }
func (m *Message) Data() []byte                { return m.delivery.Body }
func (m *Message) Subject() string             { return m.subject }
func (m *Message) MessageGroup() string        { return m.delivery.MessageGroup }
func (m *Message) Metadata() map[string]string { return nil }

func (m *Message) Ack() error {
	return m.engine.Ack(context.Background(), m.delivery.ReceiptHandle)
}

func (m *Message) Nak() error {
	return m.engine.Nack(context.Background(), m.delivery.ReceiptHandle, 0)
}

func (m *Message) NakWithDelay(delay time.Duration) error {
	return m.engine.Nack(context.Background(), m.delivery.ReceiptHandle, delay)
}

func (m *Message) InProgress() error {
	return m.engine.ExtendVisibility(context.Background(), m.delivery.ReceiptHandle, m.engine.opts.VisibilityTimeout)
}

// GetReceiptHandle returns the current receipt handle.
func (m *Message) GetReceiptHandle() string { return m.delivery.ReceiptHandle }

// UpdateReceiptHandle replaces the receipt handle after a redelivery.
func (m *Message) UpdateReceiptHandle(newReceiptHandle string) {
	m.delivery.ReceiptHandle = newReceiptHandle
}

// Publisher publishes messages to a queue on the embedded engine.
type Publisher struct {
	engine *Engine
	queue  string
}

// NewPublisher creates a publisher bound to a queue name.
func NewPublisher(engine *Engine, queueName string) *Publisher {
	return &Publisher{engine: engine, queue: queueName}
}

// Publish sends a message. The subject selects the target queue when
// non-empty, otherwise the publisher's bound queue is used.
func (p *Publisher) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := p.engine.Publish(ctx, p.target(subject), "", data, "", "")
	return err
}

// PublishWithGroup sends a message with a message group for ordered processing
func (p *Publisher) PublishWithGroup(ctx context.Context, subject string, data []byte, messageGroup string) error {
	// Content-based dedup keeps accidental double-publishes of the same
	// payload out of the queue, matching the SQS FIFO contract.
	_, err := p.engine.Publish(ctx, p.target(subject), "", data, messageGroup, contentDedupID(data))
	return err
}

// PublishWithDeduplication sends a message with an explicit deduplication ID
func (p *Publisher) PublishWithDeduplication(ctx context.Context, subject string, data []byte, deduplicationID string) error {
	_, err := p.engine.Publish(ctx, p.target(subject), "", data, "", deduplicationID)
	return err
}

// Close closes the publisher
func (p *Publisher) Close() error { return nil }

func (p *Publisher) target(subject string) string {
	if subject != "" {
		return subject
	}
	return p.queue
}

func contentDedupID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Consumer polls a queue on the embedded engine and hands messages to a
// handler.
type Consumer struct {
	engine    *Engine
	queue     string
	batchSize int
	pollIdle  time.Duration
}

// NewConsumer creates a consumer for the given queue name.
func NewConsumer(engine *Engine, queueName string, batchSize int) *Consumer {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Consumer{
		engine:    engine,
		queue:     queueName,
		batchSize: batchSize,
		pollIdle:  100 * time.Millisecond,
	}
}

// Consume polls for messages and invokes the handler for each until the
// context is cancelled. Handler errors are logged; the message is left to
// the handler's ack/nack decision.
func (c *Consumer) Consume(ctx context.Context, handler func(queue.Message) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := c.engine.DequeueBatch(ctx, c.queue, c.batchSize)
		if err != nil {
			return err
		}

		if len(deliveries) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.pollIdle):
			}
			continue
		}

		for _, delivery := range deliveries {
			msg := &Message{engine: c.engine, delivery: delivery, subject: c.queue}
			if err := handler(msg); err != nil {
				slog.Warn("Embedded queue handler error", "error", err, "messageId", delivery.ID, "queue", c.queue)
			}
		}
	}
}

// Close closes the consumer
func (c *Consumer) Close() error { return nil }

var (
	_ queue.Message                = (*Message)(nil)
	_ queue.ReceiptHandleUpdatable = (*Message)(nil)
	_ queue.Publisher              = (*Publisher)(nil)
	_ queue.Consumer               = (*Consumer)(nil)
)

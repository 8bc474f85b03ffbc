// Package stomp provides STOMP broker connectivity for queue consumers
// and publishers (ActiveMQ, Artemis and other STOMP 1.2 brokers).
package stomp

import (
	"context"
	"fmt"
	"sync"
	"time"

	gostomp "github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
	"log/slog"

	"github.com/flowcatalyst/messagerouter/internal/queue"
)

const (
	// messageGroupHeader carries the FIFO group, mirroring the JMSXGroupID
	// convention used by ActiveMQ-family brokers.
	messageGroupHeader = "JMSXGroupID"

	// dedupHeader carries the publish deduplication ID for brokers that
	// support it.
	dedupHeader = "_AMQ_DUPL_ID"
)

// Config holds STOMP connection configuration
type Config struct {
	// Address is the broker address in host:port form
	Address string

	// Login and Passcode authenticate the STOMP session
	Login    string
	Passcode string

	// Destination is the default queue destination (e.g. /queue/dispatch)
	Destination string

	// PoolSize is the number of pooled publisher connections
	PoolSize int

	// HeartBeat is the send/receive heartbeat interval
	HeartBeat time.Duration
}

func (c *Config) applyDefaults() {
	if c.PoolSize <= 0 {
		c.PoolSize = 4
	}
	if c.HeartBeat <= 0 {
		c.HeartBeat = 30 * time.Second
	}
}

func (c *Config) connOptions() []func(*gostomp.Conn) error {
	opts := []func(*gostomp.Conn) error{
		gostomp.ConnOpt.HeartBeat(c.HeartBeat, c.HeartBeat),
	}
	if c.Login != "" {
		opts = append(opts, gostomp.ConnOpt.Login(c.Login, c.Passcode))
	}
	return opts
}

// Publisher publishes messages over a pool of STOMP connections. Opening
// a connection per send is wasteful on brokers with TLS or auth, so sends
// borrow a pooled connection and return it when done; broken connections
// are discarded and replaced lazily.
type Publisher struct {
	cfg  Config
	pool chan *gostomp.Conn

	mu     sync.Mutex
	closed bool
}

// NewPublisher creates a pooled STOMP publisher. Connections are dialed
// lazily on first use.
func NewPublisher(cfg Config) *Publisher {
	cfg.applyDefaults()
	p := &Publisher{
		cfg:  cfg,
		pool: make(chan *gostomp.Conn, cfg.PoolSize),
	}
	// Seed the pool with nil slots; each is replaced by a live connection
	// on first borrow.
	for i := 0; i < cfg.PoolSize; i++ {
		p.pool <- nil
	}
	return p
}

func (p *Publisher) borrow(ctx context.Context) (*gostomp.Conn, error) {
	select {
	case conn := <-p.pool:
		if conn != nil {
			return conn, nil
		}
		return gostomp.Dial("tcp", p.cfg.Address, p.cfg.connOptions()...)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Publisher) putBack(conn *gostomp.Conn) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		if conn != nil {
			conn.Disconnect()
		}
		return
	}

	select {
	case p.pool <- conn:
	default:
		if conn != nil {
			conn.Disconnect()
		}
	}
}

func (p *Publisher) send(ctx context.Context, destination string, data []byte, headers ...func(*frame.Frame) error) error {
	conn, err := p.borrow(ctx)
	if err != nil {
		return fmt.Errorf("failed to get STOMP connection: %w", err)
	}

	sendOpts := make([]func(*frame.Frame) error, 0, len(headers)+1)
	sendOpts = append(sendOpts, gostomp.SendOpt.Receipt)
	sendOpts = append(sendOpts, headers...)

	if err := conn.Send(destination, "application/json", data, sendOpts...); err != nil {
		// Connection is suspect; drop it and put an empty slot back
		conn.Disconnect()
		p.putBack(nil)
		return fmt.Errorf("failed to send STOMP message: %w", err)
	}

	p.putBack(conn)
	return nil
}

// Publish sends a message to the destination (or the default when empty)
func (p *Publisher) Publish(ctx context.Context, subject string, data []byte) error {
	return p.send(ctx, p.destination(subject), data)
}

// PublishWithGroup sends a message with a message group for ordered processing
func (p *Publisher) PublishWithGroup(ctx context.Context, subject string, data []byte, messageGroup string) error {
	return p.send(ctx, p.destination(subject), data,
		gostomp.SendOpt.Header(messageGroupHeader, messageGroup))
}

// PublishWithDeduplication sends a message with a deduplication ID
func (p *Publisher) PublishWithDeduplication(ctx context.Context, subject string, data []byte, deduplicationID string) error {
	return p.send(ctx, p.destination(subject), data,
		gostomp.SendOpt.Header(dedupHeader, deduplicationID))
}

func (p *Publisher) destination(subject string) string {
	if subject != "" {
		return subject
	}
	return p.cfg.Destination
}

// Close drains and disconnects all pooled connections
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for i := 0; i < p.cfg.PoolSize; i++ {
		select {
		case conn := <-p.pool:
			if conn != nil {
				conn.Disconnect()
			}
		default:
			return nil
		}
	}
	return nil
}

// Consumer consumes messages from a STOMP destination with client-ack.
type Consumer struct {
	cfg Config

	mu   sync.Mutex
	conn *gostomp.Conn
	sub  *gostomp.Subscription
}

// NewConsumer creates a STOMP consumer for the configured destination.
func NewConsumer(cfg Config) *Consumer {
	cfg.applyDefaults()
	return &Consumer{cfg: cfg}
}

// Consume subscribes and delivers messages to the handler until the
// context is cancelled or the subscription drops.
func (c *Consumer) Consume(ctx context.Context, handler func(queue.Message) error) error {
	conn, err := gostomp.Dial("tcp", c.cfg.Address, c.cfg.connOptions()...)
	if err != nil {
		return fmt.Errorf("failed to connect to STOMP broker: %w", err)
	}

	sub, err := conn.Subscribe(c.cfg.Destination, gostomp.AckClientIndividual)
	if err != nil {
		conn.Disconnect()
		return fmt.Errorf("failed to subscribe to %s: %w", c.cfg.Destination, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.sub = sub
	c.mu.Unlock()

	defer func() {
		sub.Unsubscribe()
		conn.Disconnect()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case stompMsg, ok := <-sub.C:
			if !ok {
				return fmt.Errorf("STOMP subscription closed for %s", c.cfg.Destination)
			}
			if stompMsg.Err != nil {
				slog.Warn("STOMP message error", "error", stompMsg.Err, "destination", c.cfg.Destination)
				continue
			}

			msg := newMessage(conn, stompMsg, c.cfg.Destination)
			if err := handler(msg); err != nil {
				slog.Warn("STOMP handler error",
					"error", err,
					"messageId", msg.ID(),
					"destination", c.cfg.Destination)
			}
		}
	}
}

// Close disconnects the consumer
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
	if c.conn != nil {
		err := c.conn.Disconnect()
		c.conn = nil
		return err
	}
	return nil
}

// Message adapts a STOMP message to the queue.Message interface.
type Message struct {
	conn    *gostomp.Conn
	msg     *gostomp.Message
	subject string
}

func newMessage(conn *gostomp.Conn, msg *gostomp.Message, subject string) *Message {
	return &Message{conn: conn, msg: msg, subject: subject}
}

func (m *Message) ID() string {
	if m.msg.Header != nil {
		return m.msg.Header.Get(frame.MessageId)
	}
	return ""
}

func (m *Message) Data() []byte    { return m.msg.Body }
func (m *Message) Subject() string { return m.subject }

func (m *Message) MessageGroup() string {
	if m.msg.Header != nil {
		return m.msg.Header.Get(messageGroupHeader)
	}
	return ""
}

func (m *Message) Metadata() map[string]string {
	if m.msg.Header == nil {
		return nil
	}
	meta := make(map[string]string, m.msg.Header.Len())
	for i := 0; i < m.msg.Header.Len(); i++ {
		k, v := m.msg.Header.GetAt(i)
		meta[k] = v
	}
	return meta
}

func (m *Message) Ack() error { return m.conn.Ack(m.msg) }
func (m *Message) Nak() error { return m.conn.Nack(m.msg) }

// NakWithDelay nacks the message. STOMP has no per-message redelivery
// delay; the broker's redelivery policy governs the actual wait.
func (m *Message) NakWithDelay(delay time.Duration) error {
	return m.conn.Nack(m.msg)
}

// InProgress is a no-op: STOMP client-ack has no visibility deadline.
func (m *Message) InProgress() error { return nil }

var (
	_ queue.Publisher = (*Publisher)(nil)
	_ queue.Consumer  = (*Consumer)(nil)
	_ queue.Message   = (*Message)(nil)
)

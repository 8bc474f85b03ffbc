// Package embedded provides a single-node queue engine with SQS-like
// semantics: visibility timeouts, receipt handles, publish deduplication
// and per-group FIFO dequeue. State lives in memory and is periodically
// snapshotted to disk unless in-memory mode is selected.
package embedded

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"log/slog"
)

var (
	// ErrUnknownReceipt is returned when a receipt handle does not match
	// any in-flight message. The handle may have expired and been
	// superseded by a redelivery.
	ErrUnknownReceipt = errors.New("unknown or stale receipt handle")

	// ErrQueueNotFound is returned when operating on a queue that has
	// never received a message.
	ErrQueueNotFound = errors.New("queue not found")
)

// Options configures the queue engine.
type Options struct {
	// VisibilityTimeout is how long a dequeued message stays invisible
	// before it becomes eligible for redelivery.
	VisibilityTimeout time.Duration

	// DedupWindow is how long a deduplication ID suppresses re-publishes.
	DedupWindow time.Duration

	// SnapshotPath is the snapshot file. Empty selects in-memory mode.
	SnapshotPath string

	// SnapshotInterval is the minimum time between snapshot writes.
	SnapshotInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = 2 * time.Minute
	}
	if o.DedupWindow <= 0 {
		o.DedupWindow = 5 * time.Minute
	}
	if o.SnapshotInterval < 10*time.Second {
		o.SnapshotInterval = 10 * time.Second
	}
}

// Item is a message held by the engine. ID is the message ID: unique per
// queue among live messages, caller-supplied or engine-generated.
type Item struct {
	ID              string    `json:"id"`
	Queue           string    `json:"queue"`
	Body            []byte    `json:"body"`
	MessageGroup    string    `json:"messageGroup"`
	DedupID         string    `json:"dedupId,omitempty"`
	EnqueuedAt      time.Time `json:"enqueuedAt"`
	VisibleAt       time.Time `json:"visibleAt"`
	ReceiptHandle   string    `json:"-"`
	ReceiveCount    int       `json:"receiveCount"`
	FirstReceivedAt time.Time `json:"firstReceivedAt,omitempty"`
}

// Delivery is a dequeued message. The receipt handle is only valid until
// the visibility timeout elapses or the message is acked or nacked.
type Delivery struct {
	ID            string
	Body          []byte
	MessageGroup  string
	ReceiptHandle string
	ReceiveCount  int
}

// queueState holds the per-queue message list and bookkeeping.
type queueState struct {
	// items is kept in enqueue order; dequeue scans front to back
	items []*Item

	// byID indexes live items by message ID; it enforces message ID
	// uniqueness within the queue
	byID map[string]*Item

	// dedup maps dedup ID to window expiry
	dedup map[string]time.Time
}

func newQueueState() *queueState {
	return &queueState{
		byID:  make(map[string]*Item),
		dedup: make(map[string]time.Time),
	}
}

// Engine is the embedded queue store. All operations are safe for
// concurrent use.
type Engine struct {
	mu     sync.Mutex
	opts   Options
	queues map[string]*queueState

	// receipts maps receipt handle to the owning item for O(1) ack/nack
	receipts map[string]*Item

	dirty bool
	now   func() time.Time

	snapshotDone chan struct{}
	snapshotStop chan struct{}
	stopOnce     sync.Once
}

// NewEngine creates a queue engine. If a snapshot file exists at the
// configured path, state is restored from it; restored in-flight messages
// keep their visibility deadline and are redelivered once it elapses.
func NewEngine(opts Options) (*Engine, error) {
	opts.applyDefaults()

	e := &Engine{
		opts:         opts,
		queues:       make(map[string]*queueState),
		receipts:     make(map[string]*Item),
		now:          time.Now,
		snapshotDone: make(chan struct{}),
		snapshotStop: make(chan struct{}),
	}

	if opts.SnapshotPath != "" {
		if err := e.restore(); err != nil {
			return nil, err
		}
		go e.snapshotLoop()
	} else {
		close(e.snapshotDone)
	}

	return e, nil
}

// Publish enqueues a single message. An empty messageID gets a generated
// one; a messageID already live in the queue makes the publish a no-op
// reported as deduplicated. A non-empty dedupID additionally suppresses
// the publish if the same ID was seen within the deduplication window.
// Duplicates are dropped and reported via the return value, not an error.
func (e *Engine) Publish(ctx context.Context, queueName, messageID string, body []byte, messageGroup, dedupID string) (accepted bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.publishLocked(queueName, messageID, body, messageGroup, dedupID), nil
}

// BatchEntry is one message in a batch publish.
type BatchEntry struct {
	MessageID    string
	Body         []byte
	MessageGroup string
	DedupID      string
}

// PublishBatch enqueues multiple messages. The returned slice reports,
// per entry, whether the message was accepted or dropped as a duplicate.
func (e *Engine) PublishBatch(ctx context.Context, queueName string, entries []BatchEntry) ([]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	results := make([]bool, len(entries))
	for i, entry := range entries {
		results[i] = e.publishLocked(queueName, entry.MessageID, entry.Body, entry.MessageGroup, entry.DedupID)
	}
	return results, nil
}

func (e *Engine) publishLocked(queueName, messageID string, body []byte, messageGroup, dedupID string) bool {
	q := e.queues[queueName]
	if q == nil {
		q = newQueueState()
		e.queues[queueName] = q
	}

	now := e.now()

	if messageID == "" {
		messageID = uuid.NewString()
	} else if _, live := q.byID[messageID]; live {
		// Re-inserting a live message ID is success-deduplicated
		return false
	}

	if dedupID != "" {
		e.purgeDedupLocked(q, now)
		if expiry, seen := q.dedup[dedupID]; seen && now.Before(expiry) {
			return false
		}
		q.dedup[dedupID] = now.Add(e.opts.DedupWindow)
	}

	item := &Item{
		ID:           messageID,
		Queue:        queueName,
		Body:         body,
		MessageGroup: messageGroup,
		DedupID:      dedupID,
		EnqueuedAt:   now,
		VisibleAt:    now,
	}
	q.items = append(q.items, item)
	q.byID[item.ID] = item
	e.dirty = true
	return true
}

func (e *Engine) purgeDedupLocked(q *queueState, now time.Time) {
	for id, expiry := range q.dedup {
		if !now.Before(expiry) {
			delete(q.dedup, id)
		}
	}
}

// DequeueBatch returns up to max messages from the queue. Messages are
// scanned oldest first and at most one message per message group is
// yielded per call, so a group is never processed concurrently by
// consumers that dequeue through this engine. Each returned delivery
// carries a fresh receipt handle and its message stays invisible for the
// visibility timeout.
func (e *Engine) DequeueBatch(ctx context.Context, queueName string, max int) ([]Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if max <= 0 {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	q := e.queues[queueName]
	if q == nil {
		return nil, nil
	}

	now := e.now()
	yielded := make(map[string]bool)
	var deliveries []Delivery

	for _, item := range q.items {
		if len(deliveries) >= max {
			break
		}
		if now.Before(item.VisibleAt) {
			// In-flight groups are also blocked: the invisible head
			// keeps its group out of this batch.
			if item.ReceiptHandle != "" {
				yielded[item.MessageGroup] = true
			}
			continue
		}
		if item.MessageGroup != "" && yielded[item.MessageGroup] {
			continue
		}

		// Redelivery after an expired visibility timeout invalidates
		// the old handle.
		if item.ReceiptHandle != "" {
			delete(e.receipts, item.ReceiptHandle)
		}

		item.ReceiptHandle = uuid.NewString()
		item.VisibleAt = now.Add(e.opts.VisibilityTimeout)
		item.ReceiveCount++
		if item.FirstReceivedAt.IsZero() {
			item.FirstReceivedAt = now
		}
		e.receipts[item.ReceiptHandle] = item
		e.dirty = true

		if item.MessageGroup != "" {
			yielded[item.MessageGroup] = true
		}

		deliveries = append(deliveries, Delivery{
			ID:            item.ID,
			Body:          item.Body,
			MessageGroup:  item.MessageGroup,
			ReceiptHandle: item.ReceiptHandle,
			ReceiveCount:  item.ReceiveCount,
		})
	}

	return deliveries, nil
}

// Ack deletes the message identified by the receipt handle.
func (e *Engine) Ack(ctx context.Context, receiptHandle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	item, ok := e.receipts[receiptHandle]
	if !ok {
		return ErrUnknownReceipt
	}

	delete(e.receipts, receiptHandle)
	e.removeItemLocked(item)
	e.dirty = true
	return nil
}

// Nack returns the message to the queue after the given delay. A zero
// delay makes it immediately visible again.
func (e *Engine) Nack(ctx context.Context, receiptHandle string, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay < 0 {
		delay = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	item, ok := e.receipts[receiptHandle]
	if !ok {
		return ErrUnknownReceipt
	}

	delete(e.receipts, receiptHandle)
	item.ReceiptHandle = ""
	item.VisibleAt = e.now().Add(delay)
	e.dirty = true
	return nil
}

// ExtendVisibility pushes out the visibility deadline for an in-flight
// message, keeping its receipt handle valid.
func (e *Engine) ExtendVisibility(ctx context.Context, receiptHandle string, extension time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	item, ok := e.receipts[receiptHandle]
	if !ok {
		return ErrUnknownReceipt
	}

	item.VisibleAt = e.now().Add(extension)
	e.dirty = true
	return nil
}

func (e *Engine) removeItemLocked(item *Item) {
	q := e.queues[item.Queue]
	if q == nil {
		return
	}
	delete(q.byID, item.ID)
	for i, candidate := range q.items {
		if candidate == item {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

// Depth returns the number of messages in the queue, including in-flight.
func (e *Engine) Depth(queueName string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	q := e.queues[queueName]
	if q == nil {
		return 0
	}
	return int64(len(q.items))
}

// InFlight returns the number of currently invisible messages in the queue.
func (e *Engine) InFlight(queueName string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	q := e.queues[queueName]
	if q == nil {
		return 0
	}

	now := e.now()
	var count int64
	for _, item := range q.items {
		if item.ReceiptHandle != "" && now.Before(item.VisibleAt) {
			count++
		}
	}
	return count
}

// QueueNames returns the names of all queues that have received messages.
func (e *Engine) QueueNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.queues))
	for name := range e.queues {
		names = append(names, name)
	}
	return names
}

// Close stops the snapshot loop and writes a final snapshot.
func (e *Engine) Close() error {
	var err error
	e.stopOnce.Do(func() {
		if e.opts.SnapshotPath == "" {
			return
		}
		close(e.snapshotStop)
		<-e.snapshotDone
		err = e.writeSnapshot()
	})
	if err != nil {
		slog.Error("Failed to write final queue snapshot", "error", err)
	}
	return err
}

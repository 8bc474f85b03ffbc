package embedded

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowcatalyst/messagerouter/internal/queue"
)

// fakeClock lets tests control engine time
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	engine, err := NewEngine(Options{
		VisibilityTimeout: 2 * time.Minute,
		DedupWindow:       5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	engine.now = clock.Now
	return engine, clock
}

// TestPerGroupFIFODequeue verifies that a batch yields the oldest visible
// message per group, never repeating a group within one batch.
func TestPerGroupFIFODequeue(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	rows := []struct {
		body  string
		group string
	}{
		{"1", "A"},
		{"2", "B"},
		{"3", "A"},
		{"4", "A"},
		{"5", "B"},
		{"6", "C"},
	}
	for _, row := range rows {
		if _, err := engine.Publish(ctx, "dispatch", "", []byte(row.body), row.group, ""); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	batch, err := engine.DequeueBatch(ctx, "dispatch", 3)
	if err != nil {
		t.Fatalf("DequeueBatch failed: %v", err)
	}

	got := deliveryKeys(batch)
	want := []string{"1/A", "2/B", "6/C"}
	if len(got) != len(want) {
		t.Fatalf("Batch size mismatch: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Batch entry %d mismatch: got %s, want %s", i, got[i], want[i])
		}
	}

	for _, d := range batch {
		if err := engine.Ack(ctx, d.ReceiptHandle); err != nil {
			t.Fatalf("Ack failed: %v", err)
		}
	}

	batch, err = engine.DequeueBatch(ctx, "dispatch", 3)
	if err != nil {
		t.Fatalf("DequeueBatch failed: %v", err)
	}

	got = deliveryKeys(batch)
	want = []string{"3/A", "5/B"}
	if len(got) != len(want) {
		t.Fatalf("Second batch size mismatch: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Second batch entry %d mismatch: got %s, want %s", i, got[i], want[i])
		}
	}
}

func deliveryKeys(batch []Delivery) []string {
	keys := make([]string, len(batch))
	for i, d := range batch {
		keys[i] = string(d.Body) + "/" + d.MessageGroup
	}
	return keys
}

// TestGroupBlockedWhileInFlight verifies that an invisible message keeps
// its whole group out of subsequent batches.
func TestGroupBlockedWhileInFlight(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	engine.Publish(ctx, "q", "", []byte("first"), "G", "")
	engine.Publish(ctx, "q", "", []byte("second"), "G", "")

	batch, _ := engine.DequeueBatch(ctx, "q", 10)
	if len(batch) != 1 || string(batch[0].Body) != "first" {
		t.Fatalf("Expected only the group head, got %v", deliveryKeys(batch))
	}

	// The head is still in flight, so the group yields nothing
	batch2, _ := engine.DequeueBatch(ctx, "q", 10)
	if len(batch2) != 0 {
		t.Errorf("Expected empty batch while group in flight, got %v", deliveryKeys(batch2))
	}

	if err := engine.Ack(ctx, batch[0].ReceiptHandle); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}

	batch3, _ := engine.DequeueBatch(ctx, "q", 10)
	if len(batch3) != 1 || string(batch3[0].Body) != "second" {
		t.Errorf("Expected second message after ack, got %v", deliveryKeys(batch3))
	}
}

// TestPublishDeduplication verifies the 5-minute deduplication window:
// both publishes report success but only one row is persisted.
func TestPublishDeduplication(t *testing.T) {
	engine, clock := newTestEngine(t)
	ctx := context.Background()

	accepted, err := engine.Publish(ctx, "q", "", []byte("payload"), "G", "dedup-1")
	if err != nil || !accepted {
		t.Fatalf("First publish: accepted=%v err=%v", accepted, err)
	}

	accepted, err = engine.Publish(ctx, "q", "", []byte("payload"), "G", "dedup-1")
	if err != nil {
		t.Fatalf("Duplicate publish returned error: %v", err)
	}
	if accepted {
		t.Error("Duplicate within window should be flagged deduplicated")
	}

	if depth := engine.Depth("q"); depth != 1 {
		t.Errorf("Depth = %d, want 1", depth)
	}

	// After the window elapses the same ID is accepted again
	clock.Advance(5*time.Minute + time.Second)
	accepted, err = engine.Publish(ctx, "q", "", []byte("payload"), "G", "dedup-1")
	if err != nil || !accepted {
		t.Errorf("Publish after window: accepted=%v err=%v", accepted, err)
	}
}

// TestAckRestoresQueueSize verifies publish/dequeue/ack is a no-op on depth.
func TestAckRestoresQueueSize(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	before := engine.Depth("q")
	engine.Publish(ctx, "q", "", []byte("x"), "", "")

	batch, _ := engine.DequeueBatch(ctx, "q", 1)
	if len(batch) != 1 {
		t.Fatalf("Expected one delivery, got %d", len(batch))
	}
	if err := engine.Ack(ctx, batch[0].ReceiptHandle); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}

	if after := engine.Depth("q"); after != before {
		t.Errorf("Depth = %d, want %d", after, before)
	}
}

// TestNackDelaysRedelivery verifies nack hides the message for the delay.
func TestNackDelaysRedelivery(t *testing.T) {
	engine, clock := newTestEngine(t)
	ctx := context.Background()

	engine.Publish(ctx, "q", "", []byte("x"), "", "")
	batch, _ := engine.DequeueBatch(ctx, "q", 1)
	if err := engine.Nack(ctx, batch[0].ReceiptHandle, 30*time.Second); err != nil {
		t.Fatalf("Nack failed: %v", err)
	}

	if redelivered, _ := engine.DequeueBatch(ctx, "q", 1); len(redelivered) != 0 {
		t.Error("Message visible before nack delay elapsed")
	}

	clock.Advance(31 * time.Second)
	redelivered, _ := engine.DequeueBatch(ctx, "q", 1)
	if len(redelivered) != 1 {
		t.Fatal("Message not redelivered after nack delay")
	}
	if redelivered[0].ReceiptHandle == batch[0].ReceiptHandle {
		t.Error("Redelivery reused the old receipt handle")
	}
	if redelivered[0].ReceiveCount != 2 {
		t.Errorf("ReceiveCount = %d, want 2", redelivered[0].ReceiveCount)
	}
}

// TestVisibilityTimeoutInvalidatesReceipt verifies a redelivery after the
// visibility timeout supersedes the old receipt handle.
func TestVisibilityTimeoutInvalidatesReceipt(t *testing.T) {
	engine, clock := newTestEngine(t)
	ctx := context.Background()

	engine.Publish(ctx, "q", "", []byte("x"), "", "")
	first, _ := engine.DequeueBatch(ctx, "q", 1)

	clock.Advance(3 * time.Minute)
	second, _ := engine.DequeueBatch(ctx, "q", 1)
	if len(second) != 1 {
		t.Fatal("Message not redelivered after visibility timeout")
	}

	if err := engine.Ack(ctx, first[0].ReceiptHandle); err != ErrUnknownReceipt {
		t.Errorf("Stale receipt ack error = %v, want ErrUnknownReceipt", err)
	}
	if err := engine.Ack(ctx, second[0].ReceiptHandle); err != nil {
		t.Errorf("Fresh receipt ack failed: %v", err)
	}
}

// TestExtendVisibility verifies the deadline extension keeps the handle valid.
func TestExtendVisibility(t *testing.T) {
	engine, clock := newTestEngine(t)
	ctx := context.Background()

	engine.Publish(ctx, "q", "", []byte("x"), "", "")
	batch, _ := engine.DequeueBatch(ctx, "q", 1)

	clock.Advance(90 * time.Second)
	if err := engine.ExtendVisibility(ctx, batch[0].ReceiptHandle, 2*time.Minute); err != nil {
		t.Fatalf("ExtendVisibility failed: %v", err)
	}

	clock.Advance(90 * time.Second)
	if redelivered, _ := engine.DequeueBatch(ctx, "q", 1); len(redelivered) != 0 {
		t.Error("Message redelivered despite extended visibility")
	}
	if err := engine.Ack(ctx, batch[0].ReceiptHandle); err != nil {
		t.Errorf("Ack after extension failed: %v", err)
	}
}

// TestPublishBatch verifies per-entry dedup results.
func TestPublishBatch(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	results, err := engine.PublishBatch(ctx, "q", []BatchEntry{
		{Body: []byte("a"), MessageGroup: "G", DedupID: "d1"},
		{Body: []byte("b"), MessageGroup: "G", DedupID: "d2"},
		{Body: []byte("a"), MessageGroup: "G", DedupID: "d1"},
	})
	if err != nil {
		t.Fatalf("PublishBatch failed: %v", err)
	}

	want := []bool{true, true, false}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("Entry %d accepted = %v, want %v", i, results[i], want[i])
		}
	}
	if depth := engine.Depth("q"); depth != 2 {
		t.Errorf("Depth = %d, want 2", depth)
	}
}

// TestMessageIDDeduplication verifies a live message ID rejects re-insertion
// as success-deduplicated, and that the ID is reusable once the message is
// acked away.
func TestMessageIDDeduplication(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	accepted, err := engine.Publish(ctx, "q", "msg-1", []byte("a"), "G", "")
	if err != nil || !accepted {
		t.Fatalf("First publish: accepted=%v err=%v", accepted, err)
	}

	accepted, err = engine.Publish(ctx, "q", "msg-1", []byte("b"), "G", "")
	if err != nil {
		t.Fatalf("Duplicate message ID returned error: %v", err)
	}
	if accepted {
		t.Error("Duplicate message ID should be flagged deduplicated")
	}
	if depth := engine.Depth("q"); depth != 1 {
		t.Errorf("Depth = %d, want 1", depth)
	}

	// The same ID is fine in another queue
	accepted, _ = engine.Publish(ctx, "other", "msg-1", []byte("c"), "", "")
	if !accepted {
		t.Error("Message ID uniqueness must be scoped per queue")
	}

	batch, _ := engine.DequeueBatch(ctx, "q", 1)
	if len(batch) != 1 || batch[0].ID != "msg-1" {
		t.Fatalf("Expected msg-1 delivery, got %v", batch)
	}
	if err := engine.Ack(ctx, batch[0].ReceiptHandle); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}

	// Once the row is gone the ID can be inserted again
	accepted, _ = engine.Publish(ctx, "q", "msg-1", []byte("d"), "G", "")
	if !accepted {
		t.Error("Message ID should be accepted after the original was acked")
	}
}

// TestMessageIDDedupInBatch verifies batch entries share the live-ID index.
func TestMessageIDDedupInBatch(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	results, err := engine.PublishBatch(ctx, "q", []BatchEntry{
		{MessageID: "m1", Body: []byte("a")},
		{MessageID: "m2", Body: []byte("b")},
		{MessageID: "m1", Body: []byte("c")},
	})
	if err != nil {
		t.Fatalf("PublishBatch failed: %v", err)
	}

	want := []bool{true, true, false}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("Entry %d accepted = %v, want %v", i, results[i], want[i])
		}
	}
	if depth := engine.Depth("q"); depth != 2 {
		t.Errorf("Depth = %d, want 2", depth)
	}
}

// TestFirstReceivedAtStampedOnce verifies the first-receipt timestamp is
// set on the initial dequeue and untouched by redeliveries.
func TestFirstReceivedAtStampedOnce(t *testing.T) {
	engine, clock := newTestEngine(t)
	ctx := context.Background()

	engine.Publish(ctx, "q", "msg-1", []byte("x"), "", "")

	item := engine.queues["q"].byID["msg-1"]
	if !item.FirstReceivedAt.IsZero() {
		t.Fatal("firstReceivedAt set before any receipt")
	}

	first := clock.Now()
	engine.DequeueBatch(ctx, "q", 1)
	if !item.FirstReceivedAt.Equal(first) {
		t.Fatalf("firstReceivedAt = %v, want %v", item.FirstReceivedAt, first)
	}

	// Redelivery after the visibility timeout must not move it
	clock.Advance(3 * time.Minute)
	redelivered, _ := engine.DequeueBatch(ctx, "q", 1)
	if len(redelivered) != 1 {
		t.Fatal("Message not redelivered after visibility timeout")
	}
	if !item.FirstReceivedAt.Equal(first) {
		t.Errorf("firstReceivedAt moved on redelivery: %v, want %v", item.FirstReceivedAt, first)
	}
}

// TestSnapshotRoundTrip verifies state survives a restart via the snapshot
// file, with in-flight messages keeping their visibility deadline.
func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	ctx := context.Background()

	engine, err := NewEngine(Options{SnapshotPath: path})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	engine.Publish(ctx, "q", "", []byte("persisted"), "G", "dedup-1")
	engine.DequeueBatch(ctx, "q", 1) // leave it in flight

	if err := engine.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	restored, err := NewEngine(Options{SnapshotPath: path})
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	defer restored.Close()

	if depth := restored.Depth("q"); depth != 1 {
		t.Fatalf("Restored depth = %d, want 1", depth)
	}

	// The message was in flight at snapshot time, so it stays invisible
	// until its stored deadline passes
	if batch, _ := restored.DequeueBatch(ctx, "q", 1); len(batch) != 0 {
		t.Errorf("In-flight message visible right after restart: %v", deliveryKeys(batch))
	}

	clock := &fakeClock{now: time.Now().Add(3 * time.Minute)}
	restored.now = clock.Now

	batch, _ := restored.DequeueBatch(ctx, "q", 1)
	if len(batch) != 1 || string(batch[0].Body) != "persisted" {
		t.Errorf("Expected redelivery after the deadline, got %v", deliveryKeys(batch))
	}
	if batch[0].ReceiveCount != 2 {
		t.Errorf("ReceiveCount = %d, want 2", batch[0].ReceiveCount)
	}
	if err := restored.Ack(ctx, batch[0].ReceiptHandle); err != nil {
		t.Errorf("Ack of restored message failed: %v", err)
	}

	// Dedup window survives the restart
	accepted, _ := restored.Publish(ctx, "q", "", []byte("persisted"), "G", "dedup-1")
	if accepted {
		t.Error("Dedup window should survive restart")
	}
}

// TestConsumerDeliversMessages verifies the consumer poll loop hands
// messages to the handler with a working ack.
func TestConsumerDeliversMessages(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine.Publish(ctx, "q", "", []byte("hello"), "G", "")

	consumer := NewConsumer(engine, "q", 10)
	received := make(chan string, 1)

	go consumer.Consume(ctx, func(msg queue.Message) error {
		if err := msg.Ack(); err != nil {
			t.Errorf("Ack failed: %v", err)
		}
		received <- string(msg.Data())
		return nil
	})

	select {
	case body := <-received:
		if body != "hello" {
			t.Errorf("Received %q, want %q", body, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for consumer delivery")
	}

	cancel()

	if depth := engine.Depth("q"); depth != 0 {
		t.Errorf("Depth after ack = %d, want 0", depth)
	}
}

package breaker

import (
	"testing"
	"time"
)

func newTestBreaker() (*Breaker, *fakeClock) {
	b := New("test", Config{
		FailureRateThreshold:     0.5,
		MinimumCalls:             10,
		WaitDuration:             5 * time.Second,
		PermittedCallsInHalfOpen: 3,
		SlidingWindowSize:        100,
	})
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	b.now = clock.Now
	return b, clock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// TestTripAtThreshold verifies the full trip cycle: 5 failures and 5
// successes reach exactly the 0.5 threshold on the 10th call, which opens
// the circuit (the comparison is inclusive). After the wait duration the
// next attempt probes HALF_OPEN; three consecutive successes close it.
func TestTripAtThreshold(t *testing.T) {
	b, clock := newTestBreaker()

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("State after 5 failures = %v, want CLOSED (below minimumCalls)", got)
	}

	for i := 0; i < 4; i++ {
		b.RecordSuccess()
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("State after 9 calls = %v, want CLOSED", got)
	}

	// 10th call: rate is exactly 5/10 = 0.5, which meets the threshold
	b.RecordSuccess()
	if got := b.State(); got != StateOpen {
		t.Fatalf("State after 10th call = %v, want OPEN", got)
	}

	if err := b.Allow(); err != ErrOpen {
		t.Errorf("Allow while OPEN = %v, want ErrOpen", err)
	}

	// After the wait duration the next attempt probes HALF_OPEN
	clock.Advance(5 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow after wait duration = %v, want nil", err)
	}
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("State after wait duration = %v, want HALF_OPEN", got)
	}

	// Three consecutive successes close the circuit
	b.RecordSuccess()
	b.RecordSuccess()
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("State after 2 half-open successes = %v, want HALF_OPEN", got)
	}
	b.RecordSuccess()
	if got := b.State(); got != StateClosed {
		t.Fatalf("State after 3 half-open successes = %v, want CLOSED", got)
	}

	// The window was cleared on close
	if snap := b.Snapshot(); snap.BufferedCalls != 0 {
		t.Errorf("BufferedCalls after close = %d, want 0", snap.BufferedCalls)
	}
}

// TestHalfOpenFailureReopens verifies any failure in HALF_OPEN reopens.
func TestHalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker()

	for i := 0; i < 10; i++ {
		b.RecordFailure()
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("State = %v, want OPEN", got)
	}

	clock.Advance(5 * time.Second)
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("State = %v, want HALF_OPEN", got)
	}

	b.RecordSuccess()
	b.RecordFailure()
	if got := b.State(); got != StateOpen {
		t.Errorf("State after half-open failure = %v, want OPEN", got)
	}

	// The half-open counter resets on the next probe
	clock.Advance(5 * time.Second)
	b.Allow()
	b.RecordSuccess()
	b.RecordSuccess()
	b.RecordSuccess()
	if got := b.State(); got != StateClosed {
		t.Errorf("State after fresh probe successes = %v, want CLOSED", got)
	}
}

// TestBelowMinimumCallsNeverTrips verifies the rate is not evaluated until
// minimumCalls are buffered.
func TestBelowMinimumCallsNeverTrips(t *testing.T) {
	b, _ := newTestBreaker()

	for i := 0; i < 9; i++ {
		b.RecordFailure()
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("State with 9 buffered calls = %v, want CLOSED", got)
	}
}

// TestRejectedCounter verifies rejected calls are counted while OPEN.
func TestRejectedCounter(t *testing.T) {
	b, _ := newTestBreaker()

	for i := 0; i < 10; i++ {
		b.RecordFailure()
	}
	for i := 0; i < 3; i++ {
		b.Allow()
	}

	snap := b.Snapshot()
	if snap.RejectedCalls != 3 {
		t.Errorf("RejectedCalls = %d, want 3", snap.RejectedCalls)
	}
	if snap.FailedCalls != 10 {
		t.Errorf("FailedCalls = %d, want 10", snap.FailedCalls)
	}
	if snap.FailureRate != 1.0 {
		t.Errorf("FailureRate = %v, want 1.0", snap.FailureRate)
	}
}

// TestEmptyWindowRate verifies failure rate is 0 with no buffered calls.
func TestEmptyWindowRate(t *testing.T) {
	b, _ := newTestBreaker()
	if snap := b.Snapshot(); snap.FailureRate != 0 {
		t.Errorf("FailureRate = %v, want 0", snap.FailureRate)
	}
}

// TestSmallWindowTrip verifies the threshold works with a small window.
func TestSmallWindowTrip(t *testing.T) {
	b := New("small", Config{
		FailureRateThreshold:     0.5,
		MinimumCalls:             4,
		WaitDuration:             time.Second,
		PermittedCallsInHalfOpen: 1,
		SlidingWindowSize:        4,
	})

	// Two failures then two successes: rate 0.5 trips at the 4th call
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	if got := b.State(); got != StateClosed {
		t.Fatalf("State = %v, want CLOSED", got)
	}
	b.RecordSuccess()
	if got := b.State(); got != StateOpen {
		t.Fatalf("State = %v, want OPEN at rate 0.5", got)
	}
}

// TestRegistryReusesBreakers verifies one breaker per key.
func TestRegistryReusesBreakers(t *testing.T) {
	reg := NewRegistry(DefaultConfig())

	a := reg.Get("http://a.example.com/hook")
	b := reg.Get("http://b.example.com/hook")
	again := reg.Get("http://a.example.com/hook")

	if a == b {
		t.Error("Different keys returned the same breaker")
	}
	if a != again {
		t.Error("Same key returned a different breaker")
	}

	if stats := reg.Snapshots(); len(stats) != 2 {
		t.Errorf("Snapshots count = %d, want 2", len(stats))
	}
}

// Package breaker implements the per-target circuit breaker used by the
// HTTP mediator. Unlike interval-based breakers, it keeps a fixed-size
// ring buffer of call outcomes and evaluates the failure rate over that
// window, with a lazily-evaluated OPEN to HALF_OPEN transition.
package breaker

import (
	"errors"
	"sync"
	"time"

	"log/slog"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpen is returned by Allow when the circuit rejects the call.
var ErrOpen = errors.New("circuit breaker is open")

// Config holds the breaker thresholds.
type Config struct {
	// FailureRateThreshold trips the breaker when the windowed failure
	// rate reaches it (inclusive). Range (0, 1].
	FailureRateThreshold float64

	// MinimumCalls is how many calls must be buffered before the rate
	// is evaluated at all.
	MinimumCalls int

	// WaitDuration is how long the breaker stays OPEN before the next
	// attempt probes HALF_OPEN.
	WaitDuration time.Duration

	// PermittedCallsInHalfOpen is the number of consecutive successes
	// required to close the breaker from HALF_OPEN.
	PermittedCallsInHalfOpen int

	// SlidingWindowSize is the ring buffer capacity.
	SlidingWindowSize int
}

// DefaultConfig returns the breaker defaults.
func DefaultConfig() Config {
	return Config{
		FailureRateThreshold:     0.5,
		MinimumCalls:             10,
		WaitDuration:             5 * time.Second,
		PermittedCallsInHalfOpen: 3,
		SlidingWindowSize:        100,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.FailureRateThreshold <= 0 {
		c.FailureRateThreshold = def.FailureRateThreshold
	}
	if c.MinimumCalls <= 0 {
		c.MinimumCalls = def.MinimumCalls
	}
	if c.WaitDuration <= 0 {
		c.WaitDuration = def.WaitDuration
	}
	if c.PermittedCallsInHalfOpen <= 0 {
		c.PermittedCallsInHalfOpen = def.PermittedCallsInHalfOpen
	}
	if c.SlidingWindowSize <= 0 {
		c.SlidingWindowSize = def.SlidingWindowSize
	}
}

// Stats is a snapshot of breaker counters for metrics and monitoring.
type Stats struct {
	Name            string  `json:"name"`
	State           string  `json:"state"`
	SuccessfulCalls int64   `json:"successfulCalls"`
	FailedCalls     int64   `json:"failedCalls"`
	RejectedCalls   int64   `json:"rejectedCalls"`
	FailureRate     float64 `json:"failureRate"`
	BufferedCalls   int     `json:"bufferedCalls"`
	BufferSize      int     `json:"bufferSize"`
}

// Breaker is a single circuit breaker instance. Safe for concurrent use.
type Breaker struct {
	name string
	cfg  Config

	mu            sync.Mutex
	state         State
	transitionAt  time.Time
	window        []bool // true = failure
	windowPos     int
	windowCount   int
	halfOpenRuns  int
	successTotal  int64
	failureTotal  int64
	rejectedTotal int64

	now func() time.Time
}

// New creates a circuit breaker with the given name and configuration.
func New(name string, cfg Config) *Breaker {
	cfg.applyDefaults()
	return &Breaker{
		name:   name,
		cfg:    cfg,
		state:  StateClosed,
		window: make([]bool, cfg.SlidingWindowSize),
		now:    time.Now,
	}
}

// Allow reports whether a call may proceed. When the breaker is OPEN and
// the wait duration has elapsed, the call probes HALF_OPEN and is allowed.
// A rejected call increments the rejected counter.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshLocked()

	if b.state == StateOpen {
		b.rejectedTotal++
		return ErrOpen
	}
	return nil
}

// RecordSuccess records a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshLocked()
	b.successTotal++

	switch b.state {
	case StateHalfOpen:
		b.halfOpenRuns++
		if b.halfOpenRuns >= b.cfg.PermittedCallsInHalfOpen {
			b.transitionLocked(StateClosed)
		}
	case StateClosed:
		b.recordWindowLocked(false)
		b.evaluateLocked()
	}
}

// RecordFailure records a failed call outcome.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshLocked()
	b.failureTotal++

	switch b.state {
	case StateHalfOpen:
		b.transitionLocked(StateOpen)
	case StateClosed:
		b.recordWindowLocked(true)
		b.evaluateLocked()
	}
}

// evaluateLocked trips the breaker when enough calls are buffered and the
// failure rate has reached the threshold. The comparison is inclusive: a
// rate exactly at the threshold opens the circuit.
func (b *Breaker) evaluateLocked() {
	if b.windowCount >= b.cfg.MinimumCalls && b.failureRateLocked() >= b.cfg.FailureRateThreshold {
		b.transitionLocked(StateOpen)
	}
}

// State returns the current state, applying the lazy OPEN to HALF_OPEN
// transition first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshLocked()
	return b.state
}

// Snapshot returns current counters.
func (b *Breaker) Snapshot() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshLocked()
	return Stats{
		Name:            b.name,
		State:           b.state.String(),
		SuccessfulCalls: b.successTotal,
		FailedCalls:     b.failureTotal,
		RejectedCalls:   b.rejectedTotal,
		FailureRate:     b.failureRateLocked(),
		BufferedCalls:   b.windowCount,
		BufferSize:      b.cfg.SlidingWindowSize,
	}
}

// Reset forces the breaker back to CLOSED and clears the sliding window.
// Counters are kept so totals remain meaningful across manual resets.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.transitionAt = b.now()
	b.window = make([]bool, b.cfg.SlidingWindowSize)
	b.windowPos = 0
	b.windowCount = 0
	b.halfOpenRuns = 0
}

// refreshLocked applies the time-based OPEN to HALF_OPEN transition.
func (b *Breaker) refreshLocked() {
	if b.state == StateOpen && b.now().Sub(b.transitionAt) >= b.cfg.WaitDuration {
		b.transitionLocked(StateHalfOpen)
	}
}

func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.transitionAt = b.now()

	switch to {
	case StateClosed:
		// Fresh window so stale failures cannot immediately re-trip
		for i := range b.window {
			b.window[i] = false
		}
		b.windowPos = 0
		b.windowCount = 0
	case StateHalfOpen:
		b.halfOpenRuns = 0
	}

	slog.Info("Circuit breaker state changed",
		"name", b.name,
		"from", from.String(),
		"to", to.String())
}

func (b *Breaker) recordWindowLocked(failure bool) {
	b.window[b.windowPos] = failure
	b.windowPos = (b.windowPos + 1) % b.cfg.SlidingWindowSize
	if b.windowCount < b.cfg.SlidingWindowSize {
		b.windowCount++
	}
}

func (b *Breaker) failureRateLocked() float64 {
	if b.windowCount == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < b.windowCount; i++ {
		if b.window[i] {
			failures++
		}
	}
	return float64(failures) / float64(b.windowCount)
}

// Registry creates and caches breakers by key, one per mediation target.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewRegistry creates a registry whose breakers share the given config.
func NewRegistry(cfg Config) *Registry {
	cfg.applyDefaults()
	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for the key, creating it on first use.
func (r *Registry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[key]; ok {
		return b
	}
	b := New(key, r.cfg)
	r.breakers[key] = b
	return b
}

// Lookup returns the breaker for the key without creating one.
func (r *Registry) Lookup(key string) (*Breaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[key]
	return b, ok
}

// Reset resets the breaker for the key. Returns false if no breaker exists.
func (r *Registry) Reset(key string) bool {
	b, ok := r.Lookup(key)
	if !ok {
		return false
	}
	b.Reset()
	return true
}

// ResetAll resets every breaker in the registry.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	for _, b := range breakers {
		b.Reset()
	}
}

// Snapshots returns stats for every breaker in the registry.
func (r *Registry) Snapshots() []Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make([]Stats, 0, len(r.breakers))
	for _, b := range r.breakers {
		stats = append(stats, b.Snapshot())
	}
	return stats
}

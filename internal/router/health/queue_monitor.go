package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowcatalyst/messagerouter/internal/router/warning"
)

// maxGrowthStreak caps the consecutive-growth counter. Once a queue has
// been growing for this many periods no further QUEUE_GROWING warnings
// are raised until the streak resets.
const maxGrowthStreak = 10

// WarningSink receives warnings raised by health monitors
type WarningSink interface {
	AddWarning(category, severity, message, source string)
}

// QueueDepthProvider reports the current pending message count per queue
type QueueDepthProvider interface {
	GetQueueDepths() map[string]int64
}

// QueueMonitorConfig holds queue backlog monitoring thresholds
type QueueMonitorConfig struct {
	// CheckInterval is how often queue depths are sampled
	CheckInterval time.Duration

	// BacklogThreshold is the pending-message depth above which a
	// QUEUE_BACKLOG warning is raised
	BacklogThreshold int64

	// GrowthThreshold is the per-period depth increase that counts as growth
	GrowthThreshold int64

	// GrowthPeriods is how many consecutive growing periods trigger a
	// QUEUE_GROWING warning
	GrowthPeriods int
}

// DefaultQueueMonitorConfig returns sensible defaults
func DefaultQueueMonitorConfig() *QueueMonitorConfig {
	return &QueueMonitorConfig{
		CheckInterval:    time.Minute,
		BacklogThreshold: 1000,
		GrowthThreshold:  100,
		GrowthPeriods:    3,
	}
}

// queueTrend tracks the depth history of a single queue between samples
type queueTrend struct {
	lastDepth    int64
	hasLast      bool
	growthStreak int
}

// QueueHealthMonitor samples per-queue pending-message depth and raises
// QUEUE_BACKLOG and QUEUE_GROWING warnings. A queue is "growing" when its
// depth increased by at least GrowthThreshold since the previous sample;
// GrowthPeriods consecutive growing samples raise a warning, and the
// streak counter is capped so a queue that keeps growing does not flood
// the warning log. The streak resets as soon as growth falls below the
// threshold.
type QueueHealthMonitor struct {
	config   *QueueMonitorConfig
	depths   QueueDepthProvider
	warnings WarningSink

	mu     sync.Mutex
	trends map[string]*queueTrend

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewQueueHealthMonitor creates a queue health monitor
func NewQueueHealthMonitor(config *QueueMonitorConfig, depths QueueDepthProvider, warnings WarningSink) *QueueHealthMonitor {
	if config == nil {
		config = DefaultQueueMonitorConfig()
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if config.BacklogThreshold <= 0 {
		config.BacklogThreshold = 1000
	}
	if config.GrowthThreshold <= 0 {
		config.GrowthThreshold = 100
	}
	if config.GrowthPeriods <= 0 {
		config.GrowthPeriods = 3
	}

	return &QueueHealthMonitor{
		config:   config,
		depths:   depths,
		warnings: warnings,
		trends:   make(map[string]*queueTrend),
	}
}

// Start launches the periodic sampling loop
func (m *QueueHealthMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go m.run(ctx)

	slog.Info("Queue health monitor started",
		"interval", m.config.CheckInterval,
		"backlogThreshold", m.config.BacklogThreshold,
		"growthThreshold", m.config.GrowthThreshold,
		"growthPeriods", m.config.GrowthPeriods)
}

// Stop stops the sampling loop
func (m *QueueHealthMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	slog.Info("Queue health monitor stopped")
}

// IsRunning returns true while the sampling loop is active
func (m *QueueHealthMonitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *QueueHealthMonitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckOnce()
		}
	}
}

// CheckOnce samples every queue and raises warnings where thresholds are
// crossed. Exposed for on-demand checks from the monitoring API.
func (m *QueueHealthMonitor) CheckOnce() {
	if m.depths == nil {
		return
	}

	depths := m.depths.GetQueueDepths()

	m.mu.Lock()
	defer m.mu.Unlock()

	for queueID, depth := range depths {
		m.checkQueue(queueID, depth)
	}

	// Drop trend state for queues that disappeared from the stats
	for queueID := range m.trends {
		if _, ok := depths[queueID]; !ok {
			delete(m.trends, queueID)
		}
	}
}

// checkQueue applies the backlog and growth rules to a single sample.
// Must be called with the lock held.
func (m *QueueHealthMonitor) checkQueue(queueID string, depth int64) {
	trend, ok := m.trends[queueID]
	if !ok {
		trend = &queueTrend{}
		m.trends[queueID] = trend
	}

	if depth > m.config.BacklogThreshold {
		m.warnings.AddWarning(
			warning.CategoryQueueBacklog,
			warning.SeverityWarning,
			fmt.Sprintf("Queue [%s] backlog is %d messages (threshold %d)",
				queueID, depth, m.config.BacklogThreshold),
			"QueueHealthMonitor")
	}

	if trend.hasLast {
		growth := depth - trend.lastDepth
		if growth >= m.config.GrowthThreshold {
			if trend.growthStreak < maxGrowthStreak {
				trend.growthStreak++
				if trend.growthStreak >= m.config.GrowthPeriods {
					m.warnings.AddWarning(
						warning.CategoryQueueGrowing,
						warning.SeverityWarning,
						fmt.Sprintf("Queue [%s] has been growing for %d consecutive periods (depth %d, +%d last period)",
							queueID, trend.growthStreak, depth, growth),
						"QueueHealthMonitor")
				}
			}
		} else {
			trend.growthStreak = 0
		}
	}

	trend.lastDepth = depth
	trend.hasLast = true
}

// GrowthStreak returns the current consecutive-growth count for a queue.
// Returns 0 for unknown queues.
func (m *QueueHealthMonitor) GrowthStreak(queueID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if trend, ok := m.trends[queueID]; ok {
		return trend.growthStreak
	}
	return 0
}

package api

import (
	"time"

	"github.com/flowcatalyst/messagerouter/internal/router/breaker"
	"github.com/flowcatalyst/messagerouter/internal/router/health"
	"github.com/flowcatalyst/messagerouter/internal/router/metrics"
	"github.com/flowcatalyst/messagerouter/internal/router/traffic"
	"github.com/flowcatalyst/messagerouter/internal/router/warning"
)

// The monitoring API consumes the health package's view of warnings,
// queue stats, pool stats and circuit breakers. The services producing
// those numbers live in their own packages with their own types; the
// adapters here bridge the two so composition roots don't have to.

// WarningAdapter exposes a warning service to the monitoring API and
// the health status aggregator.
type WarningAdapter struct {
	svc warning.Service
}

// NewWarningAdapter wraps a warning service.
func NewWarningAdapter(svc warning.Service) *WarningAdapter {
	return &WarningAdapter{svc: svc}
}

func (a *WarningAdapter) GetAllWarnings() []*health.Warning {
	return convertWarnings(a.svc.GetAllWarnings())
}

func (a *WarningAdapter) GetUnacknowledgedWarnings() []*health.Warning {
	return convertWarnings(a.svc.GetUnacknowledgedWarnings())
}

func (a *WarningAdapter) GetWarningsBySeverity(severity string) []*health.Warning {
	return convertWarnings(a.svc.GetWarningsBySeverity(severity))
}

func (a *WarningAdapter) AcknowledgeWarning(id string) bool {
	return a.svc.AcknowledgeWarning(id)
}

func (a *WarningAdapter) ClearAllWarnings() {
	a.svc.ClearAllWarnings()
}

func (a *WarningAdapter) ClearOldWarnings(hours int) {
	a.svc.ClearOldWarnings(hours)
}

func convertWarnings(warnings []warning.Warning) []*health.Warning {
	out := make([]*health.Warning, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, &health.Warning{
			ID:           w.ID,
			Category:     w.Category,
			Severity:     w.Severity,
			Message:      w.Message,
			Source:       w.Source,
			Timestamp:    w.Timestamp,
			Acknowledged: w.Acknowledged,
		})
	}
	return out
}

// QueueStatsAdapter exposes queue metrics as health queue stats and as
// the depth provider for the backlog monitor.
type QueueStatsAdapter struct {
	svc metrics.QueueMetricsService
}

// NewQueueStatsAdapter wraps a queue metrics service.
func NewQueueStatsAdapter(svc metrics.QueueMetricsService) *QueueStatsAdapter {
	return &QueueStatsAdapter{svc: svc}
}

func (a *QueueStatsAdapter) GetAllQueueStats() map[string]*health.QueueStats {
	all := a.svc.GetAllQueueStats()
	out := make(map[string]*health.QueueStats, len(all))
	for name, qs := range all {
		out[name] = &health.QueueStats{
			Name:               qs.Name,
			TotalMessages:      qs.TotalMessages,
			TotalConsumed:      qs.TotalConsumed,
			TotalFailed:        qs.TotalFailed,
			SuccessRate:        qs.SuccessRate,
			CurrentSize:        qs.CurrentSize,
			Throughput:         qs.Throughput,
			PendingMessages:    qs.PendingMessages,
			MessagesNotVisible: qs.MessagesNotVisible,
		}
	}
	return out
}

func (a *QueueStatsAdapter) GetTotalQueueDepth() int64 {
	var total int64
	for _, qs := range a.svc.GetAllQueueStats() {
		total += qs.PendingMessages
	}
	return total
}

func (a *QueueStatsAdapter) GetThroughput() float64 {
	var total float64
	for _, qs := range a.svc.GetAllQueueStats() {
		total += qs.Throughput
	}
	return total
}

func (a *QueueStatsAdapter) GetQueueDepths() map[string]int64 {
	all := a.svc.GetAllQueueStats()
	out := make(map[string]int64, len(all))
	for name, qs := range all {
		out[name] = qs.PendingMessages
	}
	return out
}

// PoolStatsAdapter exposes pool metrics as health pool stats.
type PoolStatsAdapter struct {
	svc metrics.PoolMetricsService
}

// NewPoolStatsAdapter wraps a pool metrics service.
func NewPoolStatsAdapter(svc metrics.PoolMetricsService) *PoolStatsAdapter {
	return &PoolStatsAdapter{svc: svc}
}

func (a *PoolStatsAdapter) GetAllPoolStats() map[string]*health.PoolStats {
	all := a.svc.GetAllPoolStats()
	out := make(map[string]*health.PoolStats, len(all))
	for code, ps := range all {
		out[code] = &health.PoolStats{
			PoolCode:                ps.PoolCode,
			TotalProcessed:          ps.TotalProcessed,
			TotalSucceeded:          ps.TotalSucceeded,
			TotalFailed:             ps.TotalFailed,
			TotalRateLimited:        ps.TotalRateLimited,
			SuccessRate:             ps.SuccessRate,
			ActiveWorkers:           ps.ActiveWorkers,
			AvailablePermits:        ps.AvailablePermits,
			MaxConcurrency:          ps.MaxConcurrency,
			QueueSize:               ps.QueueSize,
			MaxQueueCapacity:        ps.MaxQueueCapacity,
			AverageProcessingTimeMs: ps.AverageProcessingTimeMs,
		}
	}
	return out
}

func (a *PoolStatsAdapter) GetLastActivityTimestamp(poolCode string) *time.Time {
	return a.svc.GetLastActivityTimestamp(poolCode)
}

// BreakerAdapter exposes the mediator's breaker registry to the
// monitoring API, including manual reset operations.
type BreakerAdapter struct {
	registry *breaker.Registry
}

// NewBreakerAdapter wraps a breaker registry.
func NewBreakerAdapter(registry *breaker.Registry) *BreakerAdapter {
	return &BreakerAdapter{registry: registry}
}

func (a *BreakerAdapter) GetAllCircuitBreakerStats() map[string]*health.CircuitBreakerStats {
	snapshots := a.registry.Snapshots()
	out := make(map[string]*health.CircuitBreakerStats, len(snapshots))
	for _, s := range snapshots {
		out[s.Name] = &health.CircuitBreakerStats{
			Name:            s.Name,
			State:           s.State,
			SuccessfulCalls: s.SuccessfulCalls,
			FailedCalls:     s.FailedCalls,
			RejectedCalls:   s.RejectedCalls,
			FailureRate:     s.FailureRate,
			BufferedCalls:   s.BufferedCalls,
			BufferSize:      s.BufferSize,
		}
	}
	return out
}

func (a *BreakerAdapter) GetOpenCircuitBreakerCount() int {
	open := 0
	for _, s := range a.registry.Snapshots() {
		if s.State == breaker.StateOpen.String() {
			open++
		}
	}
	return open
}

func (a *BreakerAdapter) GetCircuitBreakerState(name string) string {
	b, ok := a.registry.Lookup(name)
	if !ok {
		return "UNKNOWN"
	}
	return b.State().String()
}

func (a *BreakerAdapter) ResetCircuitBreaker(name string) bool {
	return a.registry.Reset(name)
}

func (a *BreakerAdapter) ResetAllCircuitBreakers() {
	a.registry.ResetAll()
}

// TrafficStatusAdapter converts the traffic service's status for the
// monitoring API.
type TrafficStatusAdapter struct {
	svc *traffic.Service
}

// NewTrafficStatusAdapter wraps a traffic service.
func NewTrafficStatusAdapter(svc *traffic.Service) *TrafficStatusAdapter {
	return &TrafficStatusAdapter{svc: svc}
}

func (a *TrafficStatusAdapter) IsEnabled() bool {
	return a.svc.IsEnabled()
}

func (a *TrafficStatusAdapter) GetStatus() *health.TrafficStatus {
	st := a.svc.GetStatus()
	if st == nil {
		return &health.TrafficStatus{Enabled: a.svc.IsEnabled()}
	}
	return &health.TrafficStatus{
		Enabled:       a.svc.IsEnabled(),
		StrategyType:  st.StrategyType,
		Registered:    st.Registered,
		TargetInfo:    st.TargetInfo,
		LastOperation: st.LastOperation,
		LastError:     st.LastError,
	}
}

package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowcatalyst/messagerouter/internal/router/warning"
)

// QueueType represents the type of message queue
type QueueType string

const (
	QueueTypeSQS      QueueType = "SQS"
	QueueTypeNATS     QueueType = "NATS"
	QueueTypeActiveMQ QueueType = "ACTIVEMQ"
	QueueTypeEmbedded QueueType = "EMBEDDED"
)

// BrokerConnectivityChecker provides broker-specific connectivity checks
type BrokerConnectivityChecker interface {
	// CheckConnectivity checks if the broker is accessible
	CheckConnectivity(ctx context.Context) error
	// CheckQueueAccessible checks if a specific queue is accessible
	CheckQueueAccessible(ctx context.Context, queueName string) error
}

// CheckerFunc adapts a probe function to BrokerConnectivityChecker.
// Queue accessibility uses the same probe; brokers that can check a
// specific queue more cheaply implement the interface directly.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) CheckConnectivity(ctx context.Context) error {
	return f(ctx)
}

func (f CheckerFunc) CheckQueueAccessible(ctx context.Context, queueName string) error {
	return f(ctx)
}

// BrokerHealthService checks broker (SQS/NATS/ActiveMQ) connectivity and health.
// Provides explicit health checks for external messaging dependencies.
type BrokerHealthService struct {
	mu sync.RWMutex

	enabled    bool
	queueType  QueueType
	checker    BrokerConnectivityChecker
	lastCheck  time.Time
	lastResult bool
	lastIssues []string
	lastErr    error

	// Warning emission after sustained failure
	warnings            WarningSink
	failureThreshold    int
	consecutiveFailures int

	// Periodic probe loop
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	monitoring bool

	// Metrics
	connectionAttempts  int64
	connectionSuccesses int64
	connectionFailures  int64
	brokerAvailable     atomic.Int32
}

// NewBrokerHealthService creates a new broker health service
func NewBrokerHealthService(enabled bool, queueType QueueType, checker BrokerConnectivityChecker) *BrokerHealthService {
	svc := &BrokerHealthService{
		enabled:   enabled,
		queueType: queueType,
		checker:   checker,
	}
	svc.brokerAvailable.Store(0)
	return svc
}

// CheckBrokerConnectivity checks broker connectivity based on configured queue type.
// This is a quick connectivity check, not a full queue validation.
// Returns a list of issues found, empty if healthy.
func (s *BrokerHealthService) CheckBrokerConnectivity() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		slog.Debug("Message router disabled, skipping broker connectivity check")
		return []string{}
	}

	atomic.AddInt64(&s.connectionAttempts, 1)
	s.lastCheck = time.Now()

	var issues []string

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var connected bool
	var checkErr error

	switch s.queueType {
	case QueueTypeEmbedded:
		// Embedded queue is always available
		connected = true

	default:
		if s.checker != nil {
			checkErr = s.checker.CheckConnectivity(ctx)
			if checkErr != nil {
				slog.Error("Broker connectivity check failed", "error", checkErr, "queueType", string(s.queueType))
				issues = append(issues, fmt.Sprintf("%s broker connectivity check failed: %v", s.queueType, checkErr))
				connected = false
			} else {
				connected = true
			}
		} else {
			slog.Warn("No broker connectivity checker configured", "queueType", string(s.queueType))
			issues = append(issues, fmt.Sprintf("%s broker checker not configured", s.queueType))
			connected = false
		}
	}

	if connected {
		atomic.AddInt64(&s.connectionSuccesses, 1)
		s.brokerAvailable.Store(1)
		s.consecutiveFailures = 0
		slog.Debug("Broker connectivity check passed", "queueType", string(s.queueType))
	} else {
		atomic.AddInt64(&s.connectionFailures, 1)
		s.brokerAvailable.Store(0)
		s.consecutiveFailures++
		if len(issues) == 0 {
			issues = append(issues, fmt.Sprintf("%s broker is not accessible", s.queueType))
		}
		s.emitFailureWarning(checkErr, issues)
	}

	s.lastResult = connected
	s.lastIssues = issues
	s.lastErr = checkErr
	return issues
}

// emitFailureWarning raises a BROKER_HEALTH warning once the broker has
// failed failureThreshold checks in a row. A bare connectivity refusal is
// an ERROR; a wrapped error chain means something deeper than the socket
// went wrong and escalates to CRITICAL. Must be called with the lock held.
func (s *BrokerHealthService) emitFailureWarning(err error, issues []string) {
	if s.warnings == nil || s.failureThreshold <= 0 {
		return
	}
	if s.consecutiveFailures != s.failureThreshold {
		return
	}

	severity := warning.SeverityError
	if err != nil && errors.Unwrap(err) != nil {
		severity = warning.SeverityCritical
	}

	message := fmt.Sprintf("%s broker failed %d consecutive health checks", s.queueType, s.consecutiveFailures)
	if len(issues) > 0 {
		message = fmt.Sprintf("%s: %s", message, issues[0])
	}

	s.warnings.AddWarning(warning.CategoryBrokerHealth, severity, message, "BrokerHealthService")
}

// SetWarningSink configures warning emission: after failureThreshold
// consecutive failed checks a BROKER_HEALTH warning is raised
func (s *BrokerHealthService) SetWarningSink(sink WarningSink, failureThreshold int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = sink
	s.failureThreshold = failureThreshold
}

// ConsecutiveFailures returns the current run of failed checks
func (s *BrokerHealthService) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveFailures
}

// StartMonitoring launches a periodic connectivity probe
func (s *BrokerHealthService) StartMonitoring(interval time.Duration) {
	s.mu.Lock()
	if s.monitoring {
		s.mu.Unlock()
		return
	}
	s.monitoring = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CheckBrokerConnectivity()
			}
		}
	}()

	slog.Info("Broker health monitoring started", "interval", interval, "queueType", string(s.queueType))
}

// StopMonitoring stops the periodic probe
func (s *BrokerHealthService) StopMonitoring() {
	s.mu.Lock()
	if !s.monitoring {
		s.mu.Unlock()
		return
	}
	s.monitoring = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// CheckQueueAccessible checks if a specific queue is accessible
func (s *BrokerHealthService) CheckQueueAccessible(queueName string) []string {
	if !s.enabled || s.checker == nil {
		return []string{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.checker.CheckQueueAccessible(ctx, queueName)
	if err != nil {
		return []string{fmt.Sprintf("Cannot access queue [%s]: %v", queueName, err)}
	}

	return []string{}
}

// GetBrokerType returns the current broker type
func (s *BrokerHealthService) GetBrokerType() QueueType {
	return s.queueType
}

// IsAvailable returns whether the broker is currently available
func (s *BrokerHealthService) IsAvailable() bool {
	return s.brokerAvailable.Load() == 1
}

// GetMetrics returns broker health metrics
func (s *BrokerHealthService) GetMetrics() (attempts, successes, failures int64) {
	return atomic.LoadInt64(&s.connectionAttempts),
		atomic.LoadInt64(&s.connectionSuccesses),
		atomic.LoadInt64(&s.connectionFailures)
}

// GetLastCheck returns the last check time and result
func (s *BrokerHealthService) GetLastCheck() (time.Time, bool, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCheck, s.lastResult, s.lastIssues
}

// SetChecker updates the broker connectivity checker
func (s *BrokerHealthService) SetChecker(checker BrokerConnectivityChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checker = checker
}

package health

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/flowcatalyst/messagerouter/internal/router/warning"
)

type stubChecker struct {
	err error
}

func (s *stubChecker) CheckConnectivity(ctx context.Context) error {
	return s.err
}

func (s *stubChecker) CheckQueueAccessible(ctx context.Context, queueName string) error {
	return s.err
}

func TestBrokerWarningAfterConsecutiveFailures(t *testing.T) {
	checker := &stubChecker{err: errors.New("connection refused")}
	sink := &recordingSink{}

	svc := NewBrokerHealthService(true, QueueTypeNATS, checker)
	svc.SetWarningSink(sink, 3)

	for i := 0; i < 3; i++ {
		svc.CheckBrokerConnectivity()
	}

	if got := sink.countCategory(warning.CategoryBrokerHealth); got != 1 {
		t.Fatalf("expected 1 broker warning after 3 failures, got %d", got)
	}
	if sink.warnings[0].severity != warning.SeverityError {
		t.Errorf("severity = %s, want ERROR", sink.warnings[0].severity)
	}
	if svc.ConsecutiveFailures() != 3 {
		t.Errorf("consecutive failures = %d, want 3", svc.ConsecutiveFailures())
	}

	// Further failures do not repeat the warning
	svc.CheckBrokerConnectivity()
	if got := sink.countCategory(warning.CategoryBrokerHealth); got != 1 {
		t.Errorf("warning repeated on failure 4, got %d warnings", got)
	}
}

func TestBrokerWarningEscalatesOnWrappedError(t *testing.T) {
	checker := &stubChecker{err: fmt.Errorf("session lost: %w", errors.New("TLS handshake failed"))}
	sink := &recordingSink{}

	svc := NewBrokerHealthService(true, QueueTypeActiveMQ, checker)
	svc.SetWarningSink(sink, 2)

	svc.CheckBrokerConnectivity()
	svc.CheckBrokerConnectivity()

	if got := sink.countCategory(warning.CategoryBrokerHealth); got != 1 {
		t.Fatalf("expected 1 broker warning, got %d", got)
	}
	if sink.warnings[0].severity != warning.SeverityCritical {
		t.Errorf("severity = %s, want CRITICAL for wrapped error", sink.warnings[0].severity)
	}
}

func TestBrokerSuccessResetsFailureCount(t *testing.T) {
	checker := &stubChecker{err: errors.New("connection refused")}
	sink := &recordingSink{}

	svc := NewBrokerHealthService(true, QueueTypeSQS, checker)
	svc.SetWarningSink(sink, 3)

	svc.CheckBrokerConnectivity()
	svc.CheckBrokerConnectivity()

	checker.err = nil
	svc.CheckBrokerConnectivity()

	if svc.ConsecutiveFailures() != 0 {
		t.Errorf("consecutive failures = %d, want 0 after success", svc.ConsecutiveFailures())
	}
	if !svc.IsAvailable() {
		t.Error("broker should be available after successful check")
	}

	// The run restarts: two more failures are still under the threshold
	checker.err = errors.New("connection refused")
	svc.CheckBrokerConnectivity()
	svc.CheckBrokerConnectivity()

	if got := sink.countCategory(warning.CategoryBrokerHealth); got != 0 {
		t.Errorf("expected no warnings below threshold, got %d", got)
	}
}

func TestEmbeddedBrokerAlwaysHealthy(t *testing.T) {
	sink := &recordingSink{}

	svc := NewBrokerHealthService(true, QueueTypeEmbedded, nil)
	svc.SetWarningSink(sink, 1)

	issues := svc.CheckBrokerConnectivity()

	if len(issues) != 0 {
		t.Errorf("embedded broker reported issues: %v", issues)
	}
	if !svc.IsAvailable() {
		t.Error("embedded broker should always be available")
	}
	if len(sink.warnings) != 0 {
		t.Errorf("embedded broker raised warnings: %v", sink.warnings)
	}
}

func TestDisabledRouterSkipsCheck(t *testing.T) {
	checker := &stubChecker{err: errors.New("connection refused")}

	svc := NewBrokerHealthService(false, QueueTypeNATS, checker)

	issues := svc.CheckBrokerConnectivity()
	if len(issues) != 0 {
		t.Errorf("disabled router should skip the check, got issues: %v", issues)
	}

	attempts, _, _ := svc.GetMetrics()
	if attempts != 0 {
		t.Errorf("disabled router recorded %d attempts", attempts)
	}
}

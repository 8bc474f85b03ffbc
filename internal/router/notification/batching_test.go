package notification

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flowcatalyst/messagerouter/internal/config"
)

// recordingService captures notifications for assertions.
type recordingService struct {
	mu       sync.Mutex
	warnings []*Warning
}

func (r *recordingService) NotifyWarning(w *Warning) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, w)
}

func (r *recordingService) NotifyCriticalError(message, source string) {}

func (r *recordingService) NotifySystemEvent(eventType, message string) {}

func (r *recordingService) IsEnabled() bool { return true }

func (r *recordingService) received() []*Warning {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Warning(nil), r.warnings...)
}

func TestBatchingService_FiltersBelowMinSeverity(t *testing.T) {
	delegate := &recordingService{}
	svc := NewBatchingService([]Service{delegate}, &BatchingConfig{
		MinSeverity: "ERROR",
		BatchWindow: time.Minute,
	})

	svc.NotifyWarning(&Warning{Severity: "WARNING", Category: "POOL", Message: "below threshold"})
	svc.SendBatch()

	if got := delegate.received(); len(got) != 0 {
		t.Errorf("Expected no notifications for sub-threshold warning, got %d", len(got))
	}
}

func TestBatchingService_SendBatchBuildsSummary(t *testing.T) {
	delegate := &recordingService{}
	svc := NewBatchingService([]Service{delegate}, &BatchingConfig{
		MinSeverity: "WARNING",
		BatchWindow: time.Minute,
	})

	svc.NotifyWarning(&Warning{Severity: "WARNING", Category: "QUEUE_BACKLOG", Message: "backlog at 1500"})
	svc.NotifyWarning(&Warning{Severity: "ERROR", Category: "CIRCUIT_BREAKER", Message: "breaker open"})
	svc.NotifyCriticalError("mediator unreachable", "HttpMediator")

	svc.SendBatch()

	got := delegate.received()
	if len(got) != 1 {
		t.Fatalf("Expected one summary notification, got %d", len(got))
	}

	summary := got[0]
	if summary.Category != "BATCH_SUMMARY" {
		t.Errorf("Expected BATCH_SUMMARY category, got %s", summary.Category)
	}
	if summary.Severity != "CRITICAL" {
		t.Errorf("Expected summary severity CRITICAL, got %s", summary.Severity)
	}
	if !strings.Contains(summary.Message, "QUEUE_BACKLOG") {
		t.Errorf("Summary missing QUEUE_BACKLOG category: %s", summary.Message)
	}
	if !strings.Contains(summary.Message, "Total Warnings: 3") {
		t.Errorf("Summary missing total count: %s", summary.Message)
	}
}

func TestBatchingService_SendBatchClearsBatch(t *testing.T) {
	delegate := &recordingService{}
	svc := NewBatchingService([]Service{delegate}, nil)

	svc.NotifyWarning(&Warning{Severity: "ERROR", Category: "POOL", Message: "pool saturated"})
	svc.SendBatch()
	svc.SendBatch()

	if got := delegate.received(); len(got) != 1 {
		t.Errorf("Expected a single summary after empty second flush, got %d", len(got))
	}
}

func TestFromConfig_NoChannelsReturnsNil(t *testing.T) {
	if svc := FromConfig(config.NotificationsConfig{MinSeverity: "WARNING"}); svc != nil {
		t.Error("Expected nil service when no channel is enabled")
	}
}

func TestFromConfig_TeamsEnabled(t *testing.T) {
	svc := FromConfig(config.NotificationsConfig{
		MinSeverity: "ERROR",
		BatchWindow: time.Minute,
		Teams: config.TeamsNotificationConfig{
			Enabled:    true,
			WebhookURL: "https://example.webhook.office.com/hook",
		},
	})
	if svc == nil {
		t.Fatal("Expected a batching service with Teams enabled")
	}
	if !svc.IsEnabled() {
		t.Error("Expected service to report enabled")
	}
	if svc.config.MinSeverity != "ERROR" {
		t.Errorf("Expected MinSeverity ERROR, got %s", svc.config.MinSeverity)
	}
}

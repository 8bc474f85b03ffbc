package read

import (
	"testing"

	"github.com/flowcatalyst/messagerouter/internal/platform/dispatchjob"
)

func TestFilterQueryFields(t *testing.T) {
	f := Filter{
		ClientID:        "client-1",
		ApplicationCode: "orders",
		DispatchPoolID:  "pool-1",
		SubscriptionID:  "sub-1",
		EventID:         "evt-1",
		Status:          dispatchjob.DispatchStatusCompleted,
	}

	q := f.query()

	want := map[string]interface{}{
		"clientId":        "client-1",
		"applicationCode": "orders",
		"dispatchPoolId":  "pool-1",
		"subscriptionId":  "sub-1",
		"eventId":         "evt-1",
		"status":          dispatchjob.DispatchStatusCompleted,
	}
	for field, value := range want {
		if q[field] != value {
			t.Errorf("query[%q] = %v, want %v", field, q[field], value)
		}
	}
}

func TestFilterQueryEmptyMatchesAll(t *testing.T) {
	q := Filter{}.query()
	if len(q) != 0 {
		t.Errorf("empty filter produced conditions: %v", q)
	}
}

func TestFilterLimitBounds(t *testing.T) {
	if got := (Filter{}).limit(); got != defaultPageSize {
		t.Errorf("limit() = %d, want %d", got, defaultPageSize)
	}
	if got := (Filter{Limit: 10}).limit(); got != 10 {
		t.Errorf("limit(10) = %d, want 10", got)
	}
	if got := (Filter{Limit: 100000}).limit(); got != defaultPageSize {
		t.Errorf("oversized limit = %d, want %d", got, defaultPageSize)
	}
}

func TestIsTerminal(t *testing.T) {
	cases := []struct {
		status dispatchjob.DispatchStatus
		want   bool
	}{
		{dispatchjob.DispatchStatusPending, false},
		{dispatchjob.DispatchStatusQueued, false},
		{dispatchjob.DispatchStatusInProgress, false},
		{dispatchjob.DispatchStatusCompleted, true},
		{dispatchjob.DispatchStatusError, true},
		{dispatchjob.DispatchStatusCancelled, true},
	}
	for _, tc := range cases {
		j := &DispatchJobRead{Status: tc.status}
		if got := j.IsTerminal(); got != tc.want {
			t.Errorf("IsTerminal(%s) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

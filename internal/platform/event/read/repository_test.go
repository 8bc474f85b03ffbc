package read

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

func TestFilterQueryCascadingFields(t *testing.T) {
	f := Filter{
		ClientID:    "client-1",
		Application: "orders",
		Subdomain:   "billing",
		Aggregate:   "invoice",
	}

	q := f.query()

	want := map[string]string{
		"clientId":    "client-1",
		"application": "orders",
		"subdomain":   "billing",
		"aggregate":   "invoice",
	}
	for field, value := range want {
		if q[field] != value {
			t.Errorf("query[%q] = %v, want %q", field, q[field], value)
		}
	}
	if _, ok := q["type"]; ok {
		t.Error("empty type must not appear in the query")
	}
	if _, ok := q["time"]; ok {
		t.Error("empty time range must not appear in the query")
	}
}

func TestFilterQueryEmptyMatchesAll(t *testing.T) {
	q := Filter{}.query()
	if len(q) != 0 {
		t.Errorf("empty filter produced conditions: %v", q)
	}
}

func TestFilterQueryTimeRange(t *testing.T) {
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	q := Filter{From: from, To: to}.query()

	timeRange, ok := q["time"].(bson.M)
	if !ok {
		t.Fatalf("time condition missing or wrong type: %v", q["time"])
	}
	if timeRange["$gte"] != from {
		t.Errorf("$gte = %v, want %v", timeRange["$gte"], from)
	}
	if timeRange["$lte"] != to {
		t.Errorf("$lte = %v, want %v", timeRange["$lte"], to)
	}
}

func TestFilterQueryOpenEndedRange(t *testing.T) {
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	q := Filter{From: from}.query()

	timeRange, ok := q["time"].(bson.M)
	if !ok {
		t.Fatalf("time condition missing: %v", q["time"])
	}
	if _, ok := timeRange["$lte"]; ok {
		t.Error("zero To must not produce an $lte bound")
	}
}

func TestFilterLimitBounds(t *testing.T) {
	cases := []struct {
		limit int64
		want  int64
	}{
		{0, defaultPageSize},
		{-5, defaultPageSize},
		{25, 25},
		{1000, 1000},
		{5000, defaultPageSize},
	}
	for _, tc := range cases {
		if got := (Filter{Limit: tc.limit}).limit(); got != tc.want {
			t.Errorf("limit(%d) = %d, want %d", tc.limit, got, tc.want)
		}
	}
}

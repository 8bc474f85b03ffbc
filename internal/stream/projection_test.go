package stream

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	eventread "github.com/flowcatalyst/messagerouter/internal/platform/event/read"
)

func TestEventProjectionSplitsTypeCode(t *testing.T) {
	mapper := NewEventProjectionMapper()

	projected := mapper.Map(bson.M{
		"_id":  "evt-1",
		"type": "orders:billing:invoice:created",
	})

	if projected["eventId"] != "evt-1" {
		t.Errorf("eventId = %v, want evt-1", projected["eventId"])
	}
	if projected["application"] != "orders" {
		t.Errorf("application = %v, want orders", projected["application"])
	}
	if projected["subdomain"] != "billing" {
		t.Errorf("subdomain = %v, want billing", projected["subdomain"])
	}
	if projected["aggregate"] != "invoice" {
		t.Errorf("aggregate = %v, want invoice", projected["aggregate"])
	}
	if projected["type"] != "orders:billing:invoice:created" {
		t.Errorf("type = %v", projected["type"])
	}
}

func TestEventProjectionDenormalizesClientContext(t *testing.T) {
	mapper := NewEventProjectionMapper()

	projected := mapper.Map(bson.M{
		"_id":      "evt-1",
		"type":     "orders:billing:invoice:created",
		"clientId": "client-1",
		"contextData": primitive.A{
			bson.M{"key": "applicationCode", "value": "orders-svc"},
			bson.M{"key": "region", "value": "eu"},
		},
	})

	if projected["clientId"] != "client-1" {
		t.Errorf("clientId = %v, want client-1", projected["clientId"])
	}
	if projected["applicationCode"] != "orders-svc" {
		t.Errorf("applicationCode = %v, want orders-svc", projected["applicationCode"])
	}
}

func TestEventProjectionClientIDFromContextData(t *testing.T) {
	mapper := NewEventProjectionMapper()

	// No top-level clientId: the contextData entry supplies it
	projected := mapper.Map(bson.M{
		"_id":  "evt-2",
		"type": "orders:billing:invoice:created",
		"contextData": primitive.A{
			bson.M{"key": "clientId", "value": "client-2"},
		},
	})

	if projected["clientId"] != "client-2" {
		t.Errorf("clientId = %v, want client-2", projected["clientId"])
	}
}

func TestEventProjectionDecodesIntoReadEntity(t *testing.T) {
	mapper := NewEventProjectionMapper()

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	projected := mapper.Map(bson.M{
		"_id":      "evt-1",
		"type":     "orders:billing:invoice:created",
		"source":   "//orders",
		"subject":  "invoice/42",
		"time":     primitive.NewDateTimeFromTime(now),
		"data":     `{"total":10}`,
		"clientId": "client-1",
		"contextData": primitive.A{
			bson.M{"key": "applicationCode", "value": "orders-svc"},
		},
		"createdAt": primitive.NewDateTimeFromTime(now),
	})

	raw, err := bson.Marshal(projected)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var entity eventread.EventRead
	if err := bson.Unmarshal(raw, &entity); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if entity.ID != "evt-1" || entity.EventID != "evt-1" {
		t.Errorf("ID/EventID = %q/%q, want evt-1/evt-1", entity.ID, entity.EventID)
	}
	if entity.Application != "orders" || entity.Subdomain != "billing" || entity.Aggregate != "invoice" {
		t.Errorf("split fields = %q/%q/%q", entity.Application, entity.Subdomain, entity.Aggregate)
	}
	if entity.ClientID != "client-1" {
		t.Errorf("ClientID = %q, want client-1", entity.ClientID)
	}
	if entity.ApplicationCode != "orders-svc" {
		t.Errorf("ApplicationCode = %q, want orders-svc", entity.ApplicationCode)
	}
	if entity.GetContextValue("applicationCode") != "orders-svc" {
		t.Errorf("contextData lost in projection: %v", entity.ContextData)
	}
	if entity.ProjectedAt.IsZero() {
		t.Error("projectedAt not stamped")
	}
}

func TestDispatchJobProjectionDenormalizesMetadata(t *testing.T) {
	mapper := NewDispatchJobProjectionMapper()

	projected := mapper.Map(bson.M{
		"_id":            "job-1",
		"eventId":        "evt-1",
		"status":         "COMPLETED",
		"dispatchPoolId": "pool-1",
		"metadata": bson.M{
			"clientId":        "client-1",
			"applicationCode": "orders-svc",
			"correlationId":   "corr-1",
		},
		"attempts": primitive.A{
			bson.M{"attemptNumber": 1, "status": "SUCCESS", "statusCode": 200, "durationMs": int64(42)},
		},
	})

	if projected["clientId"] != "client-1" {
		t.Errorf("clientId = %v, want client-1", projected["clientId"])
	}
	if projected["applicationCode"] != "orders-svc" {
		t.Errorf("applicationCode = %v, want orders-svc", projected["applicationCode"])
	}

	metadata, ok := projected["metadata"].(bson.M)
	if !ok {
		t.Fatalf("metadata missing: %v", projected["metadata"])
	}
	if metadata["correlationId"] != "corr-1" {
		t.Errorf("metadata.correlationId = %v, want corr-1", metadata["correlationId"])
	}

	attempts, ok := projected["attempts"].([]bson.M)
	if !ok || len(attempts) != 1 {
		t.Fatalf("attempts = %v", projected["attempts"])
	}
	if attempts[0]["statusCode"] != 200 {
		t.Errorf("attempt statusCode = %v, want 200", attempts[0]["statusCode"])
	}
}

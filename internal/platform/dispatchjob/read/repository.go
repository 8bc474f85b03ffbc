package read

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flowcatalyst/messagerouter/internal/platform/dispatchjob"
)

var ErrNotFound = errors.New("not found")

const defaultPageSize = 50

// Filter narrows a dispatch job projection query
type Filter struct {
	ClientID        string
	ApplicationCode string
	DispatchPoolID  string
	SubscriptionID  string
	EventID         string
	Status          dispatchjob.DispatchStatus

	Skip  int64
	Limit int64
}

// query builds the Mongo filter document
func (f Filter) query() bson.M {
	q := bson.M{}
	if f.ClientID != "" {
		q["clientId"] = f.ClientID
	}
	if f.ApplicationCode != "" {
		q["applicationCode"] = f.ApplicationCode
	}
	if f.DispatchPoolID != "" {
		q["dispatchPoolId"] = f.DispatchPoolID
	}
	if f.SubscriptionID != "" {
		q["subscriptionId"] = f.SubscriptionID
	}
	if f.EventID != "" {
		q["eventId"] = f.EventID
	}
	if f.Status != "" {
		q["status"] = f.Status
	}
	return q
}

// limit returns the page size, bounded to the default when unset
func (f Filter) limit() int64 {
	if f.Limit <= 0 || f.Limit > 1000 {
		return defaultPageSize
	}
	return f.Limit
}

// Repository provides read access to the dispatch_jobs_read projection
type Repository struct {
	collection *mongo.Collection
}

// NewRepository creates a new DispatchJobRead repository
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{
		collection: db.Collection("dispatch_jobs_read"),
	}
}

// FindByID finds a projected dispatch job by ID
func (r *Repository) FindByID(ctx context.Context, id string) (*DispatchJobRead, error) {
	var job DispatchJobRead
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// List returns projected dispatch jobs matching the filter, newest first
func (r *Repository) List(ctx context.Context, filter Filter) ([]*DispatchJobRead, error) {
	opts := options.Find().
		SetSkip(filter.Skip).
		SetLimit(filter.limit()).
		SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter.query(), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	jobs := make([]*DispatchJobRead, 0)
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// FindByEventID finds all dispatch jobs created for an event
func (r *Repository) FindByEventID(ctx context.Context, eventID string) ([]*DispatchJobRead, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"eventId": eventID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	jobs := make([]*DispatchJobRead, 0)
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// FindByCorrelationID finds dispatch jobs by the correlation ID carried
// in job metadata
func (r *Repository) FindByCorrelationID(ctx context.Context, correlationID string) ([]*DispatchJobRead, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"metadata.correlationId": correlationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	jobs := make([]*DispatchJobRead, 0)
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Count returns the number of projected jobs matching the filter
func (r *Repository) Count(ctx context.Context, filter Filter) (int64, error) {
	return r.collection.CountDocuments(ctx, filter.query())
}

// Stats summarizes job counts by status
type Stats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Queued     int64 `json:"queued"`
	InProgress int64 `json:"inProgress"`
	Completed  int64 `json:"completed"`
	Error      int64 `json:"error"`
	Cancelled  int64 `json:"cancelled"`
}

// GetStats aggregates job counts by status, optionally scoped to a client
func (r *Repository) GetStats(ctx context.Context, clientID string) (*Stats, error) {
	match := bson.M{}
	if clientID != "" {
		match["clientId"] = clientID
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status dispatchjob.DispatchStatus `bson:"_id"`
		Count  int64                      `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	stats := &Stats{}
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case dispatchjob.DispatchStatusPending:
			stats.Pending = row.Count
		case dispatchjob.DispatchStatusQueued:
			stats.Queued = row.Count
		case dispatchjob.DispatchStatusInProgress:
			stats.InProgress = row.Count
		case dispatchjob.DispatchStatusCompleted:
			stats.Completed = row.Count
		case dispatchjob.DispatchStatusError:
			stats.Error = row.Count
		case dispatchjob.DispatchStatusCancelled:
			stats.Cancelled = row.Count
		}
	}
	return stats, nil
}

package read

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrNotFound = errors.New("not found")

const defaultPageSize = 50

// Filter narrows an event projection query. The application fields cascade:
// Subdomain without Application or Aggregate without Subdomain would bypass
// the compound indexes, so callers are expected to fill them left to right.
type Filter struct {
	ClientID    string
	Application string
	Subdomain   string
	Aggregate   string
	Type        string
	Subject     string
	From        time.Time
	To          time.Time

	Skip  int64
	Limit int64
}

// query builds the Mongo filter document
func (f Filter) query() bson.M {
	q := bson.M{}
	if f.ClientID != "" {
		q["clientId"] = f.ClientID
	}
	if f.Application != "" {
		q["application"] = f.Application
	}
	if f.Subdomain != "" {
		q["subdomain"] = f.Subdomain
	}
	if f.Aggregate != "" {
		q["aggregate"] = f.Aggregate
	}
	if f.Type != "" {
		q["type"] = f.Type
	}
	if f.Subject != "" {
		q["subject"] = f.Subject
	}

	timeRange := bson.M{}
	if !f.From.IsZero() {
		timeRange["$gte"] = f.From
	}
	if !f.To.IsZero() {
		timeRange["$lte"] = f.To
	}
	if len(timeRange) > 0 {
		q["time"] = timeRange
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

// Repository provides read access to the events_read projection
type Repository struct {
	collection *mongo.Collection
}

// NewRepository creates a new EventRead repository
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{
		collection: db.Collection("events_read"),
	}
}

// FindByID finds a projected event by ID
func (r *Repository) FindByID(ctx context.Context, id string) (*EventRead, error) {
	var event EventRead
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&event)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &event, nil
}

// List returns projected events matching the filter, newest first
func (r *Repository) List(ctx context.Context, filter Filter) ([]*EventRead, error) {
	opts := options.Find().
		SetSkip(filter.Skip).
		SetLimit(filter.limit()).
		SetSort(bson.D{{Key: "time", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter.query(), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	events := make([]*EventRead, 0)
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// FindByCorrelationID finds projected events by correlation ID, in causal order
func (r *Repository) FindByCorrelationID(ctx context.Context, correlationID string) ([]*EventRead, error) {
	opts := options.Find().SetSort(bson.D{{Key: "time", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"correlationId": correlationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	events := make([]*EventRead, 0)
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// FindBySubject returns the event history for an aggregate subject
func (r *Repository) FindBySubject(ctx context.Context, clientID, subject string, skip, limit int64) ([]*EventRead, error) {
	filter := bson.M{"subject": subject}
	if clientID != "" {
		filter["clientId"] = clientID
	}

	opts := options.Find().
		SetSkip(skip).
		SetLimit(limit).
		SetSort(bson.D{{Key: "time", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	events := make([]*EventRead, 0)
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Count returns the number of projected events matching the filter
func (r *Repository) Count(ctx context.Context, filter Filter) (int64, error) {
	return r.collection.CountDocuments(ctx, filter.query())
}

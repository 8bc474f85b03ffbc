package read

import (
	"time"

	"github.com/flowcatalyst/messagerouter/internal/platform/event"
)

// EventRead is the denormalized projection written by the events change
// stream watcher. The type code {app}:{subdomain}:{aggregate}:{event} is
// split into Application/Subdomain/Aggregate so the cascading compound
// indexes can serve prefix filters.
// Collection: events_read
type EventRead struct {
	ID      string `bson:"_id" json:"id"`
	EventID string `bson:"eventId" json:"eventId"`

	SpecVersion string    `bson:"specVersion" json:"specVersion"`
	Type        string    `bson:"type" json:"type"`
	Source      string    `bson:"source" json:"source"`
	Subject     string    `bson:"subject,omitempty" json:"subject,omitempty"`
	Time        time.Time `bson:"time" json:"time"`
	Data        string    `bson:"data,omitempty" json:"data,omitempty"`

	// Split from the colon-delimited type code
	Application string `bson:"application,omitempty" json:"application,omitempty"`
	Subdomain   string `bson:"subdomain,omitempty" json:"subdomain,omitempty"`
	Aggregate   string `bson:"aggregate,omitempty" json:"aggregate,omitempty"`

	MessageGroup    string `bson:"messageGroup,omitempty" json:"messageGroup,omitempty"`
	CorrelationID   string `bson:"correlationId,omitempty" json:"correlationId,omitempty"`
	CausationID     string `bson:"causationId,omitempty" json:"causationId,omitempty"`
	DeduplicationID string `bson:"deduplicationId,omitempty" json:"deduplicationId,omitempty"`

	ContextData []event.ContextData `bson:"contextData,omitempty" json:"contextData,omitempty"`

	// Denormalized client context
	ClientID        string `bson:"clientId,omitempty" json:"clientId,omitempty"`
	ApplicationCode string `bson:"applicationCode,omitempty" json:"applicationCode,omitempty"`

	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
	ProjectedAt time.Time `bson:"projectedAt" json:"projectedAt"`
}

// GetContextValue returns the value for a context data key
func (e *EventRead) GetContextValue(key string) string {
	for _, cd := range e.ContextData {
		if cd.Key == key {
			return cd.Value
		}
	}
	return ""
}

package read

import (
	"time"

	"github.com/flowcatalyst/messagerouter/internal/platform/dispatchjob"
)

// DispatchJobRead is the denormalized projection written by the dispatch
// jobs change stream watcher. Client context is lifted out of metadata so
// the client-scoped compound indexes can serve dashboard filters.
// Collection: dispatch_jobs_read
type DispatchJobRead struct {
	ID string `bson:"_id" json:"id"`

	EventID        string                      `bson:"eventId,omitempty" json:"eventId,omitempty"`
	EventType      string                      `bson:"eventType,omitempty" json:"eventType,omitempty"`
	SubscriptionID string                      `bson:"subscriptionId,omitempty" json:"subscriptionId,omitempty"`
	DispatchPoolID string                      `bson:"dispatchPoolId,omitempty" json:"dispatchPoolId,omitempty"`
	Status         dispatchjob.DispatchStatus  `bson:"status" json:"status"`
	TargetURL      string                      `bson:"targetUrl" json:"targetUrl"`
	Payload        string                      `bson:"payload,omitempty" json:"payload,omitempty"`
	ContentType    string                      `bson:"contentType,omitempty" json:"contentType,omitempty"`
	MessageGroup   string                      `bson:"messageGroup,omitempty" json:"messageGroup,omitempty"`

	ScheduledFor time.Time `bson:"scheduledFor,omitempty" json:"scheduledFor,omitempty"`
	StartedAt    time.Time `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	CompletedAt  time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`

	MaxRetries     int `bson:"maxRetries" json:"maxRetries"`
	AttemptCount   int `bson:"attemptCount" json:"attemptCount"`
	TimeoutSeconds int `bson:"timeoutSeconds,omitempty" json:"timeoutSeconds,omitempty"`

	Metadata Metadata `bson:"metadata,omitempty" json:"metadata,omitempty"`

	// Denormalized from metadata
	ClientID        string `bson:"clientId,omitempty" json:"clientId,omitempty"`
	ApplicationCode string `bson:"applicationCode,omitempty" json:"applicationCode,omitempty"`

	Attempts []Attempt `bson:"attempts,omitempty" json:"attempts,omitempty"`

	LastAttemptAt    time.Time `bson:"lastAttemptAt,omitempty" json:"lastAttemptAt,omitempty"`
	LastStatusCode   int       `bson:"lastStatusCode,omitempty" json:"lastStatusCode,omitempty"`
	LastErrorMessage string    `bson:"lastErrorMessage,omitempty" json:"lastErrorMessage,omitempty"`

	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
	ProjectedAt time.Time `bson:"projectedAt" json:"projectedAt"`
}

// Metadata carries the client and tracing context of a dispatch job
type Metadata struct {
	ClientID        string `bson:"clientId,omitempty" json:"clientId,omitempty"`
	ApplicationCode string `bson:"applicationCode,omitempty" json:"applicationCode,omitempty"`
	CorrelationID   string `bson:"correlationId,omitempty" json:"correlationId,omitempty"`
	TraceID         string `bson:"traceId,omitempty" json:"traceId,omitempty"`
}

// Attempt is one delivery attempt in the job's history
type Attempt struct {
	AttemptNumber int       `bson:"attemptNumber" json:"attemptNumber"`
	StartedAt     time.Time `bson:"startedAt" json:"startedAt"`
	CompletedAt   time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	Status        string    `bson:"status" json:"status"`
	StatusCode    int       `bson:"statusCode,omitempty" json:"statusCode,omitempty"`
	ErrorMessage  string    `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	DurationMs    int64     `bson:"durationMs,omitempty" json:"durationMs,omitempty"`
}

// IsTerminal returns true if the job has finished processing
func (j *DispatchJobRead) IsTerminal() bool {
	switch j.Status {
	case dispatchjob.DispatchStatusCompleted,
		dispatchjob.DispatchStatusError,
		dispatchjob.DispatchStatusCancelled:
		return true
	}
	return false
}

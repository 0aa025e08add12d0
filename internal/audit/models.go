package audit

import (
	"strconv"
	"time"
)

// Event is an immutable, append-only record of something that happened to a call.
//
// Invariants:
// - Events are never updated or deleted.
// - Writing events is best-effort; callers never fail a call flow on audit errors.
type Event struct {
	ID string `json:"id" db:"id"`

	// CallRef is the provider call id, or "#<internal id>" before one is assigned.
	CallRef string `json:"call_ref" db:"call_ref"`

	Type EventType `json:"type" db:"type"`

	// Message is a short human-readable description for ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventCallRequested      EventType = "call_requested"
	EventCallPlaced         EventType = "call_placed"
	EventCallFailed         EventType = "call_failed"
	EventWebhookTranscript  EventType = "webhook_transcript"
	EventReconcileScheduled EventType = "reconcile_scheduled"
	EventReconcileCompleted EventType = "reconcile_completed"
	EventReconcileFailed    EventType = "reconcile_failed"
	EventReconcileExhausted EventType = "reconcile_exhausted"
)

// CallRef builds the reference events are keyed by.
func CallRef(externalID string, id int64) string {
	if externalID != "" {
		return externalID
	}
	return "#" + strconv.FormatInt(id, 10)
}

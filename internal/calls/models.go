package calls

import "time"

// Call is one lead-qualification call.
//
// CallID (the provider's identifier) is NULL until the provider accepts the call,
// and is assigned exactly once. Transcript is never cleared once set.
// Every update after creation bumps Revision; writers must present the revision
// they read (optimistic concurrency).
type Call struct {
	ID     int64   `json:"id" db:"id"`
	CallID *string `json:"call_id" db:"call_id"`

	CustomerName string `json:"customer_name" db:"customer_name"`
	CompanyName  string `json:"company_name" db:"company_name"`
	PhoneNumber  string `json:"phone_number" db:"phone_number"`
	Role         string `json:"role" db:"role"`
	UseCase      string `json:"use_case" db:"use_case"`

	Transcript   *string `json:"transcript" db:"transcript"`
	RecordingURL *string `json:"recording_url" db:"recording_url"`

	// CallStatus is the provider's free-text status.
	CallStatus *string `json:"call_status" db:"call_status"`

	// Duration in seconds, never negative.
	Duration float64 `json:"duration" db:"duration"`

	ReconcileStatus   ReconcileStatus `json:"reconcile_status" db:"reconcile_status"`
	ReconcileAttempts int             `json:"reconcile_attempts" db:"reconcile_attempts"`
	ReconcileError    *string         `json:"reconcile_error" db:"reconcile_error"`

	Revision int64 `json:"revision" db:"revision"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasTranscript reports whether a non-empty transcript is stored.
func (c Call) HasTranscript() bool {
	return c.Transcript != nil && *c.Transcript != ""
}

// ExternalID returns the provider call id or "".
func (c Call) ExternalID() string {
	if c.CallID == nil {
		return ""
	}
	return *c.CallID
}

// NewCall carries the form fields captured when a demo is requested.
type NewCall struct {
	CustomerName string
	CompanyName  string
	PhoneNumber  string
	Role         string
	UseCase      string
}

// MediaView is the projection served by GET /calls-with-media.
type MediaView struct {
	CustomerName string    `json:"customer_name"`
	Transcript   *string   `json:"transcript"`
	RecordingURL *string   `json:"recording_url"`
	CreatedAt    time.Time `json:"created_at"`
	CallStatus   *string   `json:"call_status"`
}

// Media projects a call onto MediaView.
func (c Call) Media() MediaView {
	return MediaView{
		CustomerName: c.CustomerName,
		Transcript:   c.Transcript,
		RecordingURL: c.RecordingURL,
		CreatedAt:    c.CreatedAt,
		CallStatus:   c.CallStatus,
	}
}

// StatusCompleted is the only terminal provider status.
const StatusCompleted = "completed"

// ReconcileStatus tracks the background poller, independently of the
// provider's own status.
type ReconcileStatus string

const (
	ReconcilePending   ReconcileStatus = "pending"
	ReconcileCompleted ReconcileStatus = "completed"
	ReconcileFailed    ReconcileStatus = "failed"
	ReconcileExhausted ReconcileStatus = "exhausted"
)

// Terminal reports whether polling has stopped for good.
func (s ReconcileStatus) Terminal() bool {
	switch s {
	case ReconcileCompleted, ReconcileFailed, ReconcileExhausted:
		return true
	default:
		return false
	}
}

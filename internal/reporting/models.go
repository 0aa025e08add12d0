package reporting

import "time"

// TimeRange is half-open: From <= created_at < To.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type CallsSummaryRequest struct {
	Range TimeRange `json:"range"`
}

// CallsSummary aggregates stored call records.
type CallsSummary struct {
	Range TimeRange `json:"range"`

	TotalCalls     int `json:"total_calls"`
	PlacedCalls    int `json:"placed_calls"`
	CompletedCalls int `json:"completed_calls"`

	// ByStatus counts the provider's free-text statuses; "unknown" when none was recorded.
	ByStatus map[string]int `json:"by_status"`

	PendingReconcile   int `json:"pending_reconcile"`
	FailedReconcile    int `json:"failed_reconcile"`
	ExhaustedReconcile int `json:"exhausted_reconcile"`

	TranscribedCalls int `json:"transcribed_calls"`
	RecordedCalls    int `json:"recorded_calls"`

	TotalDurationSeconds float64 `json:"total_duration_seconds"`
	// AverageDurationSeconds is over completed calls.
	AverageDurationSeconds float64 `json:"average_duration_seconds"`
}

package reporting

import (
	"context"
	"errors"
	"time"

	"lead-qualifier/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. calls.Repository satisfies it.
type Repository interface {
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]calls.Call, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service { return &Service{repo: repo, clock: time.Now} }

// CallsSummary aggregates calls created in the requested range. A zero From
// means "since the beginning"; a zero To means "now".
func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}
	r := req.Range
	if r.From.IsZero() {
		r.From = time.Unix(0, 0).UTC()
	}
	if r.To.IsZero() {
		r.To = s.clock().UTC().Add(time.Second)
	}
	if !r.To.After(r.From) {
		return CallsSummary{}, ErrInvalidRequest
	}

	rows, err := s.repo.ListCreatedBetween(ctx, r.From, r.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{Range: r, ByStatus: map[string]int{}}
	var completedDuration float64
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.Duration
		if c.CallID != nil {
			out.PlacedCalls++
		}
		if c.HasTranscript() {
			out.TranscribedCalls++
		}
		if c.RecordingURL != nil && *c.RecordingURL != "" {
			out.RecordedCalls++
		}

		status := "unknown"
		if c.CallStatus != nil && *c.CallStatus != "" {
			status = *c.CallStatus
		}
		out.ByStatus[status]++
		if status == calls.StatusCompleted {
			out.CompletedCalls++
			completedDuration += c.Duration
		}

		switch c.ReconcileStatus {
		case calls.ReconcilePending:
			// Orphans never placed are not waiting on the poller.
			if c.CallID != nil {
				out.PendingReconcile++
			}
		case calls.ReconcileFailed:
			out.FailedReconcile++
		case calls.ReconcileExhausted:
			out.ExhaustedReconcile++
		}
	}
	if out.CompletedCalls > 0 {
		out.AverageDurationSeconds = completedDuration / float64(out.CompletedCalls)
	}
	return out, nil
}

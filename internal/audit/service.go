package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for call events.
// It is append-only: no Update/Delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByCallRef(ctx context.Context, callRef string) ([]Event, error)
}

// Service records the call lifecycle. Callers treat Record as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.CallRef == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends an event with metadata encoded as JSON.
func (s *Service) Record(ctx context.Context, callRef string, typ EventType, message string, metadata map[string]any) error {
	e := Event{CallRef: callRef, Type: typ, Message: message}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("audit: encode metadata: %w", err)
		}
		e.Metadata = string(raw)
	}
	return s.Append(ctx, e)
}

// History returns the events for one call in insertion order.
func (s *Service) History(ctx context.Context, callRef string) ([]Event, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.ListByCallRef(ctx, callRef)
}

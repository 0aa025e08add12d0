package calls

import (
	"context"
	"errors"
	"fmt"
)

const defaultMaxConflictRetries = 5

// Service serialises writers on a call record with optimistic revisions.
//
// Each writer re-reads the row, applies its Mutation to the fresh copy and
// writes it back conditionally. A lost race re-runs the Mutation on the newer
// row, so no writer ever overwrites a change it has not seen.
type Service struct {
	repo       Repository
	maxRetries int
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, maxRetries: defaultMaxConflictRetries}
}

// Repo exposes the underlying repository for read paths.
func (s *Service) Repo() Repository { return s.repo }

// MutateByCallID applies fn to the call with the given provider id.
// It returns the stored row (unchanged when fn reports no change).
func (s *Service) MutateByCallID(ctx context.Context, callID string, fn Mutation) (Call, error) {
	if callID == "" {
		return Call{}, ErrInvalidArgument
	}
	return s.mutate(ctx, fn, func(ctx context.Context) (Call, error) {
		return s.repo.GetByCallID(ctx, callID)
	})
}

// Mutate applies fn to the call with the given internal id.
func (s *Service) Mutate(ctx context.Context, id int64, fn Mutation) (Call, error) {
	return s.mutate(ctx, fn, func(ctx context.Context) (Call, error) {
		return s.repo.Get(ctx, id)
	})
}

func (s *Service) mutate(ctx context.Context, fn Mutation, load func(context.Context) (Call, error)) (Call, error) {
	if s.repo == nil {
		return Call{}, errors.New("calls: repository not configured")
	}
	attempts := s.maxRetries
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return Call{}, err
		}
		current, err := load(ctx)
		if err != nil {
			return Call{}, err
		}
		next := current
		if !fn(&next) {
			return current, nil
		}
		updated, err := s.repo.Update(ctx, next)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return Call{}, err
		}
		return updated, nil
	}
	return Call{}, fmt.Errorf("calls: gave up after %d attempts: %w", attempts, ErrConflict)
}

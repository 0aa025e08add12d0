package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local development.
// It mirrors the Postgres semantics, including revision checks.
type MemoryRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]Call

	// Now stamps created_at/updated_at. Defaults to time.Now.
	Now func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[int64]Call{}, Now: time.Now}
}

func (r *MemoryRepo) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

func (r *MemoryRepo) Create(ctx context.Context, in NewCall) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := r.now()
	c := Call{
		ID:              r.nextID,
		CustomerName:    in.CustomerName,
		CompanyName:     in.CompanyName,
		PhoneNumber:     in.PhoneNumber,
		Role:            in.Role,
		UseCase:         in.UseCase,
		ReconcileStatus: ReconcilePending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.rows[c.ID] = c
	return c, nil
}

func (r *MemoryRepo) AssignCallID(ctx context.Context, id int64, callID string) (Call, error) {
	if callID == "" {
		return Call{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.rows[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	if c.CallID != nil {
		return Call{}, ErrAlreadyAssigned
	}
	for _, other := range r.rows {
		if other.CallID != nil && *other.CallID == callID {
			return Call{}, ErrAlreadyAssigned
		}
	}
	c.CallID = strPtr(callID)
	c.Revision++
	c.UpdatedAt = r.now()
	r.rows[id] = c
	return c, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id int64) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) GetByCallID(ctx context.Context, callID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.rows {
		if c.CallID != nil && *c.CallID == callID {
			return c, nil
		}
	}
	return Call{}, ErrNotFound
}

func (r *MemoryRepo) List(ctx context.Context) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(func(Call) bool { return true }), nil
}

func (r *MemoryRepo) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(func(c Call) bool {
		return !c.CreatedAt.Before(from) && c.CreatedAt.Before(to)
	}), nil
}

func (r *MemoryRepo) ListMedia(ctx context.Context) ([]MediaView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.sorted(func(Call) bool { return true })
	out := make([]MediaView, 0, len(rows))
	for _, c := range rows {
		out = append(out, c.Media())
	}
	return out, nil
}

func (r *MemoryRepo) Update(ctx context.Context, c Call) (Call, error) {
	if c.Duration < 0 {
		return Call{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.rows[c.ID]
	if !ok {
		return Call{}, ErrNotFound
	}
	if stored.Revision != c.Revision {
		return Call{}, ErrConflict
	}
	stored.Transcript = c.Transcript
	stored.RecordingURL = c.RecordingURL
	stored.CallStatus = c.CallStatus
	stored.Duration = c.Duration
	stored.ReconcileStatus = c.ReconcileStatus
	stored.ReconcileAttempts = c.ReconcileAttempts
	stored.ReconcileError = c.ReconcileError
	stored.Revision++
	stored.UpdatedAt = r.now()
	r.rows[c.ID] = stored
	return stored, nil
}

// sorted returns matching rows newest first. Callers hold r.mu.
func (r *MemoryRepo) sorted(keep func(Call) bool) []Call {
	out := make([]Call, 0, len(r.rows))
	for _, c := range r.rows {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrConflict        = errors.New("calls: revision conflict")
	ErrAlreadyAssigned = errors.New("calls: external call id already assigned")
	ErrInvalidArgument = errors.New("calls: invalid argument")
)

// Repository is the persistence contract for call records. There is no
// delete: records live forever.
type Repository interface {
	Create(ctx context.Context, in NewCall) (Call, error)

	// AssignCallID sets the provider call id once. A second assignment fails
	// with ErrAlreadyAssigned.
	AssignCallID(ctx context.Context, id int64, callID string) (Call, error)

	Get(ctx context.Context, id int64) (Call, error)
	GetByCallID(ctx context.Context, callID string) (Call, error)

	// List returns every record, newest first.
	List(ctx context.Context) ([]Call, error)
	// ListMedia returns the media projection, newest first.
	ListMedia(ctx context.Context) ([]MediaView, error)
	// ListCreatedBetween returns records with from <= created_at < to.
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]Call, error)

	// Update writes the mutable fields of c if the stored revision still equals
	// c.Revision, returning the stored row with the bumped revision.
	// A stale revision fails with ErrConflict.
	Update(ctx context.Context, c Call) (Call, error)
}

package room

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*Room, error)
	Update(ctx context.Context, r *Room) error
	// FindOpenByBooking returns the booking's open room, or nil when none
	// exists. The scheduler's idempotency pre-check.
	FindOpenByBooking(ctx context.Context, bookingID uuid.UUID) (*Room, error)
	// ListOpenEndedBefore returns open rooms whose session end is at or
	// before the cutoff, ordered by end time. The scheduler's bounded close
	// scan.
	ListOpenEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Room, error)
}

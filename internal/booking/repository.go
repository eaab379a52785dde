package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
)

// Repository contains all DB interactions needed by the transaction
// manager and the lifecycle worker.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	// GetByToken returns ErrBookingNotFound for unknown tokens, the same
	// error shape as any other miss, so callers cannot probe for token
	// existence.
	GetByToken(ctx context.Context, token string) (*Booking, error)

	// ListActiveOverlapping returns active bookings on the resource whose
	// [start, end) interval overlaps the given window.
	ListActiveOverlapping(ctx context.Context, resourceID uuid.UUID, start, end time.Time) ([]Booking, error)

	Create(ctx context.Context, b *Booking) (*Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error)

	// Cancel marks the booking cancelled with its audit fields, only if
	// it is still in a cancellable status.
	Cancel(ctx context.Context, id uuid.UUID, reason string, actor Actor, at time.Time) (*Booking, error)

	// Reschedule atomically marks the old booking rescheduled and inserts
	// its successor. Neither change survives alone.
	Reschedule(ctx context.Context, oldID uuid.UUID, successor *Booking) (*Booking, error)

	// Lifecycle worker
	FindElapsedConfirmed(ctx context.Context, now time.Time) ([]Booking, error)
	FindStalePendingPayment(ctx context.Context, cutoff time.Time) ([]Booking, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

package availability

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/booking-engine/internal/interval"
)

// BusySource supplies opaque busy intervals for a resource from an
// external calendar sync collaborator. The engine subtracts them from
// availability but never persists or produces them.
type BusySource interface {
	BusyIntervals(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]interval.Interval, error)
}

// NoBusy is the BusySource used when no external calendar is attached.
type NoBusy struct{}

func (NoBusy) BusyIntervals(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]interval.Interval, error) {
	return nil, nil
}

package availability

import (
	"time"

	"github.com/careloop/booking-engine/internal/interval"
	"github.com/careloop/booking-engine/internal/schedule"
)

// BookedInterval is the view of an active booking the capacity checker
// needs. Cancelled and rescheduled bookings must not be passed in.
type BookedInterval struct {
	Start time.Time
	End   time.Time
}

// HasCapacity reports whether a slot still has room against the given
// active bookings. One-on-one slots admit no overlapping booking at
// all; group slots admit strictly fewer than capacity bookings sharing
// the exact session start. Capacity is passed explicitly, never read
// from ambient state.
func HasCapacity(slot SlotCandidate, active []BookedInterval, mode schedule.ServiceMode, capacity int) bool {
	if mode == schedule.ModeGroup {
		count := 0
		for _, b := range active {
			if b.Start.Equal(slot.Start) {
				count++
			}
		}
		return count < capacity
	}

	for _, b := range active {
		if interval.Overlaps(slot.Interval(), interval.New(b.Start, b.End)) {
			return false
		}
	}
	return true
}

// FilterAvailable drops candidates with no remaining capacity,
// preserving order.
func FilterAvailable(candidates []SlotCandidate, active []BookedInterval, mode schedule.ServiceMode, capacity int) []SlotCandidate {
	var out []SlotCandidate
	for _, c := range candidates {
		if HasCapacity(c, active, mode, capacity) {
			out = append(out, c)
		}
	}
	return out
}

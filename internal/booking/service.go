package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/booking-engine/internal/availability"
	"github.com/careloop/booking-engine/internal/config"
	redisclient "github.com/careloop/booking-engine/internal/redis"
	"github.com/careloop/booking-engine/internal/schedule"
)

const (
	EventBookingCreated     = "BOOKING_CREATED"
	EventBookingConfirmed   = "BOOKING_CONFIRMED"
	EventBookingCancelled   = "BOOKING_CANCELLED"
	EventBookingRescheduled = "BOOKING_RESCHEDULED"
	EventBookingCompleted   = "BOOKING_COMPLETED"
)

var (
	// ErrSlotTaken means the slot lost its capacity between discovery and
	// commit. Recoverable: the caller should re-query open slots.
	ErrSlotTaken = errors.New("slot is no longer available")
	// ErrSlotContended means another request holds the resource lock
	// right now. Recoverable by retrying shortly.
	ErrSlotContended     = errors.New("slot is currently being booked, please retry")
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrServiceNotBookable = errors.New("service has no schedule attached")
)

// Service is the booking transaction manager. It owns the booking state
// machine and serializes the check-then-act commit sequence per
// resource through the locker.
type Service struct {
	repo      Repository
	directory schedule.Repository
	locker    redisclient.Locker
	busy      availability.BusySource
	cfg       config.Config
}

func NewService(repo Repository, directory schedule.Repository, locker redisclient.Locker, busy availability.BusySource, cfg config.Config) *Service {
	if busy == nil {
		busy = availability.NoBusy{}
	}
	return &Service{
		repo:      repo,
		directory: directory,
		locker:    locker,
		busy:      busy,
		cfg:       cfg,
	}
}

// OpenSlots returns the bookable candidates for a service between two
// dates, with full or blocked slots already filtered out. A service
// with zero open slots is a valid result, not an error.
func (s *Service) OpenSlots(ctx context.Context, serviceID uuid.UUID, from, to time.Time) ([]availability.SlotCandidate, error) {
	svc, err := s.directory.GetServiceType(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.resolveCandidates(ctx, svc, from, to)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	windowStart := candidates[0].Start
	windowEnd := candidates[0].End
	for _, c := range candidates[1:] {
		if c.Start.Before(windowStart) {
			windowStart = c.Start
		}
		if c.End.After(windowEnd) {
			windowEnd = c.End
		}
	}

	active, err := s.activeIntervals(ctx, svc.ResourceID(), windowStart, windowEnd, uuid.Nil)
	if err != nil {
		return nil, err
	}

	return availability.FilterAvailable(candidates, active, svc.Mode, effectiveCapacity(svc)), nil
}

// CommitRequest is a caller's chosen slot.
type CommitRequest struct {
	ServiceID      uuid.UUID
	PatientID      uuid.UUID
	Start          time.Time
	TargetTimezone string
}

// CommitBooking validates the requested slot against current state
// under the resource lock and creates the booking, or rejects it with
// ErrSlotTaken. The candidate list the caller picked from may be stale;
// only the re-check inside the lock decides.
func (s *Service) CommitBooking(ctx context.Context, req CommitRequest) (*Booking, error) {
	if _, err := s.directory.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, schedule.ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	svc, err := s.directory.GetServiceType(ctx, req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("load service: %w", err)
	}

	start := req.Start.UTC()
	end := start.Add(svc.Duration)
	resource := svc.ResourceID()

	tz := req.TargetTimezone
	if tz == "" {
		tz = "UTC"
	}

	var created *Booking
	err = s.locker.WithResourceLock(ctx, resource, func(lockCtx context.Context) error {
		if err := s.recheckSlot(lockCtx, svc, start, end, uuid.Nil); err != nil {
			return err
		}

		token, err := NewPublicToken()
		if err != nil {
			return err
		}

		b := &Booking{
			ServiceID:      svc.ID,
			ResourceID:     resource,
			PatientID:      req.PatientID,
			StartTime:      start,
			EndTime:        end,
			TargetTimezone: tz,
			Status:         initialStatus(svc),
			PublicToken:    token,
		}
		created, err = s.repo.Create(lockCtx, b)
		if err != nil {
			return fmt.Errorf("create booking: %w", err)
		}

		s.logEvent(lockCtx, created.ID, EventBookingCreated, map[string]any{
			"service_id": svc.ID.String(),
			"patient_id": req.PatientID.String(),
			"start":      start,
			"status":     string(created.Status),
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotContended
		}
		return nil, err
	}

	return created, nil
}

// ConfirmPayment advances a pending booking to confirmed. Called when
// the billing collaborator signals a captured payment.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load booking: %w", err)
	}
	if b.Status != StatusPendingPayment {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, b.ID, StatusPendingPayment, StatusConfirmed)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("confirm booking: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventBookingConfirmed, map[string]any{})
	return updated, nil
}

// CancelBooking transitions a booking to cancelled and records who did
// it and why. Cancelling an already cancelled booking is a no-op that
// returns the same record.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID, reason string, actor Actor) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load booking: %w", err)
	}

	if b.Status == StatusCancelled {
		return b, nil
	}
	if b.Status.Terminal() {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.Cancel(ctx, b.ID, reason, actor, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			// Lost a race with another transition. Re-read to keep the
			// double-cancel case idempotent.
			current, readErr := s.repo.GetByID(ctx, id)
			if readErr == nil && current.Status == StatusCancelled {
				return current, nil
			}
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("cancel booking: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventBookingCancelled, map[string]any{
		"reason": reason,
		"actor":  string(actor),
	})
	return updated, nil
}

// RescheduleBooking validates the new slot exactly as CommitBooking
// does, then atomically marks the old booking rescheduled and creates
// its successor. On any conflict the original booking is untouched.
func (s *Service) RescheduleBooking(ctx context.Context, id uuid.UUID, newStart time.Time) (*Booking, error) {
	old, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load booking: %w", err)
	}
	if old.Status != StatusPendingPayment && old.Status != StatusConfirmed {
		return nil, ErrInvalidTransition
	}

	svc, err := s.directory.GetServiceType(ctx, old.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("load service: %w", err)
	}

	start := newStart.UTC()
	end := start.Add(svc.Duration)
	resource := svc.ResourceID()

	var successor *Booking
	err = s.locker.WithResourceLock(ctx, resource, func(lockCtx context.Context) error {
		// The old booking's own interval must not block its replacement.
		if err := s.recheckSlot(lockCtx, svc, start, end, old.ID); err != nil {
			return err
		}

		token, err := NewPublicToken()
		if err != nil {
			return err
		}

		b := &Booking{
			ServiceID:      svc.ID,
			ResourceID:     resource,
			PatientID:      old.PatientID,
			StartTime:      start,
			EndTime:        end,
			TargetTimezone: old.TargetTimezone,
			Status:         initialStatus(svc),
			PublicToken:    token,
		}
		successor, err = s.repo.Reschedule(lockCtx, old.ID, b)
		if err != nil {
			if errors.Is(err, ErrBookingNotFound) {
				return ErrInvalidTransition
			}
			return fmt.Errorf("reschedule booking: %w", err)
		}

		s.logEvent(lockCtx, successor.ID, EventBookingRescheduled, map[string]any{
			"rescheduled_from": old.ID.String(),
			"old_start":        old.StartTime,
			"new_start":        start,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotContended
		}
		return nil, err
	}

	return successor, nil
}

// CompleteElapsed marks confirmed bookings whose session has ended as
// completed. Called periodically by the lifecycle worker.
func (s *Service) CompleteElapsed(ctx context.Context) error {
	elapsed, err := s.repo.FindElapsedConfirmed(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("find elapsed bookings: %w", err)
	}

	for _, b := range elapsed {
		if _, err := s.repo.UpdateStatus(ctx, b.ID, StatusConfirmed, StatusCompleted); err != nil {
			if !errors.Is(err, ErrBookingNotFound) {
				log.Printf("failed to complete booking %s: %v", b.ID, err)
			}
			continue
		}
		s.logEvent(ctx, b.ID, EventBookingCompleted, map[string]any{})
	}
	return nil
}

// CancelStalePayments cancels bookings that sat in pending_payment
// longer than the payment hold TTL, freeing their capacity.
func (s *Service) CancelStalePayments(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.cfg.PaymentHoldTTL)
	stale, err := s.repo.FindStalePendingPayment(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find stale pending bookings: %w", err)
	}

	for _, b := range stale {
		if _, err := s.repo.Cancel(ctx, b.ID, "payment_timeout", ActorSystem, time.Now().UTC()); err != nil {
			if !errors.Is(err, ErrBookingNotFound) {
				log.Printf("failed to cancel stale booking %s: %v", b.ID, err)
			}
			continue
		}
		s.logEvent(ctx, b.ID, EventBookingCancelled, map[string]any{
			"reason": "payment_timeout",
			"actor":  string(ActorSystem),
		})
	}
	return nil
}

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetBookingByToken(ctx context.Context, token string) (*Booking, error) {
	return s.repo.GetByToken(ctx, token)
}

// resolveCandidates runs the availability resolver for a service over a
// civil date range.
func (s *Service) resolveCandidates(ctx context.Context, svc *schedule.ServiceType, from, to time.Time) ([]availability.SlotCandidate, error) {
	req := availability.Request{
		Service: svc,
		From:    from,
		To:      to,
		Step:    s.cfg.SlotStep,
	}

	if svc.SchedulingType == schedule.SchedulingCalendar {
		if svc.ScheduleID == nil {
			return nil, ErrServiceNotBookable
		}
		data, err := s.directory.GetScheduleData(ctx, *svc.ScheduleID)
		if err != nil {
			return nil, fmt.Errorf("load schedule: %w", err)
		}
		busy, err := s.busy.BusyIntervals(ctx, svc.ResourceID(), from, to.AddDate(0, 0, 1))
		if err != nil {
			return nil, fmt.Errorf("load external busy intervals: %w", err)
		}
		req.Data = data
		req.Busy = busy
	}

	return availability.Resolve(req)
}

// recheckSlot re-derives availability and capacity for one slot under
// the resource lock. excludeID skips the booking being rescheduled so
// it cannot conflict with its own replacement.
func (s *Service) recheckSlot(ctx context.Context, svc *schedule.ServiceType, start, end time.Time, excludeID uuid.UUID) error {
	// A day of margin on each side covers timezone offsets between the
	// slot's UTC time and the schedule's local dates.
	candidates, err := s.resolveCandidates(ctx, svc, start.AddDate(0, 0, -1), start.AddDate(0, 0, 1))
	if err != nil {
		return err
	}

	var slot *availability.SlotCandidate
	for i := range candidates {
		if candidates[i].Start.Equal(start) && candidates[i].End.Equal(end) {
			slot = &candidates[i]
			break
		}
	}
	if slot == nil {
		return ErrSlotTaken
	}

	active, err := s.activeIntervals(ctx, svc.ResourceID(), start, end, excludeID)
	if err != nil {
		return err
	}
	if !availability.HasCapacity(*slot, active, svc.Mode, effectiveCapacity(svc)) {
		return ErrSlotTaken
	}
	return nil
}

func (s *Service) activeIntervals(ctx context.Context, resourceID uuid.UUID, start, end time.Time, excludeID uuid.UUID) ([]availability.BookedInterval, error) {
	bookings, err := s.repo.ListActiveOverlapping(ctx, resourceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list active bookings: %w", err)
	}

	out := make([]availability.BookedInterval, 0, len(bookings))
	for _, b := range bookings {
		if excludeID != uuid.Nil && b.ID == excludeID {
			continue
		}
		out = append(out, availability.BookedInterval{Start: b.StartTime, End: b.EndTime})
	}
	return out, nil
}

func initialStatus(svc *schedule.ServiceType) Status {
	if svc.RequiresPayment {
		return StatusPendingPayment
	}
	return StatusConfirmed
}

func effectiveCapacity(svc *schedule.ServiceType) int {
	if svc.Mode == schedule.ModeGroup && svc.Capacity > 0 {
		return svc.Capacity
	}
	return 1
}

func (s *Service) logEvent(ctx context.Context, bookingID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	id := bookingID
	ev := EventLog{
		EventType: eventType,
		BookingID: &id,
		Payload:   data,
		CreatedAt: time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert booking event %s for %s: %v", eventType, bookingID, err)
	}
}

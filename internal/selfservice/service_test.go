package selfservice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/careloop/booking-engine/internal/booking"
	"github.com/careloop/booking-engine/internal/config"
	"github.com/careloop/booking-engine/internal/schedule"
)

// Monday 2026-03-02, schedule open 09:00-12:00 UTC.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func defaultPolicy() schedule.CancellationPolicy {
	return schedule.CancellationPolicy{
		MinimumNotice:   24 * time.Hour,
		AllowCancel:     true,
		AllowReschedule: true,
	}
}

func confirmedBooking(start time.Time) *booking.Booking {
	return &booking.Booking{
		ID:        uuid.New(),
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Status:    booking.StatusConfirmed,
	}
}

func TestCheckPolicy(t *testing.T) {
	start := monday.Add(9 * time.Hour)

	tests := []struct {
		name   string
		book   *booking.Booking
		policy schedule.CancellationPolicy
		action Action
		now    time.Time
		want   DenyReason // empty means allowed
	}{
		{
			name:   "allowed well before the notice window",
			book:   confirmedBooking(start),
			policy: defaultPolicy(),
			action: ActionCancel,
			now:    start.Add(-48 * time.Hour),
		},
		{
			name:   "too late two hours before start",
			book:   confirmedBooking(start),
			policy: defaultPolicy(),
			action: ActionCancel,
			now:    start.Add(-2 * time.Hour),
			want:   DenyTooLate,
		},
		{
			name:   "exactly at the notice boundary is still allowed",
			book:   confirmedBooking(start),
			policy: defaultPolicy(),
			action: ActionReschedule,
			now:    start.Add(-24 * time.Hour),
		},
		{
			name: "terminal booking",
			book: func() *booking.Booking {
				b := confirmedBooking(start)
				b.Status = booking.StatusCancelled
				return b
			}(),
			policy: defaultPolicy(),
			action: ActionCancel,
			now:    start.Add(-48 * time.Hour),
			want:   DenyAlreadyTerminal,
		},
		{
			name: "cancel disabled by policy",
			book: confirmedBooking(start),
			policy: schedule.CancellationPolicy{
				AllowReschedule: true,
			},
			action: ActionCancel,
			now:    start.Add(-48 * time.Hour),
			want:   DenyActionNotAllowed,
		},
		{
			name: "reschedule disabled by policy",
			book: confirmedBooking(start),
			policy: schedule.CancellationPolicy{
				AllowCancel: true,
			},
			action: ActionReschedule,
			now:    start.Add(-48 * time.Hour),
			want:   DenyActionNotAllowed,
		},
		{
			name: "zero notice policy allows late cancel",
			book: confirmedBooking(start),
			policy: schedule.CancellationPolicy{
				AllowCancel: true,
			},
			action: ActionCancel,
			now:    start.Add(-5 * time.Minute),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckPolicy(tc.book, tc.policy, tc.action, tc.now)
			if tc.want == "" {
				require.NoError(t, err)
				return
			}
			var denied *PolicyDeniedError
			require.ErrorAs(t, err, &denied)
			require.Equal(t, tc.want, denied.Reason)
		})
	}
}

// Token flow fixtures: a minimal booking repo plus directory, enough to
// drive the real transaction manager underneath the self-service layer.

type tokenRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*booking.Booking
	events   []booking.EventLog
}

func (r *tokenRepo) GetByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bookings[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, booking.ErrBookingNotFound
}

func (r *tokenRepo) GetByToken(ctx context.Context, token string) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bookings {
		if b.PublicToken == token {
			cp := *b
			return &cp, nil
		}
	}
	return nil, booking.ErrBookingNotFound
}

func (r *tokenRepo) ListActiveOverlapping(ctx context.Context, resourceID uuid.UUID, start, end time.Time) ([]booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []booking.Booking
	for _, b := range r.bookings {
		if b.ResourceID == resourceID && b.Status.Active() && b.StartTime.Before(end) && b.EndTime.After(start) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *tokenRepo) Create(ctx context.Context, b *booking.Booking) (*booking.Booking, error) {
	return nil, errors.New("not used")
}

func (r *tokenRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to booking.Status) (*booking.Booking, error) {
	return nil, errors.New("not used")
}

func (r *tokenRepo) Cancel(ctx context.Context, id uuid.UUID, reason string, actor booking.Actor, at time.Time) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.Status.Terminal() {
		return nil, booking.ErrBookingNotFound
	}
	b.Status = booking.StatusCancelled
	b.CancellationReason = &reason
	b.CancelledBy = &actor
	b.CancelledAt = &at
	cp := *b
	return &cp, nil
}

func (r *tokenRepo) Reschedule(ctx context.Context, oldID uuid.UUID, successor *booking.Booking) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.bookings[oldID]
	if !ok || old.Status.Terminal() {
		return nil, booking.ErrBookingNotFound
	}
	old.Status = booking.StatusRescheduled
	cp := *successor
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.RescheduledFromID = &oldID
	r.bookings[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *tokenRepo) FindElapsedConfirmed(ctx context.Context, now time.Time) ([]booking.Booking, error) {
	return nil, nil
}

func (r *tokenRepo) FindStalePendingPayment(ctx context.Context, cutoff time.Time) ([]booking.Booking, error) {
	return nil, nil
}

func (r *tokenRepo) InsertEvent(ctx context.Context, ev booking.EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type tokenDirectory struct {
	service   *schedule.ServiceType
	schedules map[uuid.UUID]*schedule.ScheduleData
}

func (d *tokenDirectory) GetPractitionerByID(ctx context.Context, id uuid.UUID) (*schedule.Practitioner, error) {
	return nil, schedule.ErrPractitionerNotFound
}

func (d *tokenDirectory) GetPatientByID(ctx context.Context, id uuid.UUID) (*schedule.Patient, error) {
	return &schedule.Patient{ID: id}, nil
}

func (d *tokenDirectory) GetServiceType(ctx context.Context, id uuid.UUID) (*schedule.ServiceType, error) {
	if d.service != nil && d.service.ID == id {
		return d.service, nil
	}
	return nil, schedule.ErrServiceNotFound
}

func (d *tokenDirectory) CreateSchedule(ctx context.Context, s *schedule.AvailabilitySchedule) (*schedule.AvailabilitySchedule, error) {
	return nil, errors.New("not used")
}

func (d *tokenDirectory) GetScheduleData(ctx context.Context, scheduleID uuid.UUID) (*schedule.ScheduleData, error) {
	if data, ok := d.schedules[scheduleID]; ok {
		return data, nil
	}
	return nil, schedule.ErrScheduleNotFound
}

func (d *tokenDirectory) AddBlock(ctx context.Context, b *schedule.AvailabilityBlock) (*schedule.AvailabilityBlock, error) {
	return nil, errors.New("not used")
}

func (d *tokenDirectory) AddTimeOff(ctx context.Context, t *schedule.TimeOff) (*schedule.TimeOff, error) {
	return nil, errors.New("not used")
}

func (d *tokenDirectory) AddSpecificAvailability(ctx context.Context, sa *schedule.SpecificAvailability) (*schedule.SpecificAvailability, error) {
	return nil, errors.New("not used")
}

func (d *tokenDirectory) DeleteSchedule(ctx context.Context, scheduleID uuid.UUID) error {
	return errors.New("not used")
}

type passthroughLocker struct{ mu sync.Mutex }

func (l *passthroughLocker) WithResourceLock(ctx context.Context, resourceID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

func newTokenFixture(t *testing.T, start time.Time) (*Service, *tokenRepo, *booking.Booking) {
	t.Helper()

	practitionerID := uuid.New()
	scheduleID := uuid.New()
	svcType := &schedule.ServiceType{
		ID:             uuid.New(),
		Name:           "consult",
		Duration:       time.Hour,
		SchedulingType: schedule.SchedulingCalendar,
		Mode:           schedule.ModeOneOnOne,
		Capacity:       1,
		ScheduleID:     &scheduleID,
		PractitionerID: &practitionerID,
		Policy:         defaultPolicy(),
	}

	token, err := booking.NewPublicToken()
	require.NoError(t, err)

	b := &booking.Booking{
		ID:          uuid.New(),
		ServiceID:   svcType.ID,
		ResourceID:  practitionerID,
		PatientID:   uuid.New(),
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		Status:      booking.StatusConfirmed,
		PublicToken: token,
	}

	repo := &tokenRepo{bookings: map[uuid.UUID]*booking.Booking{b.ID: b}}
	dir := &tokenDirectory{
		service: svcType,
		schedules: map[uuid.UUID]*schedule.ScheduleData{
			scheduleID: {
				Schedule: schedule.AvailabilitySchedule{
					ID:             scheduleID,
					PractitionerID: practitionerID,
					Timezone:       "UTC",
				},
				Blocks: []schedule.AvailabilityBlock{
					{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 12 * 60},
				},
			},
		},
	}

	manager := booking.NewService(repo, dir, &passthroughLocker{}, nil, config.Config{})
	return NewService(manager, dir), repo, b
}

func TestResolveByTokenUniformNotFound(t *testing.T) {
	svc, _, _ := newTokenFixture(t, monday.Add(9*time.Hour))

	// Malformed and well-formed-but-unknown tokens are
	// indistinguishable.
	_, errShort := svc.ResolveByToken(context.Background(), "short")
	require.ErrorIs(t, errShort, booking.ErrBookingNotFound)

	unknown := strings.Repeat("a", booking.PublicTokenLength)
	_, errUnknown := svc.ResolveByToken(context.Background(), unknown)
	require.ErrorIs(t, errUnknown, booking.ErrBookingNotFound)

	require.Equal(t, errShort.Error(), errUnknown.Error())
}

func TestResolveByTokenReturnsBooking(t *testing.T) {
	svc, _, b := newTokenFixture(t, monday.Add(9*time.Hour))

	got, err := svc.ResolveByToken(context.Background(), b.PublicToken)
	require.NoError(t, err)
	require.Equal(t, b.ID, got.ID)
}

func TestCancelByToken(t *testing.T) {
	// Booking far in the future, well outside the 24h notice window.
	svc, _, b := newTokenFixture(t, time.Now().UTC().Add(72*time.Hour).Truncate(time.Hour))

	got, err := svc.CancelByToken(context.Background(), b.PublicToken, "cannot make it")
	require.NoError(t, err)
	require.Equal(t, booking.StatusCancelled, got.Status)
	require.Equal(t, booking.ActorPatient, *got.CancelledBy)
}

func TestCancelByTokenTooLate(t *testing.T) {
	// Spec example: minimum notice 24h, now = start - 2h.
	svc, _, b := newTokenFixture(t, time.Now().UTC().Add(2*time.Hour))

	_, err := svc.CancelByToken(context.Background(), b.PublicToken, "late")
	var denied *PolicyDeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, DenyTooLate, denied.Reason)
}

func TestCancelByTokenTerminal(t *testing.T) {
	svc, repo, b := newTokenFixture(t, time.Now().UTC().Add(72*time.Hour))
	repo.bookings[b.ID].Status = booking.StatusRescheduled

	_, err := svc.CancelByToken(context.Background(), b.PublicToken, "late")
	var denied *PolicyDeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, DenyAlreadyTerminal, denied.Reason)
}

func TestRescheduleByToken(t *testing.T) {
	// Pick the next Monday at least 48h out so policy passes and the
	// 09:00-12:00 block applies.
	day := time.Now().UTC().AddDate(0, 0, 3)
	for day.Weekday() != time.Monday {
		day = day.AddDate(0, 0, 1)
	}
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	svc, repo, b := newTokenFixture(t, day.Add(9*time.Hour))

	successor, err := svc.RescheduleByToken(context.Background(), b.PublicToken, day.Add(11*time.Hour))
	require.NoError(t, err)
	require.Equal(t, b.ID, *successor.RescheduledFromID)
	require.Equal(t, day.Add(11*time.Hour), successor.StartTime)

	require.Equal(t, booking.StatusRescheduled, repo.bookings[b.ID].Status)
}

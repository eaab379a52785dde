package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidTimezone = errors.New("invalid timezone")
	ErrInvalidWindow   = errors.New("invalid time window")
	ErrInvalidDate     = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidInterval = errors.New("interval end must be after start")
)

const minutesPerDay = 24 * 60

// Service owns schedule editing. It validates input before it reaches
// the repository; the resolver assumes stored data is well formed.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateSchedule(ctx context.Context, practitionerID uuid.UUID, name, timezone string) (*AvailabilitySchedule, error) {
	if _, err := s.repo.GetPractitionerByID(ctx, practitionerID); err != nil {
		return nil, err
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, timezone)
	}
	return s.repo.CreateSchedule(ctx, &AvailabilitySchedule{
		PractitionerID: practitionerID,
		Name:           name,
		Timezone:       timezone,
	})
}

func (s *Service) AddBlock(ctx context.Context, scheduleID uuid.UUID, weekday time.Weekday, startMinute, endMinute int) (*AvailabilityBlock, error) {
	if err := validateWindow(startMinute, endMinute); err != nil {
		return nil, err
	}
	if weekday < time.Sunday || weekday > time.Saturday {
		return nil, fmt.Errorf("%w: weekday %d", ErrInvalidWindow, weekday)
	}
	return s.repo.AddBlock(ctx, &AvailabilityBlock{
		ScheduleID:  scheduleID,
		Weekday:     weekday,
		StartMinute: startMinute,
		EndMinute:   endMinute,
	})
}

func (s *Service) AddTimeOff(ctx context.Context, scheduleID uuid.UUID, start, end time.Time, reason *string) (*TimeOff, error) {
	if !start.Before(end) {
		return nil, ErrInvalidInterval
	}
	return s.repo.AddTimeOff(ctx, &TimeOff{
		ScheduleID: scheduleID,
		StartTime:  start.UTC(),
		EndTime:    end.UTC(),
		Reason:     reason,
	})
}

// AddOverride replaces the recurring blocks for one date. An override
// with no windows closes the day.
func (s *Service) AddOverride(ctx context.Context, scheduleID uuid.UUID, date string, windows []TimeWindow) (*SpecificAvailability, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	for _, w := range windows {
		if err := validateWindow(w.StartMinute, w.EndMinute); err != nil {
			return nil, err
		}
	}
	return s.repo.AddSpecificAvailability(ctx, &SpecificAvailability{
		ScheduleID: scheduleID,
		Date:       date,
		Windows:    windows,
	})
}

// DeleteSchedule removes the schedule and everything it owns.
func (s *Service) DeleteSchedule(ctx context.Context, scheduleID uuid.UUID) error {
	return s.repo.DeleteSchedule(ctx, scheduleID)
}

func (s *Service) GetScheduleData(ctx context.Context, scheduleID uuid.UUID) (*ScheduleData, error) {
	return s.repo.GetScheduleData(ctx, scheduleID)
}

func validateWindow(startMinute, endMinute int) error {
	if startMinute < 0 || endMinute > minutesPerDay || startMinute >= endMinute {
		return fmt.Errorf("%w: %d-%d", ErrInvalidWindow, startMinute, endMinute)
	}
	return nil
}

package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPractitionerNotFound = errors.New("practitioner not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrScheduleNotFound     = errors.New("schedule not found")
	ErrServiceNotFound      = errors.New("service not found")
)

// Repository contains all DB interactions needed by the scheduling and
// booking services.
type Repository interface {
	GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetServiceType(ctx context.Context, id uuid.UUID) (*ServiceType, error)

	// Schedule editing
	CreateSchedule(ctx context.Context, s *AvailabilitySchedule) (*AvailabilitySchedule, error)
	GetScheduleData(ctx context.Context, scheduleID uuid.UUID) (*ScheduleData, error)
	AddBlock(ctx context.Context, b *AvailabilityBlock) (*AvailabilityBlock, error)
	AddTimeOff(ctx context.Context, t *TimeOff) (*TimeOff, error)
	AddSpecificAvailability(ctx context.Context, sa *SpecificAvailability) (*SpecificAvailability, error)

	// DeleteSchedule removes the schedule and every owned block, time off
	// and override in one transaction.
	DeleteSchedule(ctx context.Context, scheduleID uuid.UUID) error
}

package schedule

import (
	"time"

	"github.com/google/uuid"
)

type SchedulingType string

const (
	SchedulingCalendar  SchedulingType = "calendar"
	SchedulingFixedDate SchedulingType = "fixed_date"
)

type ServiceMode string

const (
	ModeOneOnOne ServiceMode = "one_on_one"
	ModeGroup    ServiceMode = "group"
)

type Practitioner struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailabilitySchedule is the named container of recurring and ad hoc
// availability for one practitioner. It exclusively owns its blocks,
// time off and date overrides; deleting it deletes them.
type AvailabilitySchedule struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	Name           string
	Timezone       string // IANA name, block times are local to it
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AvailabilityBlock is a recurring weekly rule. Times are minutes from
// local midnight in the schedule's timezone. Multiple blocks per weekday
// are allowed and treated as a union.
type AvailabilityBlock struct {
	ID          uuid.UUID
	ScheduleID  uuid.UUID
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
	CreatedAt   time.Time
}

// TimeOff is an absolute exclusion interval, always subtracted from
// computed availability.
type TimeOff struct {
	ID         uuid.UUID
	ScheduleID uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
	Reason     *string
	CreatedAt  time.Time
}

// TimeWindow is a minute-of-day range within a single local date.
type TimeWindow struct {
	StartMinute int
	EndMinute   int
}

// SpecificAvailability overrides the recurring blocks for one date.
// An entry with no windows means the day is explicitly closed even if
// recurring blocks exist for its weekday.
type SpecificAvailability struct {
	ID         uuid.UUID
	ScheduleID uuid.UUID
	Date       string // YYYY-MM-DD in the schedule's timezone
	Windows    []TimeWindow
	CreatedAt  time.Time
}

// CancellationPolicy governs what a patient may do through the public
// token surface. It is attached to the service, never to a booking.
type CancellationPolicy struct {
	MinimumNotice   time.Duration
	AllowCancel     bool
	AllowReschedule bool
}

type ServiceType struct {
	ID              uuid.UUID
	Name            string
	Duration        time.Duration
	SchedulingType  SchedulingType
	Mode            ServiceMode
	Capacity        int // 1 for one-on-one
	RequiresPayment bool
	Policy          CancellationPolicy
	ScheduleID      *uuid.UUID
	PractitionerID  *uuid.UUID
	Sessions        []time.Time // fixed-date session starts, UTC
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ResourceID returns the entity commit attempts serialize on: the
// assigned practitioner for one-on-one services, otherwise the service
// itself (group sessions share one calendar).
func (s *ServiceType) ResourceID() uuid.UUID {
	if s.Mode == ModeOneOnOne && s.PractitionerID != nil {
		return *s.PractitionerID
	}
	return s.ID
}

// ScheduleData bundles a schedule with everything the availability
// resolver reads.
type ScheduleData struct {
	Schedule AvailabilitySchedule
	Blocks   []AvailabilityBlock
	TimeOff  []TimeOff
	Specific []SpecificAvailability
}

package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusConfirmed      Status = "confirmed"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
	StatusRescheduled    Status = "rescheduled"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRescheduled:
		return true
	}
	return false
}

// Active reports whether a booking in this status still counts against
// slot capacity.
func (s Status) Active() bool {
	switch s {
	case StatusCancelled, StatusRescheduled:
		return false
	}
	return true
}

// Actor identifies who initiated a cancellation.
type Actor string

const (
	ActorPatient      Actor = "patient"
	ActorPractitioner Actor = "practitioner"
	ActorSystem       Actor = "system"
)

// Booking is the committed reservation. Start and end are stored UTC;
// TargetTimezone records the timezone the patient booked in, for
// display only. A cancelled or superseded booking is never deleted.
type Booking struct {
	ID                 uuid.UUID
	ServiceID          uuid.UUID
	ResourceID         uuid.UUID
	PatientID          uuid.UUID
	StartTime          time.Time
	EndTime            time.Time
	TargetTimezone     string
	Status             Status
	PublicToken        string
	RescheduledFromID  *uuid.UUID
	CancellationReason *string
	CancelledAt        *time.Time
	CancelledBy        *Actor
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type EventLog struct {
	ID        int64
	EventType string
	BookingID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

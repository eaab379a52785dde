package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/booking-engine/internal/availability"
	"github.com/careloop/booking-engine/internal/booking"
	"github.com/careloop/booking-engine/internal/schedule"
)

type CreateBookingRequest struct {
	ServiceID string    `json:"service_id"`
	PatientID string    `json:"patient_id"`
	Start     time.Time `json:"start"`
	Timezone  string    `json:"timezone,omitempty"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor,omitempty"` // patient or practitioner, defaults to practitioner
}

type RescheduleRequest struct {
	Start time.Time `json:"start"`
}

type SelfCancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type BookingResponse struct {
	ID                uuid.UUID  `json:"id"`
	ServiceID         uuid.UUID  `json:"service_id"`
	PatientID         uuid.UUID  `json:"patient_id"`
	Start             time.Time  `json:"start"`
	End               time.Time  `json:"end"`
	StartLocal        string     `json:"start_local,omitempty"`
	Timezone          string     `json:"timezone"`
	Status            string     `json:"status"`
	PublicToken       string     `json:"public_token,omitempty"`
	RescheduledFromID *uuid.UUID `json:"rescheduled_from_id,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
	CancelReason      *string    `json:"cancellation_reason,omitempty"`
}

type SlotResponse struct {
	ServiceID uuid.UUID `json:"service_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

type SlotsResponse struct {
	Slots []SlotResponse `json:"slots"`
}

type CreateScheduleRequest struct {
	PractitionerID string `json:"practitioner_id"`
	Name           string `json:"name"`
	Timezone       string `json:"timezone"`
}

type ScheduleResponse struct {
	ID             uuid.UUID `json:"id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	Name           string    `json:"name"`
	Timezone       string    `json:"timezone"`
}

type BlockResponse struct {
	ID         uuid.UUID `json:"id"`
	ScheduleID uuid.UUID `json:"schedule_id"`
	Weekday    int       `json:"weekday"`
	Start      string    `json:"start"`
	End        string    `json:"end"`
}

type TimeOffResponse struct {
	ID         uuid.UUID `json:"id"`
	ScheduleID uuid.UUID `json:"schedule_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Reason     *string   `json:"reason,omitempty"`
}

type OverrideResponse struct {
	ID         uuid.UUID        `json:"id"`
	ScheduleID uuid.UUID        `json:"schedule_id"`
	Date       string           `json:"date"`
	Windows    []OverrideWindow `json:"windows"`
}

type AddBlockRequest struct {
	Weekday int    `json:"weekday"` // 0 = Sunday
	Start   string `json:"start"`   // HH:MM local to the schedule
	End     string `json:"end"`
}

type AddTimeOffRequest struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason *string   `json:"reason,omitempty"`
}

type AddOverrideRequest struct {
	Date    string           `json:"date"` // YYYY-MM-DD
	Windows []OverrideWindow `json:"windows"`
}

type OverrideWindow struct {
	Start string `json:"start"` // HH:MM
	End   string `json:"end"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// bookingResponse shapes a booking for the wire. The public token is
// only included on the paths that created the booking or were reached
// through it.
func bookingResponse(b *booking.Booking, includeToken bool) BookingResponse {
	resp := BookingResponse{
		ID:                b.ID,
		ServiceID:         b.ServiceID,
		PatientID:         b.PatientID,
		Start:             b.StartTime,
		End:               b.EndTime,
		Timezone:          b.TargetTimezone,
		Status:            string(b.Status),
		RescheduledFromID: b.RescheduledFromID,
		CancelledAt:       b.CancelledAt,
		CancelReason:      b.CancellationReason,
	}
	if includeToken {
		resp.PublicToken = b.PublicToken
	}
	if loc, err := time.LoadLocation(b.TargetTimezone); err == nil {
		resp.StartLocal = b.StartTime.In(loc).Format("2006-01-02 15:04")
	}
	return resp
}

func formatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

func blockResponse(b *schedule.AvailabilityBlock) BlockResponse {
	return BlockResponse{
		ID:         b.ID,
		ScheduleID: b.ScheduleID,
		Weekday:    int(b.Weekday),
		Start:      formatClock(b.StartMinute),
		End:        formatClock(b.EndMinute),
	}
}

func timeOffResponse(t *schedule.TimeOff) TimeOffResponse {
	return TimeOffResponse{
		ID:         t.ID,
		ScheduleID: t.ScheduleID,
		Start:      t.StartTime,
		End:        t.EndTime,
		Reason:     t.Reason,
	}
}

func overrideResponse(sa *schedule.SpecificAvailability) OverrideResponse {
	out := OverrideResponse{
		ID:         sa.ID,
		ScheduleID: sa.ScheduleID,
		Date:       sa.Date,
		Windows:    make([]OverrideWindow, 0, len(sa.Windows)),
	}
	for _, w := range sa.Windows {
		out.Windows = append(out.Windows, OverrideWindow{
			Start: formatClock(w.StartMinute),
			End:   formatClock(w.EndMinute),
		})
	}
	return out
}

func slotsResponse(candidates []availability.SlotCandidate) SlotsResponse {
	out := SlotsResponse{Slots: make([]SlotResponse, 0, len(candidates))}
	for _, c := range candidates {
		out.Slots = append(out.Slots, SlotResponse{
			ServiceID: c.ServiceID,
			Start:     c.Start,
			End:       c.End,
		})
	}
	return out
}

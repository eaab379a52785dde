package selfservice

import (
	"context"
	"fmt"
	"time"

	"github.com/careloop/booking-engine/internal/booking"
	"github.com/careloop/booking-engine/internal/schedule"
)

// Action is a self-service operation a patient can request through a
// public token.
type Action string

const (
	ActionCancel     Action = "cancel"
	ActionReschedule Action = "reschedule"
)

// DenyReason is the machine-readable reason a policy check failed.
type DenyReason string

const (
	DenyTooLate          DenyReason = "TOO_LATE"
	DenyAlreadyTerminal  DenyReason = "ALREADY_TERMINAL"
	DenyActionNotAllowed DenyReason = "ACTION_NOT_ALLOWED"
)

// PolicyDeniedError is returned when the cancellation policy rejects a
// self-service action. It is an expected outcome, not a failure.
type PolicyDeniedError struct {
	Reason DenyReason
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("policy denied: %s", e.Reason)
}

// CheckPolicy decides whether a self-service action is allowed right
// now. The policy is passed in explicitly from the owning service, it
// is never read from ambient state.
func CheckPolicy(b *booking.Booking, policy schedule.CancellationPolicy, action Action, now time.Time) error {
	if b.Status.Terminal() {
		return &PolicyDeniedError{Reason: DenyAlreadyTerminal}
	}

	switch action {
	case ActionCancel:
		if !policy.AllowCancel {
			return &PolicyDeniedError{Reason: DenyActionNotAllowed}
		}
	case ActionReschedule:
		if !policy.AllowReschedule {
			return &PolicyDeniedError{Reason: DenyActionNotAllowed}
		}
	}

	if policy.MinimumNotice > 0 && now.After(b.StartTime.Add(-policy.MinimumNotice)) {
		return &PolicyDeniedError{Reason: DenyTooLate}
	}
	return nil
}

// Service resolves bookings by public token and applies the owning
// service's cancellation policy before handing the action to the
// transaction manager.
type Service struct {
	manager   *booking.Service
	directory schedule.Repository
}

func NewService(manager *booking.Service, directory schedule.Repository) *Service {
	return &Service{
		manager:   manager,
		directory: directory,
	}
}

// ResolveByToken looks up the one booking a token grants access to.
// Unknown tokens and missing bookings produce the same error, so the
// lookup cannot be used to enumerate tokens.
func (s *Service) ResolveByToken(ctx context.Context, token string) (*booking.Booking, error) {
	if len(token) != booking.PublicTokenLength {
		return nil, booking.ErrBookingNotFound
	}
	return s.manager.GetBookingByToken(ctx, token)
}

// CancelByToken cancels the booking behind a token once policy passes.
func (s *Service) CancelByToken(ctx context.Context, token, reason string) (*booking.Booking, error) {
	b, policy, err := s.resolveWithPolicy(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := CheckPolicy(b, policy, ActionCancel, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.manager.CancelBooking(ctx, b.ID, reason, booking.ActorPatient)
}

// RescheduleByToken moves the booking behind a token to a new slot once
// policy passes. The new slot is validated exactly like a fresh commit.
func (s *Service) RescheduleByToken(ctx context.Context, token string, newStart time.Time) (*booking.Booking, error) {
	b, policy, err := s.resolveWithPolicy(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := CheckPolicy(b, policy, ActionReschedule, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.manager.RescheduleBooking(ctx, b.ID, newStart)
}

func (s *Service) resolveWithPolicy(ctx context.Context, token string) (*booking.Booking, schedule.CancellationPolicy, error) {
	b, err := s.ResolveByToken(ctx, token)
	if err != nil {
		return nil, schedule.CancellationPolicy{}, err
	}

	svc, err := s.directory.GetServiceType(ctx, b.ServiceID)
	if err != nil {
		return nil, schedule.CancellationPolicy{}, fmt.Errorf("load service for booking %s: %w", b.ID, err)
	}
	return b, svc.Policy, nil
}

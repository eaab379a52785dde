package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careloop/booking-engine/internal/booking"
	redisclient "github.com/careloop/booking-engine/internal/redis"
	"github.com/careloop/booking-engine/internal/schedule"
	"github.com/careloop/booking-engine/internal/selfservice"
)

func listSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serviceID, ok := parseIDParam(w, r, "id", "service")
		if !ok {
			return
		}

		from, to, ok := parseDateRange(w, r)
		if !ok {
			return
		}

		slots, err := svc.OpenSlots(r.Context(), serviceID, from, to)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, slotsResponse(slots))
	}
}

func createBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		serviceID, err := uuid.Parse(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		if req.Start.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be an RFC 3339 timestamp")
			return
		}

		b, err := svc.CommitBooking(r.Context(), booking.CommitRequest{
			ServiceID:      serviceID,
			PatientID:      patientID,
			Start:          req.Start,
			TargetTimezone: req.Timezone,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, bookingResponse(b, true))
	}
}

func getBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id", "booking")
		if !ok {
			return
		}

		b, err := svc.GetBooking(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, bookingResponse(b, false))
	}
}

func confirmPaymentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id", "booking")
		if !ok {
			return
		}

		b, err := svc.ConfirmPayment(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, bookingResponse(b, false))
	}
}

func cancelBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id", "booking")
		if !ok {
			return
		}

		var req CancelBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		actor := booking.ActorPractitioner
		if req.Actor == string(booking.ActorPatient) {
			actor = booking.ActorPatient
		}

		b, err := svc.CancelBooking(r.Context(), id, req.Reason, actor)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, bookingResponse(b, false))
	}
}

func rescheduleBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id", "booking")
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		b, err := svc.RescheduleBooking(r.Context(), id, req.Start)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, bookingResponse(b, true))
	}
}

func resolveTokenHandler(svc *selfservice.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := svc.ResolveByToken(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			handleSelfServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, bookingResponse(b, true))
	}
}

func selfCancelHandler(svc *selfservice.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelfCancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		reason := req.Reason
		if reason == "" {
			reason = "cancelled by patient"
		}

		b, err := svc.CancelByToken(r.Context(), chi.URLParam(r, "token"), reason)
		if err != nil {
			handleSelfServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, bookingResponse(b, true))
	}
}

func selfRescheduleHandler(svc *selfservice.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		b, err := svc.RescheduleByToken(r.Context(), chi.URLParam(r, "token"), req.Start)
		if err != nil {
			handleSelfServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, bookingResponse(b, true))
	}
}

func createScheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}

		created, err := svc.CreateSchedule(r.Context(), practitionerID, req.Name, req.Timezone)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, ScheduleResponse{
			ID:             created.ID,
			PractitionerID: created.PractitionerID,
			Name:           created.Name,
			Timezone:       created.Timezone,
		})
	}
}

func deleteScheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id", "schedule")
		if !ok {
			return
		}

		if err := svc.DeleteSchedule(r.Context(), id); err != nil {
			handleScheduleError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func addBlockHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheduleID, ok := parseIDParam(w, r, "id", "schedule")
		if !ok {
			return
		}

		var req AddBlockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		start, err := parseClock(req.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_window", "start must be HH:MM")
			return
		}
		end, err := parseClock(req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_window", "end must be HH:MM")
			return
		}

		block, err := svc.AddBlock(r.Context(), scheduleID, time.Weekday(req.Weekday), start, end)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, blockResponse(block))
	}
}

func addTimeOffHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheduleID, ok := parseIDParam(w, r, "id", "schedule")
		if !ok {
			return
		}

		var req AddTimeOffRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		timeOff, err := svc.AddTimeOff(r.Context(), scheduleID, req.Start, req.End, req.Reason)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, timeOffResponse(timeOff))
	}
}

func addOverrideHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheduleID, ok := parseIDParam(w, r, "id", "schedule")
		if !ok {
			return
		}

		var req AddOverrideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		windows := make([]schedule.TimeWindow, 0, len(req.Windows))
		for _, win := range req.Windows {
			start, err := parseClock(win.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_window", "window start must be HH:MM")
				return
			}
			end, err := parseClock(win.End)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_window", "window end must be HH:MM")
				return
			}
			windows = append(windows, schedule.TimeWindow{StartMinute: start, EndMinute: end})
		}

		override, err := svc.AddOverride(r.Context(), scheduleID, req.Date, windows)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, overrideResponse(override))
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name, entity string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+entity+"_id", entity+" id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// parseDateRange reads from/to query params as civil dates. Defaults to
// the next seven days when absent.
func parseDateRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
		to = parsed
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "invalid_range", "to must not be before from")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, schedule.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, schedule.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
	case errors.Is(err, booking.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
	case errors.Is(err, booking.ErrServiceNotBookable):
		writeError(w, http.StatusUnprocessableEntity, "service_not_bookable", err.Error())
	case errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, booking.ErrSlotContended),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_contended", "slot is currently being booked, please retry shortly")
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleSelfServiceError(w http.ResponseWriter, err error) {
	var denied *selfservice.PolicyDeniedError
	if errors.As(err, &denied) {
		writeError(w, http.StatusForbidden, "policy_denied", string(denied.Reason))
		return
	}
	handleBookingError(w, err)
}

func handleScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "practitioner_not_found", err.Error())
	case errors.Is(err, schedule.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
	case errors.Is(err, schedule.ErrInvalidTimezone),
		errors.Is(err, schedule.ErrInvalidWindow),
		errors.Is(err, schedule.ErrInvalidDate),
		errors.Is(err, schedule.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/careloop/booking-engine/internal/booking"
	"github.com/careloop/booking-engine/internal/selfservice"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:00", 540, false},
		{"23:59", 1439, false},
		{"9am", 0, true},
		{"25:00", 0, true},
	}
	for _, c := range cases {
		got, err := parseClock(c.in)
		if c.wantErr {
			require.Error(t, err, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		require.Equal(t, c.want, got, c.in)
	}
}

func TestParseDateRangeRejectsInvertedRange(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/services/x/slots?from=2026-03-10&to=2026-03-01", nil)
	w := httptest.NewRecorder()

	_, _, ok := parseDateRange(w, r)
	require.False(t, ok)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseDateRangeDefaultsToSevenDays(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/services/x/slots", nil)
	w := httptest.NewRecorder()

	from, to, ok := parseDateRange(w, r)
	require.True(t, ok)
	require.Equal(t, 7*24.0, to.Sub(from).Hours())
}

func TestBookingErrorMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{booking.ErrSlotTaken, http.StatusConflict, "slot_taken"},
		{booking.ErrSlotContended, http.StatusConflict, "slot_contended"},
		{booking.ErrInvalidTransition, http.StatusConflict, "invalid_status_transition"},
		{booking.ErrBookingNotFound, http.StatusNotFound, "booking_not_found"},
		{booking.ErrServiceNotBookable, http.StatusUnprocessableEntity, "service_not_bookable"},
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		handleBookingError(w, c.err)
		require.Equal(t, c.wantStatus, w.Code, c.wantCode)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, c.wantCode, resp.Error)
	}
}

func TestPolicyDenialMapsToForbidden(t *testing.T) {
	w := httptest.NewRecorder()
	handleSelfServiceError(w, &selfservice.PolicyDeniedError{Reason: selfservice.DenyTooLate})

	require.Equal(t, http.StatusForbidden, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "policy_denied", resp.Error)
	require.Equal(t, string(selfservice.DenyTooLate), resp.Details)
}

package availability

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/careloop/booking-engine/internal/interval"
	"github.com/careloop/booking-engine/internal/schedule"
)

// Monday 2026-03-02.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func utcSchedule(blocks []schedule.AvailabilityBlock, timeOff []schedule.TimeOff, specific []schedule.SpecificAvailability) *schedule.ScheduleData {
	sched := schedule.AvailabilitySchedule{
		ID:             uuid.New(),
		PractitionerID: uuid.New(),
		Name:           "default",
		Timezone:       "UTC",
	}
	for i := range blocks {
		blocks[i].ScheduleID = sched.ID
	}
	return &schedule.ScheduleData{
		Schedule: sched,
		Blocks:   blocks,
		TimeOff:  timeOff,
		Specific: specific,
	}
}

func calendarService(d time.Duration) *schedule.ServiceType {
	pid := uuid.New()
	return &schedule.ServiceType{
		ID:             uuid.New(),
		Name:           "consult",
		Duration:       d,
		SchedulingType: schedule.SchedulingCalendar,
		Mode:           schedule.ModeOneOnOne,
		Capacity:       1,
		PractitionerID: &pid,
	}
}

func starts(candidates []SlotCandidate) []time.Time {
	out := make([]time.Time, len(candidates))
	for i, c := range candidates {
		out[i] = c.Start
	}
	return out
}

func TestResolveMondayBlockWithTimeOff(t *testing.T) {
	// Monday 09:00-12:00 block, time off 10:00-10:30, 60 min service,
	// step = duration. Expect 09:00-10:00 and 11:00-12:00 only: the
	// 10:00 slot is cut by time off and 10:30-11:30 is never generated
	// because stepping restarts at the free interval boundary.
	data := utcSchedule(
		[]schedule.AvailabilityBlock{{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 12 * 60}},
		[]schedule.TimeOff{{StartTime: monday.Add(10 * time.Hour), EndTime: monday.Add(10*time.Hour + 30*time.Minute)}},
		nil,
	)

	got, err := Resolve(Request{
		Service: calendarService(time.Hour),
		Data:    data,
		From:    monday,
		To:      monday,
	})
	require.NoError(t, err)

	require.Equal(t, []time.Time{
		monday.Add(9 * time.Hour),
		monday.Add(11 * time.Hour),
	}, starts(got))
	require.Equal(t, monday.Add(10*time.Hour), got[0].End)
}

func TestResolveMultipleBlocksUnion(t *testing.T) {
	// Overlapping blocks on the same day act as a union, not a sequence.
	data := utcSchedule(
		[]schedule.AvailabilityBlock{
			{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 11 * 60},
			{Weekday: time.Monday, StartMinute: 10 * 60, EndMinute: 12 * 60},
		},
		nil, nil,
	)

	got, err := Resolve(Request{
		Service: calendarService(time.Hour),
		Data:    data,
		From:    monday,
		To:      monday,
	})
	require.NoError(t, err)

	require.Equal(t, []time.Time{
		monday.Add(9 * time.Hour),
		monday.Add(10 * time.Hour),
		monday.Add(11 * time.Hour),
	}, starts(got))
}

func TestResolveSpecificOverrideWins(t *testing.T) {
	data := utcSchedule(
		[]schedule.AvailabilityBlock{{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60}},
		nil,
		[]schedule.SpecificAvailability{{
			Date:    "2026-03-02",
			Windows: []schedule.TimeWindow{{StartMinute: 10 * 60, EndMinute: 12 * 60}},
		}},
	)

	got, err := Resolve(Request{
		Service: calendarService(time.Hour),
		Data:    data,
		From:    monday,
		To:      monday,
	})
	require.NoError(t, err)

	require.Equal(t, []time.Time{
		monday.Add(10 * time.Hour),
		monday.Add(11 * time.Hour),
	}, starts(got))
}

func TestResolveEmptyOverrideClosesDay(t *testing.T) {
	// An override with no windows means explicitly unavailable even
	// though a recurring block exists for that weekday.
	data := utcSchedule(
		[]schedule.AvailabilityBlock{{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60}},
		nil,
		[]schedule.SpecificAvailability{{Date: "2026-03-02"}},
	)

	got, err := Resolve(Request{
		Service: calendarService(time.Hour),
		Data:    data,
		From:    monday,
		To:      monday,
	})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestResolveExternalBusySubtracted(t *testing.T) {
	data := utcSchedule(
		[]schedule.AvailabilityBlock{{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 12 * 60}},
		nil, nil,
	)

	got, err := Resolve(Request{
		Service: calendarService(time.Hour),
		Data:    data,
		Busy:    []interval.Interval{interval.New(monday.Add(9*time.Hour), monday.Add(10*time.Hour))},
		From:    monday,
		To:      monday,
	})
	require.NoError(t, err)

	require.Equal(t, []time.Time{
		monday.Add(10 * time.Hour),
		monday.Add(11 * time.Hour),
	}, starts(got))
}

func TestResolveStepOverride(t *testing.T) {
	data := utcSchedule(
		[]schedule.AvailabilityBlock{{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 11 * 60}},
		nil, nil,
	)

	got, err := Resolve(Request{
		Service: calendarService(time.Hour),
		Data:    data,
		From:    monday,
		To:      monday,
		Step:    30 * time.Minute,
	})
	require.NoError(t, err)

	require.Equal(t, []time.Time{
		monday.Add(9 * time.Hour),
		monday.Add(9*time.Hour + 30*time.Minute),
		monday.Add(10 * time.Hour),
	}, starts(got))
}

func TestResolveTimezoneConversion(t *testing.T) {
	// 09:00-11:00 New York is 14:00-16:00 UTC on 2026-03-02 (EST).
	data := utcSchedule(
		[]schedule.AvailabilityBlock{{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 11 * 60}},
		nil, nil,
	)
	data.Schedule.Timezone = "America/New_York"

	got, err := Resolve(Request{
		Service: calendarService(time.Hour),
		Data:    data,
		From:    monday,
		To:      monday,
	})
	require.NoError(t, err)

	require.Equal(t, []time.Time{
		monday.Add(14 * time.Hour),
		monday.Add(15 * time.Hour),
	}, starts(got))
	require.Equal(t, time.UTC, got[0].Start.Location())
}

func TestResolveBadTimezone(t *testing.T) {
	data := utcSchedule(nil, nil, nil)
	data.Schedule.Timezone = "Mars/Olympus_Mons"

	_, err := Resolve(Request{
		Service: calendarService(time.Hour),
		Data:    data,
		From:    monday,
		To:      monday,
	})
	require.Error(t, err)
}

func TestResolveCandidatesStayInsideAvailability(t *testing.T) {
	// Every candidate must lie inside the declared windows and outside
	// every exclusion, across a full week.
	data := utcSchedule(
		[]schedule.AvailabilityBlock{
			{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 12 * 60},
			{Weekday: time.Wednesday, StartMinute: 13 * 60, EndMinute: 18 * 60},
			{Weekday: time.Friday, StartMinute: 8 * 60, EndMinute: 10 * 60},
		},
		[]schedule.TimeOff{
			{StartTime: monday.Add(10 * time.Hour), EndTime: monday.Add(11 * time.Hour)},
			{StartTime: monday.AddDate(0, 0, 2).Add(14 * time.Hour), EndTime: monday.AddDate(0, 0, 2).Add(15 * time.Hour)},
		},
		nil,
	)
	busy := []interval.Interval{
		interval.New(monday.AddDate(0, 0, 4).Add(8*time.Hour), monday.AddDate(0, 0, 4).Add(9*time.Hour)),
	}

	got, err := Resolve(Request{
		Service: calendarService(30 * time.Minute),
		Data:    data,
		Busy:    busy,
		From:    monday,
		To:      monday.AddDate(0, 0, 6),
	})
	require.NoError(t, err)
	require.NotEmpty(t, got)

	var declared []interval.Interval
	for d := 0; d < 7; d++ {
		day := monday.AddDate(0, 0, d)
		for _, b := range data.Blocks {
			if b.Weekday == day.Weekday() {
				declared = append(declared, interval.New(
					day.Add(time.Duration(b.StartMinute)*time.Minute),
					day.Add(time.Duration(b.EndMinute)*time.Minute),
				))
			}
		}
	}
	var excluded []interval.Interval
	for _, to := range data.TimeOff {
		excluded = append(excluded, interval.New(to.StartTime, to.EndTime))
	}
	excluded = append(excluded, busy...)

	for _, c := range got {
		inside := false
		for _, d := range declared {
			if interval.Contains(d, c.Interval()) {
				inside = true
				break
			}
		}
		require.True(t, inside, "candidate %s outside declared availability", c.Start)
		for _, ex := range excluded {
			require.False(t, interval.Overlaps(c.Interval(), ex), "candidate %s overlaps exclusion", c.Start)
		}
	}
}

func TestResolveFixedDateReturnsSessions(t *testing.T) {
	s1 := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	s2 := time.Date(2026, 3, 8, 14, 0, 0, 0, time.UTC)
	outOfRange := time.Date(2026, 5, 1, 14, 0, 0, 0, time.UTC)

	svc := &schedule.ServiceType{
		ID:             uuid.New(),
		Name:           "group workshop",
		Duration:       90 * time.Minute,
		SchedulingType: schedule.SchedulingFixedDate,
		Mode:           schedule.ModeGroup,
		Capacity:       5,
		Sessions:       []time.Time{s2, s1, outOfRange},
	}

	got, err := Resolve(Request{
		Service: svc,
		From:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:      time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Equal(t, []time.Time{s1, s2}, starts(got))
	require.Equal(t, s1.Add(90*time.Minute), got[0].End)
	require.Equal(t, svc.ID, got[0].ResourceID)
}

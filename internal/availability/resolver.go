package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/booking-engine/internal/interval"
	"github.com/careloop/booking-engine/internal/schedule"
)

// SlotCandidate is a proposed, not yet committed interval a patient
// could book. Times are UTC.
type SlotCandidate struct {
	ResourceID uuid.UUID
	ServiceID  uuid.UUID
	Start      time.Time
	End        time.Time
}

func (c SlotCandidate) Interval() interval.Interval {
	return interval.Interval{Start: c.Start, End: c.End}
}

// Request carries everything Resolve needs for one service over one
// date range. From and To are inclusive civil dates, interpreted in the
// schedule's timezone for calendar services.
type Request struct {
	Service *schedule.ServiceType
	Data    *schedule.ScheduleData // nil for fixed-date services
	Busy    []interval.Interval    // external calendar blocks, absolute
	From    time.Time
	To      time.Time
	Step    time.Duration // 0 means step equals service duration
}

// Resolve produces the ordered candidate slots for a service. For
// calendar services it walks each date in the range: the date override
// wins over recurring blocks when present (an override with no windows
// closes the day), time off and external busy intervals are subtracted,
// and a window of the service duration slides across each remaining
// free interval. Fixed-date services return their configured sessions
// directly.
func Resolve(req Request) ([]SlotCandidate, error) {
	svc := req.Service
	if svc.Duration <= 0 {
		return nil, fmt.Errorf("service %s has non-positive duration", svc.ID)
	}

	if svc.SchedulingType == schedule.SchedulingFixedDate {
		return fixedSessions(req), nil
	}

	if req.Data == nil {
		return nil, fmt.Errorf("service %s has no schedule attached", svc.ID)
	}

	loc, err := time.LoadLocation(req.Data.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule %s timezone: %w", req.Data.Schedule.ID, err)
	}

	step := req.Step
	if step <= 0 {
		step = svc.Duration
	}

	excluded := make([]interval.Interval, 0, len(req.Data.TimeOff)+len(req.Busy))
	for _, t := range req.Data.TimeOff {
		excluded = append(excluded, interval.New(t.StartTime, t.EndTime))
	}
	excluded = append(excluded, req.Busy...)

	overrides := make(map[string][]schedule.TimeWindow, len(req.Data.Specific))
	for _, sa := range req.Data.Specific {
		overrides[sa.Date] = sa.Windows
	}

	resource := svc.ResourceID()

	var out []SlotCandidate
	from := time.Date(req.From.Year(), req.From.Month(), req.From.Day(), 0, 0, 0, 0, loc)
	to := time.Date(req.To.Year(), req.To.Month(), req.To.Day(), 0, 0, 0, 0, loc)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		windows, overridden := overrides[day.Format("2006-01-02")]
		if !overridden {
			windows = blocksForWeekday(req.Data.Blocks, day.Weekday())
		}
		if len(windows) == 0 {
			continue
		}

		raw := make([]interval.Interval, 0, len(windows))
		for _, w := range windows {
			raw = append(raw, localWindow(day, w))
		}

		free := interval.SubtractAll(interval.Merge(raw), excluded)
		for _, f := range free {
			for t := f.Start; !t.Add(svc.Duration).After(f.End); t = t.Add(step) {
				out = append(out, SlotCandidate{
					ResourceID: resource,
					ServiceID:  svc.ID,
					Start:      t,
					End:        t.Add(svc.Duration),
				})
			}
		}
	}

	return out, nil
}

func blocksForWeekday(blocks []schedule.AvailabilityBlock, wd time.Weekday) []schedule.TimeWindow {
	var windows []schedule.TimeWindow
	for _, b := range blocks {
		if b.Weekday == wd {
			windows = append(windows, schedule.TimeWindow{StartMinute: b.StartMinute, EndMinute: b.EndMinute})
		}
	}
	return windows
}

// localWindow converts a minute-of-day window on a local date to an
// absolute UTC interval. time.Date normalizes the minute offsets, which
// keeps DST transition days consistent with wall-clock rules.
func localWindow(day time.Time, w schedule.TimeWindow) interval.Interval {
	loc := day.Location()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, w.StartMinute, 0, 0, loc)
	end := time.Date(day.Year(), day.Month(), day.Day(), 0, w.EndMinute, 0, 0, loc)
	return interval.New(start, end)
}

func fixedSessions(req Request) []SlotCandidate {
	svc := req.Service
	resource := svc.ResourceID()

	rangeStart := time.Date(req.From.Year(), req.From.Month(), req.From.Day(), 0, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(req.To.Year(), req.To.Month(), req.To.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)

	var out []SlotCandidate
	for _, start := range svc.Sessions {
		start = start.UTC()
		if start.Before(rangeStart) || !start.Before(rangeEnd) {
			continue
		}
		out = append(out, SlotCandidate{
			ResourceID: resource,
			ServiceID:  svc.ID,
			Start:      start,
			End:        start.Add(svc.Duration),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

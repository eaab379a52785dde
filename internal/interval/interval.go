package interval

import (
	"sort"
	"time"
)

// Interval is a closed-open [Start, End) span of absolute time. Both
// endpoints must be UTC before any comparison; conversion to a display
// timezone happens only at the API boundary.
type Interval struct {
	Start time.Time
	End   time.Time
}

func New(start, end time.Time) Interval {
	return Interval{Start: start.UTC(), End: end.UTC()}
}

// Empty reports whether the interval covers no time at all.
func (iv Interval) Empty() bool {
	return !iv.Start.Before(iv.End)
}

func (iv Interval) Duration() time.Duration {
	if iv.Empty() {
		return 0
	}
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether a and b share any instant. Touching endpoints
// do not overlap under closed-open semantics.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Contains reports whether inner lies entirely within outer.
func Contains(outer, inner Interval) bool {
	return !inner.Start.Before(outer.Start) && !inner.End.After(outer.End)
}

// Merge coalesces overlapping and adjacent intervals into an ordered,
// disjoint sequence. Empty intervals are dropped.
func Merge(ivs []Interval) []Interval {
	var in []Interval
	for _, iv := range ivs {
		if !iv.Empty() {
			in = append(in, iv)
		}
	}
	if len(in) == 0 {
		return nil
	}

	sort.Slice(in, func(i, j int) bool { return in[i].Start.Before(in[j].Start) })

	out := []Interval{in[0]}
	for _, iv := range in[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Subtract splits base around every interval in excluded, preserving
// order. Zero-length remainders are dropped.
func Subtract(base Interval, excluded []Interval) []Interval {
	if base.Empty() {
		return nil
	}

	free := []Interval{base}
	for _, ex := range Merge(excluded) {
		var next []Interval
		for _, f := range free {
			if !Overlaps(f, ex) {
				next = append(next, f)
				continue
			}
			if f.Start.Before(ex.Start) {
				next = append(next, Interval{Start: f.Start, End: ex.Start})
			}
			if ex.End.Before(f.End) {
				next = append(next, Interval{Start: ex.End, End: f.End})
			}
		}
		free = next
	}
	return free
}

// SubtractAll applies Subtract to an ordered sequence of bases.
func SubtractAll(bases []Interval, excluded []Interval) []Interval {
	var out []Interval
	for _, b := range bases {
		out = append(out, Subtract(b, excluded)...)
	}
	return out
}

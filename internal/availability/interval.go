package availability

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Valid() bool {
	return iv.End.After(iv.Start)
}

// Overlaps reports whether two half-open intervals intersect. An interval
// ending exactly when another begins does not conflict, so back-to-back
// bookings are always allowed.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.Before(o.End) && o.Start.Before(iv.End)
}

// Contains reports whether o lies entirely within iv.
func (iv Interval) Contains(o Interval) bool {
	return !o.Start.Before(iv.Start) && !o.End.After(iv.End)
}

// FirstOverlap returns the first busy interval that overlaps [start, start+d)
// and whether any does. Busy intervals may be in any order.
func FirstOverlap(start time.Time, d time.Duration, busy []Interval) (Interval, bool) {
	candidate := Interval{Start: start, End: start.Add(d)}
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return b, true
		}
	}
	return Interval{}, false
}

// SlotStarts walks a provider window and returns start times where a booking
// of length duration fits without overlapping any busy interval.
//
// The cursor starts at window.Start. An accepted candidate advances the
// cursor by duration+buffer, so consecutive slots for the same provider are
// separated by at least the buffer. A rejected candidate advances the cursor
// to the end of the latest blocking interval plus buffer, which keeps the
// walk linear in the number of busy intervals rather than search-based.
// Candidates starting before now are skipped; pass a zero now to disable
// the past filter. All times are expected to share one location.
func SlotStarts(window Interval, duration, buffer time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || !window.Valid() {
		return nil
	}

	var starts []time.Time
	cursor := window.Start
	for !cursor.Add(duration).After(window.End) {
		if !now.IsZero() && cursor.Before(now) {
			cursor = cursor.Add(duration + buffer)
			continue
		}

		blocker, blocked := FirstOverlap(cursor, duration, busy)
		if !blocked {
			starts = append(starts, cursor)
			cursor = cursor.Add(duration + buffer)
			continue
		}

		// Resume after every interval blocking this candidate; more than one
		// can overlap it.
		next := blocker.End
		for {
			b, ok := FirstOverlap(next, duration, busy)
			if !ok || !b.End.After(next) {
				break
			}
			next = b.End
		}
		cursor = next.Add(buffer)
	}
	return starts
}

package ics

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "calnotes/internal/log"
	"calnotes/internal/model"
	"calnotes/internal/timezone"
)

// maxOccurrencesPerEvent caps rule iteration so a pathological or
// unbounded RRULE cannot stall a sync cycle.
const maxOccurrencesPerEvent = 2000

// overrideSlop is the absolute-time tolerance when matching a generated
// instant against a RECURRENCE-ID. Calibrated against observed feed
// quirks; best-effort, not a guarantee.
const overrideSlop = 60 * time.Second

// overrideRef records one override instance's original scheduled instant in
// both representations the comparison tiers need: the floating wall fields
// pinned to UTC, and the fully resolved instant.
type overrideRef struct {
	wall     time.Time
	resolved time.Time
}

// Expand turns decoded events into concrete occurrences inside
// [windowStart, windowEnd). Recurring rules are iterated from the series'
// own start, overridden instants are suppressed (the override surfaces as
// its own occurrence), and every start/end goes through the timezone
// resolver.
func Expand(events []RawEvent, res *timezone.Resolver, windowStart, windowEnd time.Time) []model.Occurrence {
	overrides := buildOverrideIndex(events, res)

	occs := make([]model.Occurrence, 0, len(events))
	for i := range events {
		ev := &events[i]
		switch {
		case ev.IsOverride():
			occs = appendInWindow(occs, expandOverride(ev, res), windowStart, windowEnd)
		case ev.RawRRule == "":
			occs = appendInWindow(occs, expandSingle(ev, res), windowStart, windowEnd)
		default:
			occs = append(occs, expandRecurring(ev, res, overrides[ev.UID], windowStart, windowEnd)...)
		}
	}
	return occs
}

// buildOverrideIndex scans every decoded event once and registers each
// override against its series UID.
func buildOverrideIndex(events []RawEvent, res *timezone.Resolver) map[string][]overrideRef {
	idx := make(map[string][]overrideRef)
	for i := range events {
		ev := &events[i]
		if !ev.IsOverride() {
			continue
		}
		rid := *ev.RecurrenceID
		idx[ev.UID] = append(idx[ev.UID], overrideRef{
			wall:     wallInstant(rid.WC),
			resolved: res.Resolve(rid.WC, rid.TZID),
		})
	}
	return idx
}

func expandSingle(ev *RawEvent, res *timezone.Resolver) model.Occurrence {
	start, end := resolveSpan(ev, res)
	return makeOccurrence(ev, start, end, ev.UID)
}

// expandOverride emits an override as a standalone occurrence. Its stable
// id is built from the *original* scheduled instant (the RECURRENCE-ID),
// not the possibly rescheduled start, so a moved instance keeps matching
// the note that mirrors it.
func expandOverride(ev *RawEvent, res *timezone.Resolver) model.Occurrence {
	start, end := resolveSpan(ev, res)
	rid := *ev.RecurrenceID
	orig := res.Resolve(rid.WC, rid.TZID)
	return makeOccurrence(ev, start, end, model.StableID(ev.UID, orig))
}

func expandRecurring(ev *RawEvent, res *timezone.Resolver, refs []overrideRef, windowStart, windowEnd time.Time) []model.Occurrence {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("unparseable RRULE, series skipped", err,
			"uid", ev.UID, "rrule", ev.RawRRule)
		return nil
	}

	// Iterate in floating wall-clock space: a 09:00 weekly meeting stays at
	// 09:00 across a DST change, and each generated instant is resolved
	// through the zone chain afterwards.
	wallStart := wallInstant(ev.Start.WC)
	r.DTStart(wallStart)

	start, end := resolveSpan(ev, res)
	dur := end.Sub(start)

	exclusions := make([]overrideRef, 0, len(ev.ExDates))
	for _, ex := range ev.ExDates {
		exclusions = append(exclusions, overrideRef{
			wall:     wallInstant(ex.WC),
			resolved: res.Resolve(ex.WC, ex.TZID),
		})
	}

	var out []model.Occurrence
	next := r.Iterator()
	for count := 0; ; count++ {
		if count >= maxOccurrencesPerEvent {
			appLog.Warn("recurrence expansion truncated at cap",
				"uid", ev.UID, "cap", maxOccurrencesPerEvent)
			break
		}
		wall, ok := next()
		if !ok {
			break
		}

		wc := wallClockAt(ev.Start.WC, wall)
		occStart := res.Resolve(wc, ev.Start.TZID)
		if !occStart.Before(windowEnd) {
			break
		}
		if matchesOverride(wall, occStart, exclusions) {
			// EXDATE-excluded instant.
			continue
		}
		if matchesOverride(wall, occStart, refs) {
			// Superseded; the override is emitted separately.
			continue
		}
		occEnd := occStart.Add(dur)
		if occEnd.Before(windowStart) {
			continue
		}
		out = append(out, makeOccurrence(ev, occStart, occEnd, model.StableID(ev.UID, occStart)))
	}
	return out
}

// matchesOverride tests a generated instant against a set of recorded
// original instants (override index or EXDATE exclusions).
// Four ordered tiers tolerate zone-representation drift between the rule
// generator's floating output and the override's recorded instant: exact
// equality, 60-second absolute tolerance, equal UTC day/hour/minute, and
// finally equal UTC day/hour.
func matchesOverride(wall, resolved time.Time, refs []overrideRef) bool {
	for _, ref := range refs {
		if wall.Equal(ref.wall) || resolved.Equal(ref.resolved) {
			return true
		}
		if absDuration(resolved.Sub(ref.resolved)) <= overrideSlop {
			return true
		}
		a, b := resolved.UTC(), ref.resolved.UTC()
		if a.Day() == b.Day() && a.Hour() == b.Hour() && a.Minute() == b.Minute() {
			return true
		}
		if a.Day() == b.Day() && a.Hour() == b.Hour() {
			return true
		}
	}
	return false
}

// resolveSpan resolves an event's start and end, defaulting a missing end
// to the start (or a full day for all-day events) and clamping inverted
// spans.
func resolveSpan(ev *RawEvent, res *timezone.Resolver) (time.Time, time.Time) {
	start := res.Resolve(ev.Start.WC, ev.Start.TZID)

	var end time.Time
	switch {
	case ev.HasEnd:
		end = res.Resolve(ev.End.WC, ev.End.TZID)
	case ev.Start.WC.DateOnly:
		end = start.Add(24 * time.Hour)
	default:
		end = start
	}
	if end.Before(start) {
		end = start
	}
	return start, end
}

func makeOccurrence(ev *RawEvent, start, end time.Time, stableID string) model.Occurrence {
	return model.Occurrence{
		StableID:    stableID,
		SeriesUID:   ev.UID,
		Title:       ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Organizer:   ev.Organizer,
		Attendees:   ev.Attendees,
		URL:         ev.URL,
		Start:       start,
		End:         end,
		AllDay:      ev.Start.WC.DateOnly,
		Cancelled:   ev.Cancelled,
		SourceURL:   ev.Source.URL,
		SourceTag:   ev.Source.Tag,
	}
}

func appendInWindow(occs []model.Occurrence, occ model.Occurrence, windowStart, windowEnd time.Time) []model.Occurrence {
	if occ.End.Before(windowStart) || !occ.Start.Before(windowEnd) {
		return occs
	}
	return append(occs, occ)
}

// wallInstant pins floating wall-clock fields to UTC so rule iteration has
// a concrete carrier without committing to a zone.
func wallInstant(wc timezone.WallClock) time.Time {
	return time.Date(wc.Year, wc.Month, wc.Day, wc.Hour, wc.Minute, wc.Second, 0, time.UTC)
}

// wallClockAt rebuilds a WallClock from a generated instant, carrying over
// the original value's date-only flag and pre-resolved location.
func wallClockAt(base timezone.WallClock, t time.Time) timezone.WallClock {
	return timezone.WallClock{
		Year:     t.Year(),
		Month:    t.Month(),
		Day:      t.Day(),
		Hour:     t.Hour(),
		Minute:   t.Minute(),
		Second:   t.Second(),
		DateOnly: base.DateOnly,
		Loc:      base.Loc,
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

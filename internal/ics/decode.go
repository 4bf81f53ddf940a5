package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "calnotes/internal/log"
	"calnotes/internal/timezone"
)

// Source identifies one configured calendar feed.
type Source struct {
	// ID is the internal identifier from configuration.
	ID string
	// URL is the feed endpoint.
	URL string
	// Tag is the per-feed frontmatter tag, if configured.
	Tag string
}

// TemporalValue is a start/end/recurrence-id value as read off the wire: a
// floating wall-clock plus whatever TZID parameter accompanied it. All zone
// interpretation is deferred to the timezone resolver.
type TemporalValue struct {
	WC   timezone.WallClock
	TZID string
}

// RawEvent is one decoded VEVENT before recurrence expansion.
type RawEvent struct {
	Source Source

	UID         string
	Summary     string
	Description string
	Location    string
	Organizer   string
	Attendees   []string
	URL         string

	Cancelled bool

	Start TemporalValue
	End   TemporalValue
	// HasEnd is false when the component carried no DTEND.
	HasEnd bool

	RawRRule string

	// ExDates are instants excluded from the recurrence set (EXDATE).
	ExDates []TemporalValue

	// RecurrenceID is non-nil when this VEVENT overrides one instance of a
	// recurring series.
	RecurrenceID *TemporalValue
}

// IsOverride reports whether the event replaces a single recurring
// instance.
func (e *RawEvent) IsOverride() bool {
	return e.RecurrenceID != nil
}

// Decode parses a raw feed body into RawEvents. It never returns an error:
// a body without a calendar envelope yields an empty slice, and individual
// malformed events are skipped without discarding the rest of the feed.
func Decode(src Source, body []byte) []RawEvent {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(strings.ToUpper(trimmed), "<!DOCTYPE") ||
		strings.HasPrefix(strings.ToUpper(trimmed), "<HTML") {
		appLog.Warn("feed returned HTML instead of calendar data, skipping",
			"id", src.ID, "url", redactURL(src.URL))
		return nil
	}
	if !strings.HasPrefix(trimmed, "BEGIN:VCALENDAR") {
		appLog.Warn("feed body has no calendar envelope, skipping",
			"id", src.ID, "url", redactURL(src.URL))
		return nil
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("calendar parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil
	}

	events := make([]RawEvent, 0, len(cal.Events()))
	for _, comp := range cal.Events() {
		ev, perr := decodeVEvent(src, comp)
		if perr != nil {
			// Log and skip this event, but keep decoding others.
			appLog.Error("vevent decode failed", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("feed decoded", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events
}

func decodeVEvent(src Source, ve *ical.VEvent) (RawEvent, error) {
	var out RawEvent
	out.Source = src

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	out.Summary = "Untitled Event"
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil && p.Value != "" {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		out.URL = p.Value
	}

	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil {
		out.Organizer = personName(p)
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		if name := personName(p); name != "" {
			out.Attendees = append(out.Attendees, name)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		// Both RFC and colloquial spellings appear in the wild.
		switch strings.ToUpper(strings.TrimSpace(p.Value)) {
		case "CANCELLED", "CANCELED":
			out.Cancelled = true
		}
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return out, errors.New("missing DTSTART")
	}
	start, err := decodeTemporal(startProp)
	if err != nil {
		return out, err
	}
	out.Start = start

	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
		end, eerr := decodeTemporal(endProp)
		if eerr == nil {
			out.End = end
			out.HasEnd = true
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	// EXDATE values may be comma-separated lists; a bad token drops only
	// that exclusion.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, raw := range strings.Split(p.Value, ",") {
			if ex, xerr := decodeTemporalText(raw, p.ICalParameters); xerr == nil {
				out.ExDates = append(out.ExDates, ex)
			}
		}
	}

	// RECURRENCE-ID marks an override for one instance of a series.
	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if rid, rerr := decodeTemporal(p); rerr == nil {
			out.RecurrenceID = &rid
		}
	}

	return out, nil
}

// personName extracts a display name from an ORGANIZER/ATTENDEE property:
// the CN parameter when present, otherwise the value with any mailto:
// scheme stripped.
func personName(p *ical.IANAProperty) string {
	if cns, ok := p.ICalParameters["CN"]; ok && len(cns) > 0 && strings.TrimSpace(cns[0]) != "" {
		return strings.Trim(strings.TrimSpace(cns[0]), `"`)
	}
	v := strings.TrimSpace(p.Value)
	v = strings.TrimPrefix(v, "mailto:")
	v = strings.TrimPrefix(v, "MAILTO:")
	return v
}

// decodeTemporal reads a date/date-time property into a floating wall-clock
// value plus its TZID parameter.
//
// The value is parsed from the raw text even when a TZID is present: the
// upstream library resolves TZID parameters that have no VTIMEZONE block
// against host-local rules, silently producing wrong instants for feeds
// from mailers that never embed VTIMEZONE. Forcing floating here defers
// every zone decision to the resolver's fallback chain.
func decodeTemporal(p *ical.IANAProperty) (TemporalValue, error) {
	return decodeTemporalText(p.Value, p.ICalParameters)
}

func decodeTemporalText(raw string, params map[string][]string) (TemporalValue, error) {
	var out TemporalValue

	if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
		out.TZID = tzs[0]
	}

	v := strings.TrimSpace(raw)
	if v == "" {
		return out, errors.New("empty temporal value")
	}

	dateOnly := false
	if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		dateOnly = true
	}
	if !strings.Contains(v, "T") {
		dateOnly = true
	}

	if dateOnly {
		t, err := time.Parse("20060102", v)
		if err != nil {
			return out, err
		}
		out.WC = timezone.WallClock{
			Year:     t.Year(),
			Month:    t.Month(),
			Day:      t.Day(),
			DateOnly: true,
		}
		return out, nil
	}

	var loc *time.Location
	layout := "20060102T150405"
	if strings.HasSuffix(v, "Z") {
		layout = "20060102T150405Z"
		loc = time.UTC
	}
	t, err := time.Parse(layout, v)
	if err != nil {
		return out, err
	}
	out.WC = timezone.WallClock{
		Year:   t.Year(),
		Month:  t.Month(),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
		Loc:    loc,
	}
	return out, nil
}

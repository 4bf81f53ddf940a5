package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSource = Source{ID: "work", URL: "https://calendar.example.com/feed.ics", Tag: "work"}

func wrapCalendar(events ...string) []byte {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n")
	for _, ev := range events {
		b.WriteString("BEGIN:VEVENT\r\n")
		b.WriteString(ev)
		b.WriteString("END:VEVENT\r\n")
	}
	b.WriteString("END:VCALENDAR\r\n")
	return []byte(b.String())
}

func TestDecodeRejectsNonCalendarBodies(t *testing.T) {
	assert.Empty(t, Decode(testSource, []byte("<!DOCTYPE html><html>login page</html>")))
	assert.Empty(t, Decode(testSource, []byte("just some text")))
	assert.Empty(t, Decode(testSource, nil))
}

func TestDecodeBasicEvent(t *testing.T) {
	body := wrapCalendar(strings.Join([]string{
		"UID:abc123",
		"SUMMARY:Team Standup",
		"DESCRIPTION:Daily check-in",
		"LOCATION:Room 4",
		"URL:https://meet.example.com/standup",
		"DTSTART:20240115T090000Z",
		"DTEND:20240115T093000Z",
		"",
	}, "\r\n"))

	events := Decode(testSource, body)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "abc123", ev.UID)
	assert.Equal(t, "Team Standup", ev.Summary)
	assert.Equal(t, "Daily check-in", ev.Description)
	assert.Equal(t, "Room 4", ev.Location)
	assert.Equal(t, "https://meet.example.com/standup", ev.URL)
	assert.False(t, ev.Cancelled)
	assert.True(t, ev.HasEnd)
	assert.False(t, ev.IsOverride())

	// A trailing Z pre-resolves the wall clock to UTC.
	assert.Equal(t, time.UTC, ev.Start.WC.Loc)
	assert.Equal(t, 9, ev.Start.WC.Hour)
	assert.Equal(t, "", ev.Start.TZID)
}

func TestDecodeDefaultsUntitled(t *testing.T) {
	body := wrapCalendar("UID:no-title\r\nDTSTART:20240115T090000Z\r\n")
	events := Decode(testSource, body)
	require.Len(t, events, 1)
	assert.Equal(t, "Untitled Event", events[0].Summary)
}

func TestDecodeSkipsEventWithoutUID(t *testing.T) {
	body := wrapCalendar(
		"SUMMARY:No Id Here\r\nDTSTART:20240115T090000Z\r\n",
		"UID:good\r\nSUMMARY:Kept\r\nDTSTART:20240115T100000Z\r\n",
	)
	events := Decode(testSource, body)
	require.Len(t, events, 1)
	assert.Equal(t, "good", events[0].UID)
}

func TestDecodeCancelledSpellings(t *testing.T) {
	body := wrapCalendar(
		"UID:a\r\nSUMMARY:RFC spelling\r\nSTATUS:CANCELLED\r\nDTSTART:20240115T090000Z\r\n",
		"UID:b\r\nSUMMARY:US spelling\r\nSTATUS:canceled\r\nDTSTART:20240115T090000Z\r\n",
		"UID:c\r\nSUMMARY:Confirmed\r\nSTATUS:CONFIRMED\r\nDTSTART:20240115T090000Z\r\n",
	)
	events := Decode(testSource, body)
	require.Len(t, events, 3)
	assert.True(t, events[0].Cancelled)
	assert.True(t, events[1].Cancelled)
	assert.False(t, events[2].Cancelled)
}

func TestDecodeOrganizerAndAttendees(t *testing.T) {
	body := wrapCalendar(strings.Join([]string{
		"UID:people",
		"SUMMARY:Planning",
		`ORGANIZER;CN=Ada Lovelace:mailto:ada@example.com`,
		`ATTENDEE;CN=Grace Hopper:mailto:grace@example.com`,
		"ATTENDEE:mailto:anon@example.com",
		"ATTENDEE:MAILTO:caps@example.com",
		"DTSTART:20240115T090000Z",
		"",
	}, "\r\n"))

	events := Decode(testSource, body)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "Ada Lovelace", ev.Organizer)
	// CN preferred, mailto: stripped, order preserved.
	assert.Equal(t, []string{"Grace Hopper", "anon@example.com", "caps@example.com"}, ev.Attendees)
}

func TestDecodeForcesFloatingForTZID(t *testing.T) {
	// TZID with no VTIMEZONE block: the raw fields must come through as a
	// floating wall clock with the zone id attached, not as an instant the
	// library resolved against host rules.
	body := wrapCalendar(strings.Join([]string{
		"UID:tzid-event",
		"SUMMARY:Offsite",
		"DTSTART;TZID=Central Standard Time:20231027T081500",
		"DTEND;TZID=Central Standard Time:20231027T091500",
		"",
	}, "\r\n"))

	events := Decode(testSource, body)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Nil(t, ev.Start.WC.Loc, "explicitly-zoned value must be forced floating")
	assert.Equal(t, "Central Standard Time", ev.Start.TZID)
	assert.Equal(t, 2023, ev.Start.WC.Year)
	assert.Equal(t, time.October, ev.Start.WC.Month)
	assert.Equal(t, 27, ev.Start.WC.Day)
	assert.Equal(t, 8, ev.Start.WC.Hour)
	assert.Equal(t, 15, ev.Start.WC.Minute)
	assert.Equal(t, "Central Standard Time", ev.End.TZID)
}

func TestDecodeAllDay(t *testing.T) {
	body := wrapCalendar(
		"UID:allday1\r\nSUMMARY:Holiday\r\nDTSTART;VALUE=DATE:20240401\r\nDTEND;VALUE=DATE:20240402\r\n",
	)
	events := Decode(testSource, body)
	require.Len(t, events, 1)
	assert.True(t, events[0].Start.WC.DateOnly)
	assert.Equal(t, 2024, events[0].Start.WC.Year)
	assert.Equal(t, time.April, events[0].Start.WC.Month)
	assert.Equal(t, 1, events[0].Start.WC.Day)
}

func TestDecodeRecurrenceFields(t *testing.T) {
	body := wrapCalendar(
		strings.Join([]string{
			"UID:series",
			"SUMMARY:Weekly",
			"DTSTART:20240101T100000Z",
			"DTEND:20240101T110000Z",
			"RRULE:FREQ=WEEKLY;COUNT=4",
			"",
		}, "\r\n"),
		strings.Join([]string{
			"UID:series",
			"SUMMARY:Weekly (moved)",
			"DTSTART:20240108T140000Z",
			"DTEND:20240108T150000Z",
			"RECURRENCE-ID:20240108T100000Z",
			"",
		}, "\r\n"),
	)

	events := Decode(testSource, body)
	require.Len(t, events, 2)

	assert.Equal(t, "FREQ=WEEKLY;COUNT=4", events[0].RawRRule)
	assert.False(t, events[0].IsOverride())

	require.True(t, events[1].IsOverride())
	assert.Equal(t, 10, events[1].RecurrenceID.WC.Hour)
}

func TestRewriteWebcal(t *testing.T) {
	assert.Equal(t, "https://example.com/cal.ics", rewriteWebcal("webcal://example.com/cal.ics"))
	assert.Equal(t, "https://example.com/cal.ics", rewriteWebcal("https://example.com/cal.ics"))
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)",
		redactURL("https://example.com/private/feed.ics?token=s3cret"))
}

func TestDecodeExdates(t *testing.T) {
	body := wrapCalendar(strings.Join([]string{
		"UID:weekly",
		"SUMMARY:Sync",
		"DTSTART;TZID=America/Chicago:20240101T090000",
		"RRULE:FREQ=WEEKLY",
		"EXDATE;TZID=America/Chicago:20240108T090000,20240115T090000",
		"EXDATE:20240122T150000Z",
		"",
	}, "\r\n"))

	events := Decode(testSource, body)
	require.Len(t, events, 1)

	ex := events[0].ExDates
	require.Len(t, ex, 3)
	assert.Equal(t, "America/Chicago", ex[0].TZID)
	assert.Equal(t, 8, ex[0].WC.Day)
	assert.Equal(t, "America/Chicago", ex[1].TZID)
	assert.Equal(t, 15, ex[1].WC.Day)
	assert.Equal(t, "", ex[2].TZID)
	assert.Equal(t, time.UTC, ex[2].WC.Loc)
	assert.Equal(t, 22, ex[2].WC.Day)
}

package model

import (
	"strconv"
	"strings"
	"time"
)

// Occurrence represents a single concrete instance of a remote calendar
// event (after recurrence expansion and timezone resolution). Occurrences
// are rebuilt from scratch on every decode pass and never mutated.
type Occurrence struct {
	// StableID identifies this occurrence across reschedules. For a
	// non-recurring event it equals SeriesUID; for a recurring instance or
	// an override it is SeriesUID + "-" + the original scheduled start in
	// Unix milliseconds.
	StableID string

	// SeriesUID is the iCalendar UID shared by every instance of a series.
	SeriesUID string

	Title       string
	Description string
	Location    string
	Organizer   string
	Attendees   []string
	URL         string

	// Start / End are resolved UTC instants. Start <= End.
	Start time.Time
	End   time.Time

	AllDay    bool
	Cancelled bool

	// SourceURL is the feed this occurrence was decoded from.
	SourceURL string
	// SourceTag is the per-feed tag from configuration, if any.
	SourceTag string
}

// StableID composes the persisted identity for an occurrence of a series.
// origStart must be the occurrence's original scheduled instant, not a
// rescheduled one, so a moved instance keeps its id.
func StableID(seriesUID string, origStart time.Time) string {
	return seriesUID + "-" + strconv.FormatInt(origStart.UnixMilli(), 10)
}

// NoteRecord is one entry of the local note index, rebuilt on every sync
// cycle from note frontmatter and discarded after reconciliation.
type NoteRecord struct {
	Path string

	// RemoteID is the stable id recorded in the note's frontmatter, empty
	// for notes that do not mirror a remote event.
	RemoteID string

	// SeriesUID is RemoteID with any trailing "-<millis>" instance suffix
	// stripped.
	SeriesUID string

	// Start is the note's recorded start instant; zero when the frontmatter
	// carries none or it could not be parsed.
	Start time.Time
}

// InstanceOffset returns the recurrence instant encoded in the record's
// remote id, or false when the id has no numeric instance suffix.
func (r NoteRecord) InstanceOffset() (time.Time, bool) {
	return InstanceOffset(r.RemoteID)
}

// SeriesUID strips a trailing "-<digits>" instance suffix from a remote id.
// The suffix is removed only when it is purely numeric, so ids that merely
// contain hyphens survive intact.
func SeriesUID(remoteID string) string {
	i := strings.LastIndex(remoteID, "-")
	if i <= 0 || i == len(remoteID)-1 {
		return remoteID
	}
	suffix := remoteID[i+1:]
	if _, err := strconv.ParseInt(suffix, 10, 64); err != nil {
		return remoteID
	}
	return remoteID[:i]
}

// InstanceOffset extracts the original scheduled instant from a
// series-qualified stable id, or false for plain ids.
func InstanceOffset(remoteID string) (time.Time, bool) {
	i := strings.LastIndex(remoteID, "-")
	if i <= 0 || i == len(remoteID)-1 {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(remoteID[i+1:], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// Action is the reconciliation outcome for one occurrence or orphan note.
type Action string

const (
	ActionNone   Action = "none"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// MatchResult pairs one remote occurrence with at most one local note and
// the action that reconciles them. Delete results produced by the orphan
// pass carry a nil Occurrence.
type MatchResult struct {
	Action     Action
	Occurrence *Occurrence
	Note       *NoteRecord

	// TargetPath is the collision-safe canonical path: for creates, where
	// the new note goes; for updates, non-empty only when the existing
	// file no longer matches the canonical "<title> <date>" name and
	// should be renamed.
	TargetPath string
}

// PendingEdit is a short-lived override recorded after a user moved or
// resized an event locally, consulted to suppress flicker until the edit
// is confirmed persisted or times out.
type PendingEdit struct {
	Path      string
	Start     time.Time
	End       time.Time
	CreatedAt time.Time
}

package vault

import (
	"time"

	appLog "calnotes/internal/log"
	"calnotes/internal/model"
)

// startLayouts are the accepted spellings of the start-time frontmatter
// value, tried in order.
var startLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// BuildIndex scans the vault and builds the note index for one sync cycle:
// one record per note carrying a remote-identity marker. The index is a
// snapshot; it is never refreshed mid-cycle.
func BuildIndex(store *Store, startKey string) ([]model.NoteRecord, error) {
	paths, err := store.ListNotes()
	if err != nil {
		return nil, err
	}

	records := make([]model.NoteRecord, 0, len(paths))
	for _, path := range paths {
		fm, _, rerr := store.ReadNote(path)
		if rerr != nil {
			appLog.Warn("note unreadable, excluded from index", "path", path, "err", rerr)
			continue
		}
		remoteID, _ := fm[KeyRemoteID].(string)
		if remoteID == "" {
			continue
		}
		rec := model.NoteRecord{
			Path:      path,
			RemoteID:  remoteID,
			SeriesUID: model.SeriesUID(remoteID),
		}
		if raw, ok := fm[startKey]; ok {
			rec.Start = parseStart(raw)
		}
		records = append(records, rec)
	}
	return records, nil
}

// parseStart accepts the value shapes frontmatter editors produce: strings
// in several layouts, or an already-typed time (yaml date scalars decode to
// time.Time).
func parseStart(raw any) time.Time {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC()
	case string:
		for _, layout := range startLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

// FormatStart renders a start instant the way the index parses it back.
func FormatStart(t time.Time, allDay bool) string {
	if allDay {
		return t.UTC().Format("2006-01-02")
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

// FormatEnd renders either an end timestamp or a duration in minutes,
// depending on the configured mode.
func FormatEnd(start, end time.Time, useDuration bool) any {
	if useDuration {
		return int(end.Sub(start) / time.Minute)
	}
	return end.UTC().Format("2006-01-02 15:04:05")
}

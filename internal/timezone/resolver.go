// Package timezone converts floating wall-clock values from calendar feeds
// into UTC instants. Feeds frequently carry vendor timezone names (Outlook
// writes "Central Standard Time", not "America/Chicago") or TZID parameters
// with no VTIMEZONE block, so resolution walks an ordered list of fallback
// strategies and never fails outright.
package timezone

import (
	"fmt"
	"time"
	_ "time/tzdata"

	appLog "calnotes/internal/log"
)

// WallClock is a timezone-free date/time as read from a feed property.
type WallClock struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int

	// DateOnly marks an all-day value (VALUE=DATE); the time fields are
	// zero and no zone conversion applies.
	DateOnly bool

	// Loc is non-nil when the value was already resolved to a concrete
	// zone at decode time (a trailing Z, for instance). Floating values
	// leave it nil.
	Loc *time.Location
}

// Tier names the strategy that produced a resolution, mostly for tests and
// debug logging.
type Tier string

const (
	TierDateOnly  Tier = "date-only"
	TierResolved  Tier = "pre-resolved"
	TierZoneRules Tier = "zone-rules"
	TierManual    Tier = "manual-offset"
	TierHostLocal Tier = "host-local"
)

// windowsToIANA maps common vendor timezone display names to IANA
// identifiers. Outlook and Exchange emit these in TZID parameters.
var windowsToIANA = map[string]string{
	"Pacific Standard Time":          "America/Los_Angeles",
	"Mountain Standard Time":         "America/Denver",
	"Central Standard Time":          "America/Chicago",
	"Eastern Standard Time":          "America/New_York",
	"Atlantic Standard Time":         "America/Halifax",
	"Alaskan Standard Time":          "America/Anchorage",
	"Hawaiian Standard Time":         "Pacific/Honolulu",
	"GMT Standard Time":              "Europe/London",
	"Greenwich Standard Time":        "Atlantic/Reykjavik",
	"W. Europe Standard Time":        "Europe/Berlin",
	"Central Europe Standard Time":   "Europe/Budapest",
	"Central European Standard Time": "Europe/Warsaw",
	"Romance Standard Time":          "Europe/Paris",
	"China Standard Time":            "Asia/Shanghai",
	"Tokyo Standard Time":            "Asia/Tokyo",
	"India Standard Time":            "Asia/Kolkata",
	"AUS Eastern Standard Time":      "Australia/Sydney",
	"New Zealand Standard Time":      "Pacific/Auckland",
}

// Canonical maps a vendor display name to its IANA identifier, returning
// the input unchanged when no alias is known.
func Canonical(zoneID string) string {
	if iana, ok := windowsToIANA[zoneID]; ok {
		return iana
	}
	return zoneID
}

// strategy is one resolution tier: a pure function that either produces a
// UTC instant or reports unresolved.
type strategy struct {
	tier Tier
	fn   func(wc WallClock, zoneID string) (time.Time, bool)
}

// Resolver turns wall-clock values into UTC instants via an ordered
// strategy list. The zero value is not usable; call New.
type Resolver struct {
	strategies []strategy
}

func New() *Resolver {
	r := &Resolver{}
	r.strategies = []strategy{
		{TierDateOnly, resolveDateOnly},
		{TierResolved, resolvePreResolved},
		{TierZoneRules, resolveZoneRules},
		{TierManual, resolveManualOffset},
		{TierHostLocal, resolveHostLocal},
	}
	return r
}

// Resolve computes the UTC instant for wc, consulting zoneID when the value
// is floating. It never fails: the final tier interprets the fields as
// host-local time, which is lossy but always succeeds.
func (r *Resolver) Resolve(wc WallClock, zoneID string) time.Time {
	t, _ := r.ResolveTier(wc, zoneID)
	return t
}

// ResolveTier is Resolve plus the tier that produced the result.
func (r *Resolver) ResolveTier(wc WallClock, zoneID string) (time.Time, Tier) {
	for _, s := range r.strategies {
		if t, ok := s.fn(wc, zoneID); ok {
			return t, s.tier
		}
	}
	// Unreachable: the host-local tier always resolves.
	return time.Time{}, TierHostLocal
}

// resolveDateOnly handles all-day markers: a plain calendar date with no
// zone conversion at all.
func resolveDateOnly(wc WallClock, _ string) (time.Time, bool) {
	if !wc.DateOnly {
		return time.Time{}, false
	}
	return time.Date(wc.Year, wc.Month, wc.Day, 0, 0, 0, 0, time.UTC), true
}

// resolvePreResolved trusts a value the decoder already pinned to a zone,
// unless an explicit override zone was supplied alongside it.
func resolvePreResolved(wc WallClock, zoneID string) (time.Time, bool) {
	if wc.Loc == nil || zoneID != "" {
		return time.Time{}, false
	}
	t := time.Date(wc.Year, wc.Month, wc.Day, wc.Hour, wc.Minute, wc.Second, 0, wc.Loc)
	return t.UTC(), true
}

// resolveZoneRules applies the alias table and the timezone rules database.
// This is the tier that gets DST right: the wall-clock fields are taken as
// local time in the canonical zone, with historical/seasonal rules applied.
func resolveZoneRules(wc WallClock, zoneID string) (time.Time, bool) {
	if zoneID == "" {
		return time.Time{}, false
	}
	loc, err := time.LoadLocation(Canonical(zoneID))
	if err != nil {
		appLog.WarnOnce("tz-rules:"+zoneID,
			"timezone not in rules database, degrading", "zone", zoneID)
		return time.Time{}, false
	}
	t := time.Date(wc.Year, wc.Month, wc.Day, wc.Hour, wc.Minute, wc.Second, 0, loc)
	return t.UTC(), true
}

// resolveManualOffset handles zone ids the rules database rejects but that
// encode a fixed offset, e.g. "UTC+09:00" or "GMT-0500". A trial instant is
// built from the fields at face value, formatted into the offset zone, and
// the displayed delta is applied in reverse to recover the intended
// instant. One iteration suffices for whole- and half-hour offsets.
func resolveManualOffset(wc WallClock, zoneID string) (time.Time, bool) {
	if zoneID == "" {
		return time.Time{}, false
	}
	loc, ok := fixedOffsetZone(zoneID)
	if !ok {
		appLog.WarnOnce("tz-manual:"+zoneID,
			"manual offset calculation failed, using host-local time", "zone", zoneID)
		return time.Time{}, false
	}

	trial := time.Date(wc.Year, wc.Month, wc.Day, wc.Hour, wc.Minute, wc.Second, 0, time.UTC)
	shown := trial.In(loc)
	delta := time.Date(shown.Year(), shown.Month(), shown.Day(),
		shown.Hour(), shown.Minute(), shown.Second(), 0, time.UTC).Sub(trial)
	return trial.Add(-delta), true
}

// resolveHostLocal is the last resort: interpret the fields as host-local
// time. Lossy, but resolution must never fail.
func resolveHostLocal(wc WallClock, _ string) (time.Time, bool) {
	t := time.Date(wc.Year, wc.Month, wc.Day, wc.Hour, wc.Minute, wc.Second, 0, time.Local)
	return t.UTC(), true
}

// fixedOffsetZone parses fixed-offset zone spellings such as "UTC+9",
// "UTC+09:00", "GMT-0500" into a fixed time.Location.
func fixedOffsetZone(zoneID string) (*time.Location, bool) {
	s := zoneID
	switch {
	case len(s) >= 3 && (s[:3] == "UTC" || s[:3] == "GMT"):
		s = s[3:]
	default:
		return nil, false
	}
	if s == "" {
		return time.UTC, true
	}

	sign := 1
	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return nil, false
	}
	s = s[1:]

	var hh, mm int
	switch len(s) {
	case 1, 2: // "9", "09"
		if _, err := fmt.Sscanf(s, "%d", &hh); err != nil {
			return nil, false
		}
	case 4: // "0930"
		if _, err := fmt.Sscanf(s, "%2d%2d", &hh, &mm); err != nil {
			return nil, false
		}
	case 5: // "09:30"
		if _, err := fmt.Sscanf(s, "%2d:%2d", &hh, &mm); err != nil {
			return nil, false
		}
	default:
		return nil, false
	}
	if hh > 14 || mm > 59 {
		return nil, false
	}

	offset := sign * (hh*3600 + mm*60)
	return time.FixedZone(zoneID, offset), true
}

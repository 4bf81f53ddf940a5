// Package reconcile is the identity matching engine: given the remote
// occurrences of one sync window and the local note index, it decides per
// occurrence whether to create, update, delete or leave a note alone. It
// is a pure decision layer; all file I/O happens in the caller.
package reconcile

import (
	"fmt"
	"path"
	"strings"
	"time"

	appLog "calnotes/internal/log"
	"calnotes/internal/model"
)

// fuzzyOffsetTolerance is how far apart a note's recorded instance offset
// and an occurrence's offset may drift while still matching: a full DST
// hour plus slack. Calibrated against observed feed quirks; best-effort,
// not a guarantee.
const fuzzyOffsetTolerance = 65 * time.Minute

// Options configures one reconciliation pass.
type Options struct {
	// Hidden holds stable ids and series UIDs whose occurrences never
	// produce notes.
	Hidden map[string]struct{}

	// WindowStart/WindowEnd bound the orphan pass: notes outside the
	// window are never auto-deleted, so an old note does not vanish merely
	// because the feed window moved past it.
	WindowStart time.Time
	WindowEnd   time.Time

	// NotesFolder is where created notes go, vault-relative.
	NotesFolder string

	// TakenPaths is the set of every existing note path, used for
	// collision-safe naming.
	TakenPaths map[string]struct{}
}

// Reconcile matches occurrences against the note index and returns the
// action list, including the trailing orphan pass. The same snapshot in
// always yields the same action list out.
func Reconcile(occs []model.Occurrence, notes []model.NoteRecord, opts Options) []model.MatchResult {
	taken := make(map[string]struct{}, len(opts.TakenPaths))
	for p := range opts.TakenPaths {
		taken[p] = struct{}{}
	}

	// Unclaimed candidate pool. A note is consumed by its first match so
	// the pairing stays 1:1.
	unclaimed := make(map[string]*model.NoteRecord, len(notes))
	order := make([]string, 0, len(notes))
	for i := range notes {
		unclaimed[notes[i].Path] = &notes[i]
		order = append(order, notes[i].Path)
	}

	results := make([]model.MatchResult, 0, len(occs))
	for i := range occs {
		occ := &occs[i]
		note := claimMatch(occ, order, unclaimed)

		switch {
		case note != nil && occ.Cancelled:
			// Cancellation wins regardless of which tier matched.
			results = append(results, model.MatchResult{
				Action:     model.ActionDelete,
				Occurrence: occ,
				Note:       note,
			})

		case note != nil:
			res := model.MatchResult{
				Action:     model.ActionUpdate,
				Occurrence: occ,
				Note:       note,
			}
			if target := renameTarget(occ, note, taken); target != "" {
				res.TargetPath = target
				delete(taken, note.Path)
				taken[target] = struct{}{}
			}
			results = append(results, res)

		case occ.Cancelled:
			// Nothing local mirrors it; nothing to do.

		case hidden(occ, opts.Hidden):
			results = append(results, model.MatchResult{
				Action:     model.ActionNone,
				Occurrence: occ,
			})

		default:
			target := uniquePath(opts.NotesFolder, canonicalName(occ.Title, occ.Start), taken)
			taken[target] = struct{}{}
			results = append(results, model.MatchResult{
				Action:     model.ActionCreate,
				Occurrence: occ,
				TargetPath: target,
			})
		}
	}

	// Orphan pass: notes nobody claimed whose start falls inside the sync
	// window were deleted remotely.
	for _, p := range order {
		note, ok := unclaimed[p]
		if !ok {
			continue
		}
		if note.Start.IsZero() || note.Start.Before(opts.WindowStart) || !note.Start.Before(opts.WindowEnd) {
			continue
		}
		appLog.Debug("orphaned note inside window", "path", note.Path, "remote_id", note.RemoteID)
		results = append(results, model.MatchResult{
			Action: model.ActionDelete,
			Note:   note,
		})
	}

	return results
}

// claimMatch finds the note mirroring occ, removing it from the pool.
// Tiers: exact stable-id match first, then a fuzzy series-UID match that
// tolerates timezone-resolution drift. Candidates are considered in index
// order so a pass is deterministic.
func claimMatch(occ *model.Occurrence, order []string, unclaimed map[string]*model.NoteRecord) *model.NoteRecord {
	// Tier 1: exact id.
	for _, p := range order {
		note, ok := unclaimed[p]
		if !ok {
			continue
		}
		if note.RemoteID == occ.StableID {
			delete(unclaimed, note.Path)
			return note
		}
	}

	// Tier 2: fuzzy UID.
	var candidates []*model.NoteRecord
	for _, p := range order {
		note, ok := unclaimed[p]
		if !ok {
			continue
		}
		if note.SeriesUID == occ.SeriesUID {
			candidates = append(candidates, note)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	if occ.StableID == occ.SeriesUID {
		// Single (non-recurring) event: only an unambiguous candidate may
		// match. With several, prefer no match over corrupting the wrong
		// note.
		if len(candidates) == 1 {
			note := candidates[0]
			delete(unclaimed, note.Path)
			return note
		}
		return nil
	}

	// Recurring instance: compare the occurrence's original scheduled
	// instant against each candidate's recorded instance offset.
	occOffset, ok := model.InstanceOffset(occ.StableID)
	if !ok {
		return nil
	}

	var best *model.NoteRecord
	var bestDiff time.Duration
	for _, note := range candidates {
		noteOffset, ok := note.InstanceOffset()
		if !ok {
			continue
		}
		diff := occOffset.Sub(noteOffset)
		if diff < 0 {
			diff = -diff
		}
		if diff <= fuzzyOffsetTolerance && (best == nil || diff < bestDiff) {
			best = note
			bestDiff = diff
		}
	}
	if best == nil {
		// Fall back to exact UTC field comparison, which ignores
		// whole-hour zone ambiguity entirely.
		for _, note := range candidates {
			noteOffset, ok := note.InstanceOffset()
			if !ok {
				continue
			}
			a, b := occOffset.UTC(), noteOffset.UTC()
			if a.Day() == b.Day() && a.Hour() == b.Hour() && a.Minute() == b.Minute() {
				best = note
				break
			}
		}
	}
	if best == nil {
		return nil
	}
	delete(unclaimed, best.Path)
	return best
}

func hidden(occ *model.Occurrence, hiddenSet map[string]struct{}) bool {
	if len(hiddenSet) == 0 {
		return false
	}
	if _, ok := hiddenSet[occ.StableID]; ok {
		return true
	}
	_, ok := hiddenSet[occ.SeriesUID]
	return ok
}

// renameTarget returns the collision-safe canonical path for an updated
// note, or "" when its current name already carries the canonical prefix.
func renameTarget(occ *model.Occurrence, note *model.NoteRecord, taken map[string]struct{}) string {
	canonical := canonicalName(occ.Title, occ.Start)
	base := strings.TrimSuffix(path.Base(note.Path), ".md")
	if strings.HasPrefix(base, canonical) {
		return ""
	}
	dir := path.Dir(note.Path)
	if dir == "." {
		dir = ""
	}
	delete(taken, note.Path) // the note's own slot is free to reuse
	target := uniquePath(dir, canonical, taken)
	taken[note.Path] = struct{}{}
	return target
}

// canonicalName is "<sanitized title> <yyyy-mm-dd>".
func canonicalName(title string, start time.Time) string {
	return sanitizeTitle(title) + " " + start.UTC().Format("2006-01-02")
}

// sanitizeTitle strips characters that are invalid in note file names and
// collapses runs of whitespace.
func sanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '#', '^', '[', ']':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if out == "" {
		out = "Untitled Event"
	}
	return out
}

// uniquePath appends an incrementing numeric suffix until the path is
// unused.
func uniquePath(dir, name string, taken map[string]struct{}) string {
	join := func(n string) string {
		if dir == "" {
			return n + ".md"
		}
		return path.Join(dir, n+".md")
	}
	candidate := join(name)
	for i := 2; ; i++ {
		if _, exists := taken[candidate]; !exists {
			return candidate
		}
		candidate = join(fmt.Sprintf("%s %d", name, i))
	}
}

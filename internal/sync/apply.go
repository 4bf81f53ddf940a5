package sync

import (
	"fmt"
	"path"
	"strings"

	"calnotes/internal/config"
	appLog "calnotes/internal/log"
	"calnotes/internal/model"
	"calnotes/internal/vault"
)

// apply executes the action list sequentially against the note store.
// Failures are isolated per note: one bad write never aborts the batch,
// and the summary counts only actions that actually succeeded.
func (o *Orchestrator) apply(results []model.MatchResult) Summary {
	var sum Summary
	for _, res := range results {
		switch res.Action {
		case model.ActionCreate:
			if err := o.applyCreate(res); err != nil {
				appLog.Error("create failed", err, "path", res.TargetPath)
				continue
			}
			sum.Created++
		case model.ActionUpdate:
			if err := o.applyUpdate(res); err != nil {
				appLog.Error("update failed", err, "path", res.Note.Path)
				continue
			}
			sum.Updated++
		case model.ActionDelete:
			if err := o.applyDelete(res); err != nil {
				appLog.Error("delete failed", err, "path", res.Note.Path)
				continue
			}
			sum.Deleted++
		case model.ActionNone:
			// Hidden occurrence; nothing to do.
		}
	}
	return sum
}

func (o *Orchestrator) applyCreate(res model.MatchResult) error {
	occ := res.Occurrence
	if o.dryRun {
		appLog.Info("dry-run: would create note", "path", res.TargetPath, "id", occ.StableID)
		return nil
	}

	fm := vault.Frontmatter{
		vault.KeyRemoteID: occ.StableID,
		vault.KeyTitle:    occ.Title,
		o.cfg.StartKey:    vault.FormatStart(occ.Start, occ.AllDay),
		o.cfg.EndKey:      vault.FormatEnd(occ.Start, occ.End, o.cfg.UseDuration),
	}
	if occ.AllDay {
		fm[vault.KeyAllDay] = true
	}
	if occ.SourceTag != "" {
		fm[vault.KeyTags] = []string{occ.SourceTag}
	}
	return o.store.CreateNote(res.TargetPath, fm, noteBody(occ))
}

func (o *Orchestrator) applyUpdate(res model.MatchResult) error {
	occ, note := res.Occurrence, res.Note
	if o.dryRun {
		appLog.Info("dry-run: would update note", "path", note.Path, "id", occ.StableID)
		return nil
	}

	// Only mirrored fields are overwritten; a user's edits to anything
	// else in the frontmatter survive.
	err := o.store.UpdateFrontmatter(note.Path, func(fm vault.Frontmatter) {
		fm[vault.KeyRemoteID] = occ.StableID
		fm[vault.KeyTitle] = occ.Title
		fm[o.cfg.StartKey] = vault.FormatStart(occ.Start, occ.AllDay)
		fm[o.cfg.EndKey] = vault.FormatEnd(occ.Start, occ.End, o.cfg.UseDuration)
	})
	if err != nil {
		return err
	}

	if res.TargetPath != "" && res.TargetPath != note.Path {
		if err := o.store.Rename(note.Path, res.TargetPath); err != nil {
			return fmt.Errorf("renaming to canonical path: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) applyDelete(res model.MatchResult) error {
	note := res.Note
	if o.dryRun {
		appLog.Info("dry-run: would delete note", "path", note.Path, "policy", o.cfg.DeletePolicy)
		return nil
	}

	switch o.cfg.DeletePolicy {
	case config.DeletePolicyArchive:
		if err := o.store.EnsureFolder(o.cfg.ArchiveFolder); err != nil {
			return err
		}
		target := path.Join(o.cfg.ArchiveFolder, path.Base(note.Path))
		base := strings.TrimSuffix(path.Base(note.Path), ".md")
		for i := 2; o.store.Exists(target); i++ {
			target = path.Join(o.cfg.ArchiveFolder, fmt.Sprintf("%s %d.md", base, i))
		}
		return o.store.Rename(note.Path, target)

	case config.DeletePolicyMarkCancelled:
		return o.store.UpdateFrontmatter(note.Path, func(fm vault.Frontmatter) {
			fm[vault.KeyCancelled] = true
			fm[vault.KeyStatus] = "cancelled"
		})

	default:
		return o.store.Delete(note.Path)
	}
}

// noteBody renders the initial markdown content of a created meeting note.
func noteBody(occ *model.Occurrence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", occ.Title)
	if occ.Location != "" {
		fmt.Fprintf(&b, "\n**Location:** %s\n", occ.Location)
	}
	if occ.Organizer != "" {
		fmt.Fprintf(&b, "\n**Organizer:** %s\n", occ.Organizer)
	}
	if len(occ.Attendees) > 0 {
		b.WriteString("\n**Attendees:**\n")
		for _, a := range occ.Attendees {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}
	if occ.URL != "" {
		fmt.Fprintf(&b, "\n%s\n", occ.URL)
	}
	if occ.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", occ.Description)
	}
	return b.String()
}

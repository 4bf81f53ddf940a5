package vault

import (
	"sync"
	"time"

	"calnotes/internal/model"
)

const (
	// pendingEditTimeout bounds how long a user edit overrides freshly-read
	// note state before the index is trusted again.
	pendingEditTimeout = 5 * time.Second

	// pendingConfirmTolerance: once the persisted start is this close to
	// the intended one, the edit is considered written through.
	pendingConfirmTolerance = time.Second
)

// PendingEdits suppresses sync flicker after a user-initiated move or
// resize: until the note index catches up with the write, the intended
// values override whatever the index still reports. Entries expire on a
// fixed timeout or as soon as the persisted start confirms the edit.
type PendingEdits struct {
	mu    sync.Mutex
	edits map[string]model.PendingEdit

	now func() time.Time
}

func NewPendingEdits() *PendingEdits {
	return &PendingEdits{
		edits: make(map[string]model.PendingEdit),
		now:   time.Now,
	}
}

// Record registers the intended span for a note the user just edited.
func (p *PendingEdits) Record(path string, start, end time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.edits[path] = model.PendingEdit{
		Path:      path,
		Start:     start,
		End:       end,
		CreatedAt: p.now(),
	}
}

// Override returns the still-active pending edit for a note given the
// start the index currently reports. Expired entries and entries whose
// intended start the index has caught up with are dropped.
func (p *PendingEdits) Override(path string, persistedStart time.Time) (model.PendingEdit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	edit, ok := p.edits[path]
	if !ok {
		return model.PendingEdit{}, false
	}
	if p.now().Sub(edit.CreatedAt) > pendingEditTimeout {
		delete(p.edits, path)
		return model.PendingEdit{}, false
	}
	diff := persistedStart.Sub(edit.Start)
	if diff < 0 {
		diff = -diff
	}
	if diff <= pendingConfirmTolerance {
		// Write-through confirmed.
		delete(p.edits, path)
		return model.PendingEdit{}, false
	}
	return edit, true
}

// Sweep garbage-collects expired entries; called opportunistically from
// recompute passes.
func (p *PendingEdits) Sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	for path, edit := range p.edits {
		if now.Sub(edit.CreatedAt) > pendingEditTimeout {
			delete(p.edits, path)
		}
	}
}

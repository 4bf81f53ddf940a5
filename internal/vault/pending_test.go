package vault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPendingEditOverrides(t *testing.T) {
	clock := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	p := NewPendingEdits()
	p.now = func() time.Time { return clock }

	intended := time.Date(2024, 1, 9, 14, 0, 0, 0, time.UTC)
	p.Record("Meetings/Standup.md", intended, intended.Add(30*time.Minute))

	// Index still reports the old start: the edit overrides it.
	stale := intended.Add(-2 * time.Hour)
	edit, ok := p.Override("Meetings/Standup.md", stale)
	assert.True(t, ok)
	assert.Equal(t, intended, edit.Start)

	// Unknown note: nothing pending.
	_, ok = p.Override("Other.md", stale)
	assert.False(t, ok)
}

func TestPendingEditConfirmedByWriteThrough(t *testing.T) {
	clock := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	p := NewPendingEdits()
	p.now = func() time.Time { return clock }

	intended := time.Date(2024, 1, 9, 14, 0, 0, 0, time.UTC)
	p.Record("a.md", intended, intended.Add(time.Hour))

	// Persisted start within tolerance of the intended one drops the entry.
	_, ok := p.Override("a.md", intended.Add(500*time.Millisecond))
	assert.False(t, ok)

	// And it stays dropped even if the index regresses afterwards.
	_, ok = p.Override("a.md", intended.Add(-2*time.Hour))
	assert.False(t, ok)
}

func TestPendingEditExpiry(t *testing.T) {
	clock := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	p := NewPendingEdits()
	p.now = func() time.Time { return clock }

	intended := time.Date(2024, 1, 9, 14, 0, 0, 0, time.UTC)
	p.Record("a.md", intended, intended.Add(time.Hour))

	clock = clock.Add(pendingEditTimeout + time.Millisecond)
	_, ok := p.Override("a.md", intended.Add(-2*time.Hour))
	assert.False(t, ok)
}

func TestPendingEditSweep(t *testing.T) {
	clock := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	p := NewPendingEdits()
	p.now = func() time.Time { return clock }

	start := time.Date(2024, 1, 9, 14, 0, 0, 0, time.UTC)
	p.Record("old.md", start, start.Add(time.Hour))
	clock = clock.Add(3 * time.Second)
	p.Record("fresh.md", start, start.Add(time.Hour))
	clock = clock.Add(3 * time.Second)

	p.Sweep()

	_, ok := p.Override("old.md", start.Add(-time.Hour))
	assert.False(t, ok)
	edit, ok := p.Override("fresh.md", start.Add(-time.Hour))
	assert.True(t, ok)
	assert.Equal(t, start, edit.Start)
}

// Package sync drives the end-to-end cycle: wait for the vault to go
// quiet, fetch and expand every feed, reconcile against the note index,
// and apply the resulting actions.
package sync

import (
	"context"
	"fmt"
	"strings"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"calnotes/internal/cache"
	"calnotes/internal/config"
	appLog "calnotes/internal/log"
	"calnotes/internal/ics"
	"calnotes/internal/model"
	"calnotes/internal/reconcile"
	"calnotes/internal/timezone"
	"calnotes/internal/vault"
)

// State is the orchestrator's position in the cycle state machine.
type State string

const (
	StateIdle        State = "idle"
	StateWaitingIdle State = "waiting-for-vault-idle"
	StateFetching    State = "fetching"
	StateReconciling State = "reconciling"
	StateApplying    State = "applying"
)

// Summary is the user-visible outcome of one cycle.
type Summary struct {
	Cycle   string    `json:"cycle"`
	Created int       `json:"created"`
	Updated int       `json:"updated"`
	Deleted int       `json:"deleted"`
	At      time.Time `json:"at"`
}

func (s Summary) String() string {
	return fmt.Sprintf("%d created, %d updated, %d deleted", s.Created, s.Updated, s.Deleted)
}

// Notifier surfaces the per-cycle summary to the user.
type Notifier interface {
	Notify(msg string)
}

// LogNotifier is the default notifier; it writes the summary to the log.
type LogNotifier struct{}

func (LogNotifier) Notify(msg string) {
	appLog.Info("sync summary", "result", msg)
}

// WriteClock reports the last observed local write; satisfied by
// vault.Watcher.
type WriteClock interface {
	LastWrite() time.Time
}

// IdleParams tune the debounce gate between a sync request and the fetch
// phase.
type IdleParams struct {
	// MinStartDelay keeps very recent write bursts from being missed.
	MinStartDelay time.Duration
	// IdleThreshold is the continuous quiet period required to proceed.
	IdleThreshold time.Duration
	// MaxWait bounds the gate so a busy vault cannot starve sync forever.
	MaxWait time.Duration
	// Poll is the sampling interval.
	Poll time.Duration
}

func DefaultIdleParams() IdleParams {
	return IdleParams{
		MinStartDelay: time.Second,
		IdleThreshold: 5 * time.Second,
		MaxWait:       60 * time.Second,
		Poll:          250 * time.Millisecond,
	}
}

// Orchestrator owns all cross-cycle session state: the occurrence cache,
// the hidden-id set and the pending-edit map, threaded explicitly rather
// than living in globals.
type Orchestrator struct {
	cfg      *config.Config
	store    *vault.Store
	fetcher  *ics.Fetcher
	cache    *cache.Cache
	resolver *timezone.Resolver
	writes   WriteClock
	pending  *vault.PendingEdits
	notifier Notifier
	hidden   map[string]struct{}
	idle     IdleParams
	dryRun   bool

	inFlight atomic.Bool

	mu      gosync.Mutex
	state   State
	lastSum *Summary

	now func() time.Time
}

func New(cfg *config.Config, store *vault.Store, fetcher *ics.Fetcher, occCache *cache.Cache, resolver *timezone.Resolver, writes WriteClock, pending *vault.PendingEdits, notifier Notifier) *Orchestrator {
	hidden := make(map[string]struct{}, len(cfg.HiddenIDs))
	for _, id := range cfg.HiddenIDs {
		hidden[id] = struct{}{}
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		fetcher:  fetcher,
		cache:    occCache,
		resolver: resolver,
		writes:   writes,
		pending:  pending,
		notifier: notifier,
		hidden:   hidden,
		idle:     DefaultIdleParams(),
		state:    StateIdle,
		now:      time.Now,
	}
}

// SetIdleParams overrides the debounce tuning; used by fast cycles (tests,
// --once runs after an interactive edit).
func (o *Orchestrator) SetIdleParams(p IdleParams) { o.idle = p }

// SetDryRun makes Apply log intended actions without touching the vault.
func (o *Orchestrator) SetDryRun(v bool) { o.dryRun = v }

// State reports the current cycle phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastSummary returns the most recent cycle's outcome, nil before the
// first completed cycle.
func (o *Orchestrator) LastSummary() *Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastSum == nil {
		return nil
	}
	cp := *o.lastSum
	return &cp
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Sync runs one full cycle. A request arriving while a cycle is in flight
// is dropped, not queued.
func (o *Orchestrator) Sync(ctx context.Context) error {
	if !o.inFlight.CompareAndSwap(false, true) {
		appLog.Debug("sync already in flight, request dropped")
		return nil
	}
	defer o.inFlight.Store(false)
	defer o.setState(StateIdle)

	cycle := uuid.NewString()[:8]
	start := o.now()
	windowStart := start.AddDate(0, 0, -o.cfg.WindowPastDays)
	windowEnd := start.AddDate(0, 0, o.cfg.WindowFutureDays)

	appLog.Info("sync cycle start", "cycle", cycle,
		"window_start", windowStart.Format(time.RFC3339),
		"window_end", windowEnd.Format(time.RFC3339),
		"feeds", len(o.cfg.Feeds))

	o.setState(StateWaitingIdle)
	if err := o.waitForVaultIdle(ctx, start); err != nil {
		return err
	}

	o.setState(StateFetching)
	occs := o.fetchAll(ctx, windowStart, windowEnd)
	occs = filterByTitle(occs, o.cfg.FilterTerms())

	o.setState(StateReconciling)
	o.pending.Sweep()
	index, err := vault.BuildIndex(o.store, o.cfg.StartKey)
	if err != nil {
		return fmt.Errorf("building note index: %w", err)
	}
	o.applyPendingOverrides(index)

	allPaths, err := o.store.ListNotes()
	if err != nil {
		return fmt.Errorf("listing notes: %w", err)
	}
	taken := make(map[string]struct{}, len(allPaths))
	for _, p := range allPaths {
		taken[p] = struct{}{}
	}

	results := reconcile.Reconcile(occs, index, reconcile.Options{
		Hidden:      o.hidden,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		NotesFolder: o.cfg.NotesFolder,
		TakenPaths:  taken,
	})

	o.setState(StateApplying)
	sum := o.apply(results)
	sum.Cycle = cycle
	sum.At = o.now()

	o.mu.Lock()
	o.lastSum = &sum
	o.mu.Unlock()

	if sum.Created+sum.Updated+sum.Deleted > 0 {
		o.notifier.Notify(sum.String())
	}
	appLog.Info("sync cycle done", "cycle", cycle,
		"occurrences", len(occs), "notes_indexed", len(index),
		"created", sum.Created, "updated", sum.Updated, "deleted", sum.Deleted)
	return nil
}

// waitForVaultIdle blocks until no local write has landed for the idle
// threshold, or the maximum wait elapses.
func (o *Orchestrator) waitForVaultIdle(ctx context.Context, cycleStart time.Time) error {
	if o.writes == nil {
		return nil
	}
	for {
		now := o.now()
		sinceStart := now.Sub(cycleStart)
		if sinceStart >= o.idle.MaxWait {
			appLog.Warn("vault never went idle, proceeding anyway",
				"waited", sinceStart.Round(time.Millisecond))
			return nil
		}
		if sinceStart >= o.idle.MinStartDelay && now.Sub(o.writes.LastWrite()) >= o.idle.IdleThreshold {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.idle.Poll):
		}
	}
}

// fetchAll queries every feed concurrently, tolerating individual feed
// failures: one feed's error never aborts the others, and a failed feed
// contributes nothing this cycle (never a cached empty result).
func (o *Orchestrator) fetchAll(ctx context.Context, windowStart, windowEnd time.Time) []model.Occurrence {
	type feedResult struct {
		idx  int
		occs []model.Occurrence
	}

	results := make([]feedResult, len(o.cfg.Feeds))
	var wg gosync.WaitGroup
	for i, feed := range o.cfg.Feeds {
		wg.Add(1)
		go func(i int, feed config.FeedConfig) {
			defer wg.Done()
			results[i] = feedResult{idx: i, occs: o.fetchFeed(ctx, feed, windowStart, windowEnd)}
		}(i, feed)
	}
	wg.Wait()

	var all []model.Occurrence
	for _, r := range results {
		all = append(all, r.occs...)
	}
	return all
}

func (o *Orchestrator) fetchFeed(ctx context.Context, feed config.FeedConfig, windowStart, windowEnd time.Time) []model.Occurrence {
	key := cache.NewKey(feed.URL, windowStart, windowEnd, true)
	if occs, ok := o.cache.Get(key); ok {
		appLog.Debug("feed served from cache", "id", feed.ID)
		return occs
	}

	body, err := o.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		// Temporarily unknown, not "feed has no events": do not cache.
		appLog.Error("feed fetch failed, treating as empty this cycle", err, "id", feed.ID)
		return nil
	}

	events := ics.Decode(ics.Source{ID: feed.ID, URL: feed.URL, Tag: feed.Tag}, body)
	occs := ics.Expand(events, o.resolver, windowStart, windowEnd)
	o.cache.Put(key, occs)
	return occs
}

// filterByTitle drops non-cancelled occurrences whose title contains any
// exclusion term. Cancelled occurrences always pass so deletions still
// fire for filtered series.
func filterByTitle(occs []model.Occurrence, terms []string) []model.Occurrence {
	if len(terms) == 0 {
		return occs
	}
	// Fresh slice: occs may alias the occurrence cache.
	out := make([]model.Occurrence, 0, len(occs))
	for _, occ := range occs {
		if !occ.Cancelled && titleMatches(occ.Title, terms) {
			continue
		}
		out = append(out, occ)
	}
	return out
}

func titleMatches(title string, terms []string) bool {
	lower := strings.ToLower(title)
	for _, term := range terms {
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// applyPendingOverrides momentarily substitutes intended start times for
// notes with an unconfirmed user edit, so the reconciler does not read
// mid-write state and "change it back".
func (o *Orchestrator) applyPendingOverrides(index []model.NoteRecord) {
	if o.pending == nil {
		return
	}
	for i := range index {
		if edit, ok := o.pending.Override(index[i].Path, index[i].Start); ok {
			index[i].Start = edit.Start
		}
	}
}

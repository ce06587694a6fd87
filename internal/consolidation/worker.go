// Package consolidation runs the background compaction worker. Each pass
// distills recent activity per tenant into stratified knowledge notes
// (recent, reflection, metadata layers). The event log is never mutated.
package consolidation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"memoryd/internal/config"
	"memoryd/internal/ids"
	"memoryd/internal/logging"
	"memoryd/internal/store"
	"memoryd/internal/types"
)

// Worker periodically distills chunks and decisions into knowledge notes.
type Worker struct {
	store *store.LocalStore
	cfg   config.ConsolidationConfig

	mu      sync.Mutex
	lastRun time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a consolidation worker.
func New(s *store.LocalStore, cfg config.ConsolidationConfig) *Worker {
	return &Worker{store: s, cfg: cfg}
}

// Start launches the ticker loop. No-op when disabled.
func (w *Worker) Start(ctx context.Context) {
	if !w.cfg.Enabled {
		logging.Consolidation("Consolidation disabled")
		return
	}
	interval := time.Duration(w.cfg.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		logging.Consolidation("Worker started, interval=%v", interval)
		for {
			select {
			case <-ctx.Done():
				logging.Consolidation("Worker stopped")
				return
			case <-ticker.C:
				if err := w.RunOnce(ctx); err != nil {
					logging.Get(logging.CategoryConsolidation).Warn("Pass failed: %v", err)
				}
			}
		}
	}()
}

// Stop shuts the worker down and waits for the loop to exit.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunOnce executes a single consolidation pass over all tenants.
func (w *Worker) RunOnce(ctx context.Context) error {
	timer := logging.StartTimer(logging.CategoryConsolidation, "RunOnce")
	defer timer.Stop()

	w.mu.Lock()
	since := w.lastRun
	now := time.Now().UTC()
	w.lastRun = now
	w.mu.Unlock()

	tenants, err := w.store.Tenants()
	if err != nil {
		return err
	}
	for _, tenant := range tenants {
		if err := ctx.Err(); err != nil {
			return types.ErrDeadlineExceeded
		}
		if err := w.consolidateTenant(tenant, since, now); err != nil {
			logging.Get(logging.CategoryConsolidation).Warn(
				"Tenant %s consolidation failed: %v", tenant, err)
		}
	}
	return nil
}

// consolidateTenant writes at most one note per layer per pass.
func (w *Worker) consolidateTenant(tenant string, since, now time.Time) error {
	if err := w.recentLayer(tenant, since, now); err != nil {
		return err
	}
	return w.reflectionLayer(tenant, since, now)
}

// recentLayer distills high-importance chunks of the window into one note.
// Skipped when the window holds fewer chunks than the configured minimum.
func (w *Worker) recentLayer(tenant string, since, now time.Time) error {
	chunks, err := w.store.ListRecentChunks(tenant, store.ChunkFilter{
		Since: since,
		Until: now,
		Limit: 500,
	})
	if err != nil {
		return err
	}
	if len(chunks) < w.cfg.MinChunksPerSummary {
		logging.ConsolidationDebug("Tenant %s: %d chunks below threshold %d, skipping",
			tenant, len(chunks), w.cfg.MinChunksPerSummary)
		return nil
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Importance > chunks[j].Importance
	})
	top := chunks
	if len(top) > 10 {
		top = top[:10]
	}
	var sb strings.Builder
	for _, c := range top {
		sb.WriteString("- ")
		sb.WriteString(firstSentence(c.Text))
		sb.WriteString("\n")
	}

	note := &types.KnowledgeNote{
		ID:     ids.New(ids.PrefixNote),
		Tenant: tenant,
		Scope:  types.ScopeGlobal,
		Title: fmt.Sprintf("Activity digest %s (%d chunks)",
			now.Format("2006-01-02 15:04"), len(chunks)),
		Text:      sb.String(),
		Layer:     "recent",
		Tags:      []string{"consolidation"},
		CreatedAt: now,
	}
	if err := w.store.InsertNote(note); err != nil {
		return err
	}
	logging.Consolidation("Tenant %s: recent digest %s from %d chunks",
		tenant, note.ID, len(chunks))
	return nil
}

// reflectionLayer records the window's active decisions as one note so the
// decision trail survives chunk churn.
func (w *Worker) reflectionLayer(tenant string, since, now time.Time) error {
	decisions, err := w.store.ListDecisions(tenant, store.DecisionFilter{
		Status: types.DecisionActive,
		Limit:  50,
	})
	if err != nil {
		return err
	}
	var lines []string
	for _, d := range decisions {
		if d.CreatedAt.Before(since) {
			continue
		}
		lines = append(lines, "- ["+string(d.Scope)+"] "+d.Decision)
	}
	if len(lines) == 0 {
		return nil
	}

	note := &types.KnowledgeNote{
		ID:        ids.New(ids.PrefixNote),
		Tenant:    tenant,
		Scope:     types.ScopeGlobal,
		Title:     "Decisions made " + now.Format("2006-01-02 15:04"),
		Text:      strings.Join(lines, "\n"),
		Layer:     "reflection",
		Tags:      []string{"consolidation"},
		CreatedAt: now,
	}
	if err := w.store.InsertNote(note); err != nil {
		return err
	}
	logging.Consolidation("Tenant %s: reflection note %s with %d decisions",
		tenant, note.ID, len(lines))
	return nil
}

func firstSentence(text string) string {
	if i := strings.IndexAny(text, ".\n"); i > 0 {
		return text[:i]
	}
	if len(text) > 200 {
		return text[:200]
	}
	return text
}

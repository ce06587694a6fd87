// Package assembler builds Active Context Bundles: per-call, budgeted, ranked
// bundles of text blocks. Section inputs are fetched concurrently and merged
// deterministically; packing is greedy by score within fixed section budgets.
package assembler

import (
	"context"
	"encoding/json"
	"strings"

	"golang.org/x/sync/errgroup"

	"memoryd/internal/capsule"
	"memoryd/internal/config"
	"memoryd/internal/logging"
	"memoryd/internal/mode"
	"memoryd/internal/retrieval"
	"memoryd/internal/store"
	"memoryd/internal/types"
)

// Assembler builds ACBs from the store, the retrieval engine, and the capsule
// service.
type Assembler struct {
	store     *store.LocalStore
	retriever *retrieval.Engine
	capsules  *capsule.Service
	sticky    *mode.StickyRegistry
	views     *viewCache
	cfg       config.BudgetConfig
}

// New builds an assembler. The sticky registry is shared with whoever else
// observes session constraints.
func New(s *store.LocalStore, r *retrieval.Engine, c *capsule.Service, sticky *mode.StickyRegistry, cfg config.BudgetConfig) *Assembler {
	if sticky == nil {
		sticky = mode.NewStickyRegistry()
	}
	return &Assembler{
		store:     s,
		retriever: r,
		capsules:  c,
		sticky:    sticky,
		views:     newViewCache(),
		cfg:       cfg,
	}
}

// Request is one build_acb call.
type Request struct {
	Tenant          string
	Session         string
	Agent           string
	Channel         types.Channel
	Intent          string
	QueryText       string
	MaxTokens       int
	IncludeCapsules bool
	Sensitivities   []types.Sensitivity
}

// sectionInputs holds the raw fetch results before packing. Fetches run
// concurrently; the struct is only read after all of them complete.
type sectionInputs struct {
	rules     []ruleView
	tasks     []types.Task
	decisions []types.Decision
	evidence  []retrieval.Result
	poolSize  int
	recent    []types.Event
	capsules  []capsuleView
}

// Build assembles one ACB. On deadline expiry the caller gets
// DeadlineExceeded and no bundle; partial results are never returned.
func (a *Assembler) Build(ctx context.Context, req Request) (*types.ACB, error) {
	timer := logging.StartTimer(logging.CategoryAssembler, "Build")
	defer timer.Stop()

	if req.Tenant == "" || req.Session == "" {
		return nil, types.InvalidInputf("tenant and session required")
	}
	if req.Channel == "" {
		req.Channel = types.ChannelAgent
	}
	if !req.Channel.Valid() {
		return nil, types.InvalidInputf("channel %q unknown", req.Channel)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.cfg.MaxTokens
	}

	detected := mode.Detect(req.Intent, req.QueryText)
	budgets := mode.SectionBudgets(detected.Mode, maxTokens)
	logging.Assembler("Building ACB for %s/%s: mode=%s (%.2f), budget=%d",
		req.Tenant, req.Session, detected.Mode, detected.Confidence, maxTokens)

	in, err := a.fetchSections(ctx, req, detected.Mode, budgets)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, types.ErrDeadlineExceeded
	}

	// New hard constraints in the query pin for the rest of the session.
	a.sticky.Observe(req.Tenant, req.Session, req.QueryText)
	a.observeBlockingErrors(req, in.recent)
	pinned := a.sticky.Get(req.Tenant, req.Session)

	acb := a.pack(req, detected, maxTokens, budgets, in, pinned)
	logging.Assembler("ACB %s: %d sections, %d/%d tokens, %d omissions",
		acb.ID, len(acb.Sections), acb.TokenUsedEst, acb.BudgetTokens, len(acb.Omissions))
	return acb, nil
}

// fetchSections issues the storage round-trips concurrently. Results land in
// dedicated fields so the merge is deterministic regardless of completion
// order.
func (a *Assembler) fetchSections(ctx context.Context, req Request, m types.Mode, budgets map[string]int) (*sectionInputs, error) {
	in := &sectionInputs{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rules, err := a.rulesView(req.Tenant)
		if err != nil {
			return err
		}
		in.rules = rules
		return nil
	})
	if budgets[mode.SectionTaskState] > 0 {
		g.Go(func() error {
			tasks, err := a.store.ListTasks(req.Tenant, store.TaskFilter{Session: req.Session})
			if err != nil {
				return err
			}
			in.tasks = tasks
			return nil
		})
	}
	g.Go(func() error {
		decisions, err := a.store.ListDecisions(req.Tenant, store.DecisionFilter{
			Status: types.DecisionActive,
		})
		if err != nil {
			return err
		}
		in.decisions = decisions
		return nil
	})
	if req.QueryText != "" {
		g.Go(func() error {
			results, pool, err := a.retriever.Search(gctx, retrieval.Query{
				Tenant:        req.Tenant,
				Text:          req.QueryText,
				Channel:       req.Channel,
				Mode:          m,
				Sensitivities: req.Sensitivities,
				Hybrid:        true,
			})
			if err != nil {
				return err
			}
			in.evidence = results
			in.poolSize = pool
			return nil
		})
	}
	g.Go(func() error {
		events, err := a.store.ListEvents(req.Tenant, store.EventFilter{
			Session: req.Session,
			Limit:   a.cfg.RecentWindowEvents,
		})
		if err != nil {
			return err
		}
		// ListEvents returns newest first; the window reads chronologically.
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
		in.recent = events
		return nil
	})
	if req.IncludeCapsules && budgets[mode.SectionCapsules] > 0 && a.capsules != nil && req.Agent != "" {
		g.Go(func() error {
			views, err := a.capsuleViews(req.Tenant, req.Agent)
			if err != nil {
				return err
			}
			in.capsules = views
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, types.ErrDeadlineExceeded
		}
		return nil, err
	}
	return in, nil
}

// observeBlockingErrors pins blocking failures seen in recent tool results so
// they keep surfacing in the rules section for the rest of the session.
func (a *Assembler) observeBlockingErrors(req Request, recent []types.Event) {
	for _, e := range recent {
		if e.Kind != types.KindToolResult {
			continue
		}
		var payload struct {
			ExcerptText string `json:"excerpt_text"`
			Blocking    bool   `json:"blocking"`
		}
		if err := json.Unmarshal(e.Content, &payload); err != nil {
			continue
		}
		if payload.Blocking && payload.ExcerptText != "" {
			a.sticky.Pin(req.Tenant, req.Session, firstLine(payload.ExcerptText))
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// estimateTokens mirrors the ingest-side heuristic of ~4 bytes per token.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func queryTerms(text string) []string {
	fields := strings.Fields(text)
	if len(fields) > 16 {
		fields = fields[:16]
	}
	return fields
}

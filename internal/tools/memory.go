package tools

import (
	"context"
	"time"

	"memoryd/internal/retrieval"
	"memoryd/internal/store"
	"memoryd/internal/types"
)

func registerMemoryTools(r *Registry, d Deps) {
	r.MustRegister(&Tool{
		Name:        "get_event",
		Description: "Fetch one raw event by id.",
		Category:    CategoryMemory,
		Schema: Schema{
			Required: []string{"event_id"},
			Properties: map[string]Property{
				"tenant_id": {Type: "string"},
				"event_id":  {Type: "string"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return d.Store.GetEvent(args.String("tenant_id"), args.String("event_id"))
		},
	})

	r.MustRegister(&Tool{
		Name:        "get_chunk",
		Description: "Fetch one chunk with all approved memory edits composed.",
		Category:    CategoryMemory,
		Schema: Schema{
			Required: []string{"chunk_id"},
			Properties: map[string]Property{
				"tenant_id": {Type: "string"},
				"chunk_id":  {Type: "string"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return d.Store.GetEffectiveChunk(args.String("tenant_id"), args.String("chunk_id"))
		},
	})

	r.MustRegister(&Tool{
		Name:        "search_chunks",
		Description: "Rank effective chunks for a query using lexical (and optionally vector) retrieval with recency and importance fusion.",
		Category:    CategoryMemory,
		Schema: Schema{
			Required: []string{"query"},
			Properties: map[string]Property{
				"tenant_id":  {Type: "string"},
				"query":      {Type: "string"},
				"channel":    {Type: "string", Default: "agent"},
				"mode":       {Type: "string", Default: "GENERAL"},
				"session_id": {Type: "string"},
				"scope":      {Type: "string"},
				"project_id": {Type: "string"},
				"tag":        {Type: "string"},
				"hybrid":     {Type: "boolean", Default: false},
				"limit":      {Type: "integer", Default: 20},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			channel := types.Channel(args.String("channel"))
			if channel == "" {
				channel = types.ChannelAgent
			}
			results, pool, err := d.Retrieval.Search(ctx, retrieval.Query{
				Tenant:    args.String("tenant_id"),
				Text:      args.String("query"),
				Channel:   channel,
				Mode:      types.Mode(args.String("mode")),
				Session:   args.String("session_id"),
				Scope:     types.Scope(args.String("scope")),
				ProjectID: args.String("project_id"),
				Tag:       args.String("tag"),
				Hybrid:    args.Bool("hybrid"),
				ResultMax: args.Int("limit", 20),
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"results":   results,
				"pool_size": pool,
			}, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "get_chunk_timeline",
		Description: "Return the events of a chunk's session within a time window around its source event.",
		Category:    CategoryMemory,
		Schema: Schema{
			Required: []string{"chunk_id"},
			Properties: map[string]Property{
				"tenant_id":      {Type: "string"},
				"chunk_id":       {Type: "string"},
				"window_seconds": {Type: "integer", Default: 300},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			tenant := args.String("tenant_id")
			chunk, err := d.Store.GetChunk(tenant, args.String("chunk_id"))
			if err != nil {
				return nil, err
			}
			window := time.Duration(args.Int("window_seconds", 300)) * time.Second
			events, err := d.Store.ListEvents(tenant, store.EventFilter{
				Session: chunk.Session,
				Since:   chunk.Timestamp.Add(-window),
				Until:   chunk.Timestamp.Add(window),
				Limit:   200,
			})
			if err != nil {
				return nil, err
			}
			// Newest-first from the store; a timeline reads forward.
			for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
				events[i], events[j] = events[j], events[i]
			}
			return map[string]any{
				"chunk_id": chunk.ID,
				"event_id": chunk.EventID,
				"events":   events,
			}, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "query_decisions",
		Description: "List decisions ordered by scope precedence (policy > project > user > global) then recency.",
		Category:    CategoryMemory,
		Schema: Schema{
			Required: []string{},
			Properties: map[string]Property{
				"tenant_id": {Type: "string"},
				"status":    {Type: "string", Enum: []any{"active", "superseded"}},
				"scope":     {Type: "string"},
				"limit":     {Type: "integer", Default: 50},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return d.Store.ListDecisions(args.String("tenant_id"), store.DecisionFilter{
				Status: types.DecisionStatus(args.String("status")),
				Scope:  types.Scope(args.String("scope")),
				Limit:  args.Int("limit", 50),
			})
		},
	})

	r.MustRegister(&Tool{
		Name:        "get_latest_handoff",
		Description: "Fetch the most recent session handoff for the tenant, optionally scoped to one session.",
		Category:    CategoryAdmin,
		Schema: Schema{
			Required: []string{},
			Properties: map[string]Property{
				"tenant_id":  {Type: "string"},
				"session_id": {Type: "string"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return d.Store.LatestHandoff(args.String("tenant_id"), args.String("session_id"))
		},
	})
}

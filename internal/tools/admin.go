package tools

import (
	"context"
)

func registerAdminTools(r *Registry, d Deps) {
	r.MustRegister(&Tool{
		Name:        "get_stats",
		Description: "Per-table row counts for the store.",
		Category:    CategoryAdmin,
		Schema: Schema{
			Required: []string{},
			Properties: map[string]Property{
				"tenant_id": {Type: "string"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return d.Store.GetStats()
		},
	})

	r.MustRegister(&Tool{
		Name:        "purge_event",
		Description: "Hard-delete an event and its derived chunks. The explicit right-to-delete path, not normal forgetting.",
		Category:    CategoryAdmin,
		Schema: Schema{
			Required: []string{"event_id"},
			Properties: map[string]Property{
				"tenant_id": {Type: "string"},
				"event_id":  {Type: "string"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			if err := d.Store.PurgeEvent(args.String("tenant_id"), args.String("event_id")); err != nil {
				return nil, err
			}
			return map[string]any{"purged": true}, nil
		},
	})
}

package tools

import (
	"context"

	"memoryd/internal/capsule"
	"memoryd/internal/types"
)

func registerCapsuleTools(r *Registry, d Deps) {
	r.MustRegister(&Tool{
		Name:        "create_capsule",
		Description: "Create a curated, audience-restricted, TTL-bound memory bundle for other agents.",
		Category:    CategoryCapsule,
		Schema: Schema{
			Required: []string{"agent_id", "audience", "items"},
			Properties: map[string]Property{
				"tenant_id": {Type: "string"},
				"agent_id":  {Type: "string", Description: "Author agent"},
				"audience":  {Type: "array", Items: &Items{Type: "string"}},
				"items":     {Type: "object", Description: "Item ids: {chunks, decisions, artifacts}"},
				"scope":     {Type: "string", Default: "session"},
				"subject":   {Type: "object"},
				"risks":     {Type: "array", Items: &Items{Type: "string"}},
				"ttl_days":  {Type: "integer", Default: 7},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			in := capsule.CreateInput{
				Tenant:        args.String("tenant_id"),
				AuthorAgentID: args.String("agent_id"),
				Scope:         types.Scope(args.String("scope")),
				Audience:      args.Strings("audience"),
				Risks:         args.Strings("risks"),
				TTLDays:       args.Int("ttl_days", 0),
			}
			if items := args.Map("items"); items != nil {
				in.Items = types.CapsuleItems{
					Chunks:    Args(items).Strings("chunks"),
					Decisions: Args(items).Strings("decisions"),
					Artifacts: Args(items).Strings("artifacts"),
				}
			}
			if subj := args.Map("subject"); subj != nil {
				in.Subject = types.Subject{
					Type: Args(subj).String("type"),
					ID:   Args(subj).String("id"),
				}
			}
			return d.Capsules.Create(ctx, in)
		},
	})

	r.MustRegister(&Tool{
		Name:        "get_capsule",
		Description: "Fetch a capsule as a given agent; revoked, expired, or unaddressed capsules read as missing.",
		Category:    CategoryCapsule,
		Schema: Schema{
			Required: []string{"capsule_id", "agent_id"},
			Properties: map[string]Property{
				"tenant_id":  {Type: "string"},
				"capsule_id": {Type: "string"},
				"agent_id":   {Type: "string"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return d.Capsules.Get(args.String("tenant_id"),
				args.String("capsule_id"), args.String("agent_id"))
		},
	})

	r.MustRegister(&Tool{
		Name:        "list_capsules",
		Description: "List active, unexpired capsules addressed to an agent.",
		Category:    CategoryCapsule,
		Schema: Schema{
			Required: []string{"agent_id"},
			Properties: map[string]Property{
				"tenant_id": {Type: "string"},
				"agent_id":  {Type: "string"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return d.Capsules.List(args.String("tenant_id"), args.String("agent_id"))
		},
	})

	r.MustRegister(&Tool{
		Name:        "revoke_capsule",
		Description: "Revoke a capsule. Author only; the audience loses access immediately.",
		Category:    CategoryCapsule,
		Schema: Schema{
			Required: []string{"capsule_id", "agent_id"},
			Properties: map[string]Property{
				"tenant_id":  {Type: "string"},
				"capsule_id": {Type: "string"},
				"agent_id":   {Type: "string"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			err := d.Capsules.Revoke(ctx, args.String("tenant_id"),
				args.String("capsule_id"), args.String("agent_id"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"revoked": true}, nil
		},
	})
}

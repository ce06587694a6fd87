package tools

import (
	"context"
	"encoding/json"

	"memoryd/internal/recorder"
	"memoryd/internal/types"
)

func registerIngestTools(r *Registry, d Deps) {
	r.MustRegister(&Tool{
		Name:          "record_event",
		Description:   "Record one interaction event; chunks, decisions, tasks, and artifacts are derived automatically.",
		Category:      CategoryIngest,
		SessionScoped: true,
		Schema: Schema{
			Required: []string{"channel", "actor", "kind", "content"},
			Properties: map[string]Property{
				"tenant_id":   {Type: "string", Description: "Tenant the event belongs to"},
				"session_id":  {Type: "string", Description: "Session the event belongs to"},
				"channel":     {Type: "string", Enum: []any{"private", "public", "team", "agent"}},
				"actor":       {Type: "object", Description: "Who produced the event: {type, id}"},
				"kind":        {Type: "string", Description: "Event kind (message, tool_call, tool_result, decision, task_update, artifact, handoff, knowledge_note)"},
				"sensitivity": {Type: "string", Default: "none", Enum: []any{"none", "low", "high", "secret"}},
				"content":     {Type: "object", Description: "Kind-specific payload"},
				"tags":        {Type: "array", Items: &Items{Type: "string"}},
				"refs":        {Type: "array", Items: &Items{Type: "string"}},
				"scope":       {Type: "string", Description: "Explicit scope override"},
				"subject":     {Type: "object", Description: "Subject pair {type, id}"},
				"project_id":  {Type: "string"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			in, err := recordInput(args)
			if err != nil {
				return nil, err
			}
			return d.Recorder.Record(ctx, in)
		},
	})

	r.MustRegister(&Tool{
		Name:          "create_handoff",
		Description:   "Leave a structured baton (summary, open items, refs) for the next session.",
		Category:      CategoryAdmin,
		SessionScoped: true,
		Schema: Schema{
			Required: []string{"agent_id", "summary"},
			Properties: map[string]Property{
				"tenant_id":  {Type: "string"},
				"session_id": {Type: "string"},
				"agent_id":   {Type: "string"},
				"summary":    {Type: "string"},
				"open_items": {Type: "array", Items: &Items{Type: "string"}},
				"refs":       {Type: "array", Items: &Items{Type: "string"}},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			content, err := json.Marshal(map[string]any{
				"summary":    args.String("summary"),
				"open_items": args.Strings("open_items"),
			})
			if err != nil {
				return nil, types.InvalidInputf("malformed handoff content: %v", err)
			}
			return d.Recorder.Record(ctx, recorder.Input{
				Tenant:      args.String("tenant_id"),
				Session:     args.String("session_id"),
				Channel:     types.ChannelAgent,
				Actor:       types.Actor{Type: types.ActorAgent, ID: args.String("agent_id")},
				Kind:        types.KindHandoff,
				Sensitivity: types.SensitivityNone,
				Content:     content,
				Refs:        args.Strings("refs"),
			})
		},
	})
}

// recordInput converts dispatch arguments into a recorder input.
func recordInput(args Args) (recorder.Input, error) {
	in := recorder.Input{
		Tenant:      args.String("tenant_id"),
		Session:     args.String("session_id"),
		Channel:     types.Channel(args.String("channel")),
		Kind:        types.EventKind(args.String("kind")),
		Sensitivity: types.Sensitivity(args.String("sensitivity")),
		Tags:        args.Strings("tags"),
		Refs:        args.Strings("refs"),
		Scope:       types.Scope(args.String("scope")),
		ProjectID:   args.String("project_id"),
	}
	if in.Sensitivity == "" {
		in.Sensitivity = types.SensitivityNone
	}
	if actor := args.Map("actor"); actor != nil {
		in.Actor = types.Actor{
			Type: types.ActorType(Args(actor).String("type")),
			ID:   Args(actor).String("id"),
		}
	}
	if subj := args.Map("subject"); subj != nil {
		in.Subject = types.Subject{
			Type: Args(subj).String("type"),
			ID:   Args(subj).String("id"),
		}
	}
	content, err := json.Marshal(args.Map("content"))
	if err != nil {
		return in, types.InvalidInputf("malformed content: %v", err)
	}
	in.Content = content
	return in, nil
}

package tools

import (
	"context"

	"memoryd/internal/assembler"
	"memoryd/internal/types"
)

func registerContextTools(r *Registry, d Deps) {
	r.MustRegister(&Tool{
		Name:          "build_acb",
		Description:   "Assemble an Active Context Bundle for a session: mode-budgeted sections of rules, task state, decisions, evidence, recent events, and capsules.",
		Category:      CategoryContext,
		SessionScoped: true,
		Schema: Schema{
			Required: []string{},
			Properties: map[string]Property{
				"tenant_id":        {Type: "string"},
				"session_id":       {Type: "string"},
				"agent_id":         {Type: "string"},
				"channel":          {Type: "string", Default: "agent"},
				"intent":           {Type: "string", Description: "Caller-declared intent; dominates mode detection"},
				"query_text":       {Type: "string", Description: "Free text driving the evidence section"},
				"max_tokens":       {Type: "integer", Default: 65000},
				"include_capsules": {Type: "boolean", Default: false},
				"sensitivities":    {Type: "array", Items: &Items{Type: "string"}, Description: "Narrow the channel's sensitivity allow-list"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			var sens []types.Sensitivity
			for _, s := range args.Strings("sensitivities") {
				sens = append(sens, types.Sensitivity(s))
			}
			return d.Assembler.Build(ctx, assembler.Request{
				Tenant:          args.String("tenant_id"),
				Session:         args.String("session_id"),
				Agent:           args.String("agent_id"),
				Channel:         types.Channel(args.String("channel")),
				Intent:          args.String("intent"),
				QueryText:       args.String("query_text"),
				MaxTokens:       args.Int("max_tokens", 0),
				IncludeCapsules: args.Bool("include_capsules"),
				Sensitivities:   sens,
			})
		},
	})
}

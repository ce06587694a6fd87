package tools

import (
	"context"

	"memoryd/internal/store"
	"memoryd/internal/surgery"
	"memoryd/internal/types"
)

func registerSurgeryTools(r *Registry, d Deps) {
	r.MustRegister(&Tool{
		Name:        "create_edit",
		Description: "Propose a non-destructive memory edit (retract, amend, quarantine, attenuate, block) against a chunk, event, or decision.",
		Category:    CategorySurgery,
		Schema: Schema{
			Required: []string{"target_type", "target_id", "op", "proposed_by"},
			Properties: map[string]Property{
				"tenant_id":    {Type: "string"},
				"target_type":  {Type: "string", Enum: []any{"chunk", "event", "decision"}},
				"target_id":    {Type: "string"},
				"op":           {Type: "string", Enum: []any{"retract", "amend", "quarantine", "attenuate", "block"}},
				"reason":       {Type: "string"},
				"proposed_by":  {Type: "string", Enum: []any{"human", "agent"}},
				"patch":        {Type: "object", Description: "Op-specific patch: text, importance, importance_delta, channel"},
				"auto_approve": {Type: "boolean", Default: false},
				"approved_by":  {Type: "string", Description: "Approver identity when auto_approve is set"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return d.Surgery.CreateEdit(ctx, surgery.CreateInput{
				Tenant:      args.String("tenant_id"),
				TargetType:  types.EditTargetType(args.String("target_type")),
				TargetID:    args.String("target_id"),
				Op:          types.EditOp(args.String("op")),
				Reason:      args.String("reason"),
				ProposedBy:  types.ActorType(args.String("proposed_by")),
				Patch:       editPatch(args.Map("patch")),
				AutoApprove: args.Bool("auto_approve"),
				ApprovedBy:  args.String("approved_by"),
			})
		},
	})

	r.MustRegister(&Tool{
		Name:        "approve_edit",
		Description: "Approve a pending edit; the target's effective view updates immediately.",
		Category:    CategorySurgery,
		Schema: Schema{
			Required: []string{"edit_id", "approved_by"},
			Properties: map[string]Property{
				"tenant_id":   {Type: "string"},
				"edit_id":     {Type: "string"},
				"approved_by": {Type: "string"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return d.Surgery.ApproveEdit(ctx, args.String("tenant_id"),
				args.String("edit_id"), args.String("approved_by"))
		},
	})

	r.MustRegister(&Tool{
		Name:        "reject_edit",
		Description: "Reject a pending edit; the target is unaffected.",
		Category:    CategorySurgery,
		Schema: Schema{
			Required: []string{"edit_id"},
			Properties: map[string]Property{
				"tenant_id": {Type: "string"},
				"edit_id":   {Type: "string"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return d.Surgery.RejectEdit(ctx, args.String("tenant_id"), args.String("edit_id"))
		},
	})

	r.MustRegister(&Tool{
		Name:        "get_edit",
		Description: "Fetch one memory edit by id.",
		Category:    CategorySurgery,
		Schema: Schema{
			Required: []string{"edit_id"},
			Properties: map[string]Property{
				"tenant_id": {Type: "string"},
				"edit_id":   {Type: "string"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return d.Surgery.GetEdit(args.String("tenant_id"), args.String("edit_id"))
		},
	})

	r.MustRegister(&Tool{
		Name:        "list_edits",
		Description: "List memory edits, optionally filtered by target, status, or op.",
		Category:    CategorySurgery,
		Schema: Schema{
			Required: []string{},
			Properties: map[string]Property{
				"tenant_id": {Type: "string"},
				"target_id": {Type: "string"},
				"status":    {Type: "string", Enum: []any{"pending", "approved", "rejected"}},
				"op":        {Type: "string"},
				"limit":     {Type: "integer", Default: 50},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return d.Surgery.ListEdits(args.String("tenant_id"), store.EditFilter{
				TargetID: args.String("target_id"),
				Status:   types.EditStatus(args.String("status")),
				Op:       types.EditOp(args.String("op")),
				Limit:    args.Int("limit", 50),
			})
		},
	})
}

// editPatch converts a raw patch object, tolerating absent fields.
func editPatch(raw map[string]any) types.EditPatch {
	if raw == nil {
		return types.EditPatch{}
	}
	a := Args(raw)
	var p types.EditPatch
	if a.Has("text") {
		v := a.String("text")
		p.Text = &v
	}
	if a.Has("importance") {
		v := a.Float("importance", 0)
		p.Importance = &v
	}
	if a.Has("importance_delta") {
		v := a.Float("importance_delta", 0)
		p.ImportanceDelta = &v
	}
	p.Channel = types.Channel(a.String("channel"))
	return p
}

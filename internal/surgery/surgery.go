// Package surgery implements non-destructive memory edits: retract, amend,
// quarantine, attenuate, and block. Edits are proposals with an approval
// gate; approved edits are immutable and compose on read.
package surgery

import (
	"context"
	"time"

	"memoryd/internal/ids"
	"memoryd/internal/logging"
	"memoryd/internal/store"
	"memoryd/internal/types"
)

// Service proposes and resolves memory edits.
type Service struct {
	store *store.LocalStore
}

// New builds a surgery service.
func New(s *store.LocalStore) *Service {
	return &Service{store: s}
}

// CreateInput is one create_edit request.
type CreateInput struct {
	Tenant      string
	TargetType  types.EditTargetType
	TargetID    string
	Op          types.EditOp
	Reason      string
	ProposedBy  types.ActorType
	Patch       types.EditPatch
	AutoApprove bool
	ApprovedBy  string
}

// CreateEdit validates and records an edit proposal. With AutoApprove the
// edit lands approved with applied_at set; amend approvals refresh the
// target's search index.
func (s *Service) CreateEdit(ctx context.Context, in CreateInput) (*types.MemoryEdit, error) {
	timer := logging.StartTimer(logging.CategorySurgery, "CreateEdit")
	defer timer.Stop()

	if err := ctx.Err(); err != nil {
		return nil, types.ErrDeadlineExceeded
	}
	if in.Tenant == "" {
		return nil, types.InvalidInputf("tenant required")
	}
	if !in.TargetType.Valid() {
		return nil, types.InvalidInputf("target type %q unknown", in.TargetType)
	}
	if in.TargetID == "" {
		return nil, types.InvalidInputf("target id required")
	}
	if !in.Op.Valid() {
		return nil, types.InvalidInputf("op %q unknown", in.Op)
	}
	if in.ProposedBy != types.ActorHuman && in.ProposedBy != types.ActorAgent {
		return nil, types.InvalidInputf("proposed_by must be human or agent")
	}
	if err := ValidatePatch(in.Op, in.Patch); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	edit := &types.MemoryEdit{
		ID:         ids.New(ids.PrefixEdit),
		Tenant:     in.Tenant,
		TargetType: in.TargetType,
		TargetID:   in.TargetID,
		Op:         in.Op,
		Reason:     in.Reason,
		ProposedBy: in.ProposedBy,
		Status:     types.EditPending,
		CreatedAt:  now,
		Patch:      in.Patch,
	}
	if err := s.store.InsertEdit(edit); err != nil {
		return nil, err
	}
	logging.Surgery("Edit %s proposed: %s %s on %s", edit.ID, edit.Op, edit.TargetType, edit.TargetID)

	if !in.AutoApprove {
		return edit, nil
	}
	approver := in.ApprovedBy
	if approver == "" {
		approver = string(in.ProposedBy)
	}
	return s.store.ResolveEdit(in.Tenant, edit.ID, true, approver, now)
}

// ApproveEdit transitions a pending edit to approved.
func (s *Service) ApproveEdit(ctx context.Context, tenant, editID, approver string) (*types.MemoryEdit, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.ErrDeadlineExceeded
	}
	return s.store.ResolveEdit(tenant, editID, true, approver, time.Now().UTC())
}

// RejectEdit transitions a pending edit to rejected.
func (s *Service) RejectEdit(ctx context.Context, tenant, editID string) (*types.MemoryEdit, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.ErrDeadlineExceeded
	}
	return s.store.ResolveEdit(tenant, editID, false, "", time.Now().UTC())
}

// GetEdit returns an edit by id.
func (s *Service) GetEdit(tenant, editID string) (*types.MemoryEdit, error) {
	return s.store.GetEdit(tenant, editID)
}

// ListEdits returns edits matching the filter.
func (s *Service) ListEdits(tenant string, f store.EditFilter) ([]types.MemoryEdit, error) {
	return s.store.ListEdits(tenant, f)
}

// ValidatePatch enforces the per-op patch shape.
func ValidatePatch(op types.EditOp, p types.EditPatch) error {
	switch op {
	case types.OpRetract, types.OpQuarantine:
		if !p.IsEmpty() {
			return types.InvalidInputf("%s takes no patch", op)
		}
	case types.OpAmend:
		if p.Text == nil && p.Importance == nil {
			return types.InvalidInputf("amend requires text and/or importance")
		}
		if p.ImportanceDelta != nil || p.Channel != "" {
			return types.InvalidInputf("amend patch allows only text and importance")
		}
		if p.Importance != nil && (*p.Importance < 0 || *p.Importance > 1) {
			return types.InvalidInputf("importance must be in [0,1]")
		}
	case types.OpAttenuate:
		if p.Importance == nil && p.ImportanceDelta == nil {
			return types.InvalidInputf("attenuate requires importance or importance_delta")
		}
		if p.Importance != nil && p.ImportanceDelta != nil {
			return types.InvalidInputf("attenuate takes importance or importance_delta, not both")
		}
		if p.Text != nil || p.Channel != "" {
			return types.InvalidInputf("attenuate patch allows only importance fields")
		}
		if p.Importance != nil && (*p.Importance < 0 || *p.Importance > 1) {
			return types.InvalidInputf("importance must be in [0,1]")
		}
	case types.OpBlock:
		if p.Channel == "" {
			return types.InvalidInputf("block requires channel")
		}
		if !p.Channel.Valid() {
			return types.InvalidInputf("channel %q unknown", p.Channel)
		}
		if p.Text != nil || p.Importance != nil || p.ImportanceDelta != nil {
			return types.InvalidInputf("block patch allows only channel")
		}
	default:
		return types.InvalidInputf("op %q unknown", op)
	}
	return nil
}

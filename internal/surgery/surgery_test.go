package surgery

import (
	"context"
	"errors"
	"testing"
	"time"

	"memoryd/internal/store"
	"memoryd/internal/types"
)

func newTestService(t *testing.T) (*Service, *store.LocalStore) {
	t.Helper()
	s, err := store.NewLocalStore(":memory:")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func seedChunk(t *testing.T, s *store.LocalStore, chunkID, text string) {
	t.Helper()
	now := time.Now().UTC()
	eventID := "evt_for_" + chunkID
	err := s.WriteBundle(&store.RecordBundle{
		Event: types.Event{
			ID: eventID, Tenant: "acme", Session: "sess_1",
			Channel: types.ChannelPrivate,
			Actor:   types.Actor{Type: types.ActorHuman, ID: "u1"},
			Kind:    types.KindMessage, Sensitivity: types.SensitivityNone,
			Content: []byte(`{"text":"x"}`), Scope: types.ScopeGlobal,
			Timestamp: now,
		},
		Chunks: []types.Chunk{{
			ID: chunkID, Tenant: "acme", EventID: eventID, Session: "sess_1",
			Timestamp: now, Kind: types.KindMessage,
			Channel: types.ChannelPrivate, Sensitivity: types.SensitivityNone,
			TokenEstimate: 5, Importance: 0.5, Text: text,
			Scope: types.ScopeGlobal,
		}},
	})
	if err != nil {
		t.Fatalf("seed chunk %s: %v", chunkID, err)
	}
}

func TestValidatePatch(t *testing.T) {
	text := "new text"
	imp := 0.8
	bad := 1.5
	delta := -0.2

	cases := []struct {
		name    string
		op      types.EditOp
		patch   types.EditPatch
		wantErr bool
	}{
		{"retract empty", types.OpRetract, types.EditPatch{}, false},
		{"retract with patch", types.OpRetract, types.EditPatch{Text: &text}, true},
		{"quarantine empty", types.OpQuarantine, types.EditPatch{}, false},
		{"amend text", types.OpAmend, types.EditPatch{Text: &text}, false},
		{"amend importance", types.OpAmend, types.EditPatch{Importance: &imp}, false},
		{"amend empty", types.OpAmend, types.EditPatch{}, true},
		{"amend out of range", types.OpAmend, types.EditPatch{Importance: &bad}, true},
		{"amend with delta", types.OpAmend, types.EditPatch{Text: &text, ImportanceDelta: &delta}, true},
		{"attenuate delta", types.OpAttenuate, types.EditPatch{ImportanceDelta: &delta}, false},
		{"attenuate absolute", types.OpAttenuate, types.EditPatch{Importance: &imp}, false},
		{"attenuate both", types.OpAttenuate, types.EditPatch{Importance: &imp, ImportanceDelta: &delta}, true},
		{"attenuate empty", types.OpAttenuate, types.EditPatch{}, true},
		{"block channel", types.OpBlock, types.EditPatch{Channel: types.ChannelPublic}, false},
		{"block empty", types.OpBlock, types.EditPatch{}, true},
		{"block bad channel", types.OpBlock, types.EditPatch{Channel: "carrier-pigeon"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePatch(tc.op, tc.patch)
			if tc.wantErr && !errors.Is(err, types.ErrInvalidInput) {
				t.Errorf("got %v, want ErrInvalidInput", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCreateEditPendingThenApprove(t *testing.T) {
	svc, s := newTestService(t)
	seedChunk(t, s, "chk_1", "old wording here")
	ctx := context.Background()

	text := "new wording here"
	edit, err := svc.CreateEdit(ctx, CreateInput{
		Tenant:     "acme",
		TargetType: types.TargetChunk,
		TargetID:   "chk_1",
		Op:         types.OpAmend,
		Reason:     "user correction",
		ProposedBy: types.ActorAgent,
		Patch:      types.EditPatch{Text: &text},
	})
	if err != nil {
		t.Fatalf("CreateEdit: %v", err)
	}
	if edit.Status != types.EditPending || edit.AppliedAt != nil {
		t.Errorf("new edit should be pending: %+v", edit)
	}

	// Pending edits do not affect the effective view.
	eff, err := s.GetEffectiveChunk("acme", "chk_1")
	if err != nil {
		t.Fatal(err)
	}
	if eff.Text != "old wording here" || eff.EditsApplied != 0 {
		t.Errorf("pending edit leaked into effective view: %+v", eff)
	}

	approved, err := svc.ApproveEdit(ctx, "acme", edit.ID, "human:reviewer")
	if err != nil {
		t.Fatalf("ApproveEdit: %v", err)
	}
	if approved.Status != types.EditApproved || approved.AppliedAt == nil {
		t.Errorf("approval: %+v", approved)
	}

	eff, err = s.GetEffectiveChunk("acme", "chk_1")
	if err != nil {
		t.Fatal(err)
	}
	if eff.Text != text || eff.EditsApplied != 1 {
		t.Errorf("approved amend not applied: %+v", eff)
	}

	// Approving again: the edit is no longer pending.
	if _, err := svc.ApproveEdit(ctx, "acme", edit.ID, "human:reviewer"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("re-approve: got %v, want ErrNotFound", err)
	}
}

func TestAutoApprove(t *testing.T) {
	svc, s := newTestService(t)
	seedChunk(t, s, "chk_1", "internal secret foo")
	ctx := context.Background()

	edit, err := svc.CreateEdit(ctx, CreateInput{
		Tenant:      "acme",
		TargetType:  types.TargetChunk,
		TargetID:    "chk_1",
		Op:          types.OpRetract,
		ProposedBy:  types.ActorHuman,
		AutoApprove: true,
	})
	if err != nil {
		t.Fatalf("CreateEdit: %v", err)
	}
	if edit.Status != types.EditApproved || edit.AppliedAt == nil {
		t.Errorf("auto-approve: %+v", edit)
	}

	hits, err := s.SearchEffectiveChunks("acme", "foo", store.ChunkFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("retracted chunk still searchable: %+v", hits)
	}
	// Direct get is not retrieval.
	if _, err := s.GetChunk("acme", "chk_1"); err != nil {
		t.Errorf("direct get after retract: %v", err)
	}
}

func TestRejectEdit(t *testing.T) {
	svc, s := newTestService(t)
	seedChunk(t, s, "chk_1", "text")
	ctx := context.Background()

	edit, err := svc.CreateEdit(ctx, CreateInput{
		Tenant: "acme", TargetType: types.TargetChunk, TargetID: "chk_1",
		Op: types.OpQuarantine, ProposedBy: types.ActorAgent,
	})
	if err != nil {
		t.Fatal(err)
	}
	rejected, err := svc.RejectEdit(ctx, "acme", edit.ID)
	if err != nil {
		t.Fatalf("RejectEdit: %v", err)
	}
	if rejected.Status != types.EditRejected {
		t.Errorf("status: %s", rejected.Status)
	}

	eff, err := s.GetEffectiveChunk("acme", "chk_1")
	if err != nil {
		t.Fatal(err)
	}
	if eff.IsQuarantined {
		t.Error("rejected quarantine applied")
	}
}

func TestCreateEditTargetChecks(t *testing.T) {
	svc, s := newTestService(t)
	seedChunk(t, s, "chk_1", "text")
	ctx := context.Background()

	// Missing target.
	_, err := svc.CreateEdit(ctx, CreateInput{
		Tenant: "acme", TargetType: types.TargetChunk, TargetID: "chk_nope",
		Op: types.OpRetract, ProposedBy: types.ActorHuman,
	})
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("missing target: got %v", err)
	}

	// Cross-tenant target is indistinguishable from missing.
	_, err = svc.CreateEdit(ctx, CreateInput{
		Tenant: "globex", TargetType: types.TargetChunk, TargetID: "chk_1",
		Op: types.OpRetract, ProposedBy: types.ActorHuman,
	})
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("cross-tenant target: got %v", err)
	}

	// Tool actors cannot propose edits.
	_, err = svc.CreateEdit(ctx, CreateInput{
		Tenant: "acme", TargetType: types.TargetChunk, TargetID: "chk_1",
		Op: types.OpRetract, ProposedBy: types.ActorTool,
	})
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("tool proposer: got %v", err)
	}
}

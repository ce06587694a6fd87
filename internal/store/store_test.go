package store

import (
	"errors"
	"testing"
	"time"

	"memoryd/internal/types"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(":memory:")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testBundle(tenant, eventID, chunkID, text string) *RecordBundle {
	now := time.Now().UTC()
	return &RecordBundle{
		Event: types.Event{
			ID:          eventID,
			Tenant:      tenant,
			Session:     "sess_1",
			Channel:     types.ChannelPrivate,
			Actor:       types.Actor{Type: types.ActorHuman, ID: "u1"},
			Kind:        types.KindMessage,
			Sensitivity: types.SensitivityNone,
			Content:     []byte(`{"role":"user","text":"` + text + `"}`),
			Scope:       types.ScopeGlobal,
			Timestamp:   now,
		},
		Chunks: []types.Chunk{{
			ID:            chunkID,
			Tenant:        tenant,
			EventID:       eventID,
			Session:       "sess_1",
			Timestamp:     now,
			Kind:          types.KindMessage,
			Channel:       types.ChannelPrivate,
			Sensitivity:   types.SensitivityNone,
			TokenEstimate: 10,
			Importance:    0.5,
			Text:          text,
			Scope:         types.ScopeGlobal,
		}},
	}
}

func TestWriteBundleAndGet(t *testing.T) {
	s := newTestStore(t)

	if err := s.WriteBundle(testBundle("acme", "evt_1", "chk_1", "the deploy failed on staging")); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	e, err := s.GetEvent("acme", "evt_1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if e.Session != "sess_1" || e.Kind != types.KindMessage {
		t.Errorf("unexpected event: %+v", e)
	}

	chunks, err := s.GetChunksByEvent("acme", "evt_1")
	if err != nil {
		t.Fatalf("GetChunksByEvent: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Text != "the deploy failed on staging" {
		t.Errorf("unexpected chunks: %+v", chunks)
	}

	// Duplicate event id is a conflict.
	err = s.WriteBundle(testBundle("acme", "evt_1", "chk_dup", "again"))
	if !errors.Is(err, types.ErrConflict) {
		t.Errorf("duplicate event: got %v, want ErrConflict", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	s := newTestStore(t)

	if err := s.WriteBundle(testBundle("acme", "evt_1", "chk_1", "acme private data")); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	// Another tenant sees nothing, and the miss is indistinguishable from
	// a nonexistent id.
	if _, err := s.GetEvent("globex", "evt_1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("cross-tenant GetEvent: got %v, want ErrNotFound", err)
	}
	if _, err := s.GetChunk("globex", "chk_1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("cross-tenant GetChunk: got %v, want ErrNotFound", err)
	}

	hits, err := s.SearchEffectiveChunks("globex", "acme private", ChunkFilter{})
	if err != nil {
		t.Fatalf("SearchEffectiveChunks: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("cross-tenant search returned %d hits", len(hits))
	}
}

func TestSearchEffectiveChunks(t *testing.T) {
	s := newTestStore(t)

	if err := s.WriteBundle(testBundle("acme", "evt_1", "chk_1", "postgres connection pool exhausted")); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}
	if err := s.WriteBundle(testBundle("acme", "evt_2", "chk_2", "frontend build pipeline is green")); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	hits, err := s.SearchEffectiveChunks("acme", "postgres pool", ChunkFilter{})
	if err != nil {
		t.Fatalf("SearchEffectiveChunks: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "chk_1" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
	if hits[0].Similarity <= 0 || hits[0].Similarity > 1 {
		t.Errorf("similarity out of range: %v", hits[0].Similarity)
	}
}

func proposeAndApprove(t *testing.T, s *LocalStore, tenant string, e types.MemoryEdit) {
	t.Helper()
	e.Status = types.EditPending
	e.CreatedAt = time.Now().UTC()
	if err := s.InsertEdit(&e); err != nil {
		t.Fatalf("InsertEdit(%s): %v", e.ID, err)
	}
	if _, err := s.ResolveEdit(tenant, e.ID, true, "human:reviewer", time.Now().UTC()); err != nil {
		t.Fatalf("ResolveEdit(%s): %v", e.ID, err)
	}
}

func TestAmendRefreshesSearchText(t *testing.T) {
	s := newTestStore(t)

	if err := s.WriteBundle(testBundle("acme", "evt_1", "chk_1", "the API key rotation happens on fridays")); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	newText := "the API key rotation happens on mondays"
	proposeAndApprove(t, s, "acme", types.MemoryEdit{
		ID:         "edt_1",
		Tenant:     "acme",
		TargetType: types.TargetChunk,
		TargetID:   "chk_1",
		Op:         types.OpAmend,
		ProposedBy: types.ActorHuman,
		Patch:      types.EditPatch{Text: &newText},
	})

	// Search on the amended text hits; the superseded wording does not.
	hits, err := s.SearchEffectiveChunks("acme", "mondays", ChunkFilter{})
	if err != nil {
		t.Fatalf("search amended: %v", err)
	}
	if len(hits) != 1 || hits[0].Text != newText {
		t.Fatalf("amended text not searchable: %+v", hits)
	}
	hits, err = s.SearchEffectiveChunks("acme", "fridays", ChunkFilter{})
	if err != nil {
		t.Fatalf("search original: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("original text still searchable: %+v", hits)
	}

	// The raw chunk is untouched.
	raw, err := s.GetChunk("acme", "chk_1")
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if raw.Text != "the API key rotation happens on fridays" {
		t.Errorf("raw chunk mutated: %q", raw.Text)
	}
}

func TestRetractHidesFromSearchNotDirectGet(t *testing.T) {
	s := newTestStore(t)

	if err := s.WriteBundle(testBundle("acme", "evt_1", "chk_1", "we will migrate to kubernetes")); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}
	proposeAndApprove(t, s, "acme", types.MemoryEdit{
		ID:         "edt_1",
		Tenant:     "acme",
		TargetType: types.TargetChunk,
		TargetID:   "chk_1",
		Op:         types.OpRetract,
		ProposedBy: types.ActorHuman,
	})

	hits, err := s.SearchEffectiveChunks("acme", "kubernetes", ChunkFilter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("retracted chunk surfaced in search: %+v", hits)
	}

	eff, err := s.GetEffectiveChunk("acme", "chk_1")
	if err != nil {
		t.Fatalf("GetEffectiveChunk: %v", err)
	}
	if !eff.IsRetracted {
		t.Error("direct get should flag retraction")
	}
}

func TestComposeEffectiveImportance(t *testing.T) {
	base := types.Chunk{ID: "chk_1", Importance: 0.5, Text: "x"}
	delta1, delta2 := -0.2, -0.1
	abs := 0.9
	at := func(op types.EditOp, p types.EditPatch, seq int) types.MemoryEdit {
		ts := time.Unix(int64(1000+seq), 0)
		return types.MemoryEdit{
			ID: "edt_" + string(rune('a'+seq)), Op: op, Patch: p,
			Status: types.EditApproved, AppliedAt: &ts,
		}
	}

	// Deltas accumulate on the base.
	eff := ComposeEffective(base, []types.MemoryEdit{
		at(types.OpAttenuate, types.EditPatch{ImportanceDelta: &delta1}, 0),
		at(types.OpAttenuate, types.EditPatch{ImportanceDelta: &delta2}, 1),
	})
	if got := eff.Importance; got < 0.19 || got > 0.21 {
		t.Errorf("delta accumulation: got %v, want 0.2", got)
	}

	// A later absolute attenuation wins over earlier deltas.
	eff = ComposeEffective(base, []types.MemoryEdit{
		at(types.OpAttenuate, types.EditPatch{ImportanceDelta: &delta1}, 0),
		at(types.OpAttenuate, types.EditPatch{Importance: &abs}, 1),
	})
	if eff.Importance != 0.9 {
		t.Errorf("absolute attenuation: got %v, want 0.9", eff.Importance)
	}

	// Clamped to [0,1].
	big := -2.0
	eff = ComposeEffective(base, []types.MemoryEdit{
		at(types.OpAttenuate, types.EditPatch{ImportanceDelta: &big}, 0),
	})
	if eff.Importance != 0 {
		t.Errorf("clamp: got %v, want 0", eff.Importance)
	}

	// Blocks union across edits.
	eff = ComposeEffective(base, []types.MemoryEdit{
		at(types.OpBlock, types.EditPatch{Channel: types.ChannelPublic}, 0),
		at(types.OpBlock, types.EditPatch{Channel: types.ChannelTeam}, 1),
		at(types.OpBlock, types.EditPatch{Channel: types.ChannelPublic}, 2),
	})
	if len(eff.BlockedChannels) != 2 {
		t.Errorf("block union: got %v", eff.BlockedChannels)
	}
	if eff.EditsApplied != 3 {
		t.Errorf("edits applied: got %d, want 3", eff.EditsApplied)
	}
}

func TestResolveEditConflicts(t *testing.T) {
	s := newTestStore(t)

	if err := s.WriteBundle(testBundle("acme", "evt_1", "chk_1", "text")); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	edit := types.MemoryEdit{
		ID: "edt_1", Tenant: "acme", TargetType: types.TargetChunk,
		TargetID: "chk_1", Op: types.OpRetract, ProposedBy: types.ActorAgent,
		Status: types.EditPending, CreatedAt: time.Now().UTC(),
	}
	if err := s.InsertEdit(&edit); err != nil {
		t.Fatalf("InsertEdit: %v", err)
	}
	if _, err := s.ResolveEdit("acme", "edt_1", false, "human:reviewer", time.Now().UTC()); err != nil {
		t.Fatalf("reject: %v", err)
	}
	// Resolved edits are immutable; a second resolution sees no pending edit.
	if _, err := s.ResolveEdit("acme", "edt_1", true, "human:reviewer", time.Now().UTC()); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("double resolve: got %v, want ErrNotFound", err)
	}

	// Edit against a missing target is NotFound at proposal time.
	bad := types.MemoryEdit{
		ID: "edt_2", Tenant: "acme", TargetType: types.TargetChunk,
		TargetID: "chk_missing", Op: types.OpRetract,
		ProposedBy: types.ActorAgent, Status: types.EditPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.InsertEdit(&bad); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("missing target: got %v, want ErrNotFound", err)
	}
}

func TestDecisionSupersede(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	b := testBundle("acme", "evt_1", "chk_1", "decision recorded")
	b.Decision = &types.Decision{
		ID: "dec_1", Tenant: "acme", Status: types.DecisionActive,
		Scope: types.ScopeProject, Decision: "use sqlite", CreatedAt: now,
	}
	if err := s.WriteBundle(b); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	b2 := testBundle("acme", "evt_2", "chk_2", "decision revised")
	b2.Decision = &types.Decision{
		ID: "dec_2", Tenant: "acme", Status: types.DecisionActive,
		Scope: types.ScopeProject, Decision: "use postgres",
		Supersedes: "dec_1", CreatedAt: now.Add(time.Second),
	}
	b2.SupersededDecisionID = "dec_1"
	if err := s.WriteBundle(b2); err != nil {
		t.Fatalf("WriteBundle supersede: %v", err)
	}

	d1, err := s.GetDecision("acme", "dec_1")
	if err != nil {
		t.Fatalf("GetDecision: %v", err)
	}
	if d1.Status != types.DecisionSuperseded {
		t.Errorf("dec_1 status: got %s", d1.Status)
	}

	active, err := s.ListDecisions("acme", DecisionFilter{Status: types.DecisionActive})
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(active) != 1 || active[0].ID != "dec_2" {
		t.Errorf("active decisions: %+v", active)
	}

	// Superseding a non-active decision is a conflict.
	b3 := testBundle("acme", "evt_3", "chk_3", "third")
	b3.Decision = &types.Decision{
		ID: "dec_3", Tenant: "acme", Status: types.DecisionActive,
		Scope: types.ScopeProject, Decision: "use mysql",
		Supersedes: "dec_1", CreatedAt: now.Add(2 * time.Second),
	}
	b3.SupersededDecisionID = "dec_1"
	if err := s.WriteBundle(b3); !errors.Is(err, types.ErrConflict) {
		t.Errorf("supersede superseded: got %v, want ErrConflict", err)
	}
}

func TestCapsuleLifecycle(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	c := &types.Capsule{
		ID: "cap_1", Tenant: "acme", Scope: types.ScopeSession,
		AuthorAgentID: "agent-a", AudienceAgentIDs: []string{"agent-b", "agent-c"},
		Items:   types.CapsuleItems{Chunks: []string{"chk_1"}},
		TTLDays: 7, CreatedAt: now, ExpiresAt: now.Add(7 * 24 * time.Hour),
		Status: types.CapsuleActive,
	}
	if err := s.InsertCapsule(c); err != nil {
		t.Fatalf("InsertCapsule: %v", err)
	}

	forB, err := s.ListCapsulesForAudience("acme", "agent-b", now)
	if err != nil {
		t.Fatalf("ListCapsulesForAudience: %v", err)
	}
	if len(forB) != 1 {
		t.Fatalf("agent-b capsules: %d", len(forB))
	}
	forX, err := s.ListCapsulesForAudience("acme", "agent-x", now)
	if err != nil {
		t.Fatalf("ListCapsulesForAudience: %v", err)
	}
	if len(forX) != 0 {
		t.Errorf("agent-x should see no capsules, got %d", len(forX))
	}

	if err := s.RevokeCapsule("acme", "cap_1", now.Add(time.Hour)); err != nil {
		t.Fatalf("RevokeCapsule: %v", err)
	}
	// Re-revoking is a no-op that keeps the original revoked_at.
	if err := s.RevokeCapsule("acme", "cap_1", now.Add(2*time.Hour)); err != nil {
		t.Errorf("double revoke: got %v, want nil", err)
	}
	got, err := s.GetCapsule("acme", "cap_1")
	if err != nil {
		t.Fatalf("GetCapsule: %v", err)
	}
	if got.Status != types.CapsuleRevoked || got.RevokedAt == nil || !got.RevokedAt.Equal(now.Add(time.Hour)) {
		t.Errorf("revocation state: status=%s revoked_at=%v", got.Status, got.RevokedAt)
	}

	forB, err = s.ListCapsulesForAudience("acme", "agent-b", now.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("ListCapsulesForAudience: %v", err)
	}
	if len(forB) != 0 {
		t.Errorf("revoked capsule still listed")
	}
}

func TestGraphCycleDetection(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	for _, id := range []string{"evt_a", "evt_b", "evt_c"} {
		if err := s.WriteBundle(testBundle("acme", id, "chk_"+id, "node "+id)); err != nil {
			t.Fatalf("WriteBundle(%s): %v", id, err)
		}
	}

	mk := func(id, from, to string, et types.EdgeType) *types.Edge {
		return &types.Edge{
			ID: id, Tenant: "acme", FromNode: from, ToNode: to, Type: et,
			CreatedAt: now, UpdatedAt: now,
		}
	}

	if _, err := s.UpsertEdge(mk("edge_1", "evt_a", "evt_b", types.EdgeDependsOn)); err != nil {
		t.Fatalf("edge a->b: %v", err)
	}
	if _, err := s.UpsertEdge(mk("edge_2", "evt_b", "evt_c", types.EdgeDependsOn)); err != nil {
		t.Fatalf("edge b->c: %v", err)
	}
	// c depends_on a would close the cycle.
	if _, err := s.UpsertEdge(mk("edge_3", "evt_c", "evt_a", types.EdgeDependsOn)); !errors.Is(err, types.ErrCircularDependency) {
		t.Errorf("cycle edge: got %v, want ErrCircularDependency", err)
	}
	// Same endpoints with a different type are fine.
	if _, err := s.UpsertEdge(mk("edge_4", "evt_c", "evt_a", types.EdgeRelatedTo)); err != nil {
		t.Errorf("related_to edge: %v", err)
	}

	// Unknown endpoint is NotFound.
	if _, err := s.UpsertEdge(mk("edge_5", "evt_a", "evt_missing", types.EdgeReferences)); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("missing endpoint: got %v, want ErrNotFound", err)
	}

	edges, err := s.GetEdges("acme", "evt_b", types.DirectionBoth, nil)
	if err != nil {
		t.Fatalf("GetEdges: %v", err)
	}
	if len(edges) != 2 {
		t.Errorf("evt_b edges: got %d, want 2", len(edges))
	}
}

func TestUpsertEdgeMergesProperties(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	for _, id := range []string{"evt_a", "evt_b"} {
		if err := s.WriteBundle(testBundle("acme", id, "chk_"+id, "node")); err != nil {
			t.Fatalf("WriteBundle: %v", err)
		}
	}

	first := &types.Edge{
		ID: "edge_1", Tenant: "acme", FromNode: "evt_a", ToNode: "evt_b",
		Type: types.EdgeReferences, Properties: map[string]interface{}{"weight": 1.0},
		CreatedAt: now, UpdatedAt: now,
	}
	if _, err := s.UpsertEdge(first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := &types.Edge{
		ID: "edge_2", Tenant: "acme", FromNode: "evt_a", ToNode: "evt_b",
		Type: types.EdgeReferences, Properties: map[string]interface{}{"note": "dup"},
		CreatedAt: now.Add(time.Second), UpdatedAt: now.Add(time.Second),
	}
	merged, err := s.UpsertEdge(second)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if merged.ID != "edge_1" {
		t.Errorf("merge should keep original edge id, got %s", merged.ID)
	}
	if merged.Properties["weight"] != 1.0 || merged.Properties["note"] != "dup" {
		t.Errorf("properties not merged: %+v", merged.Properties)
	}
}

func TestPurgeEventCascades(t *testing.T) {
	s := newTestStore(t)

	if err := s.WriteBundle(testBundle("acme", "evt_1", "chk_1", "sensitive thing to purge")); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}
	if err := s.PurgeEvent("acme", "evt_1"); err != nil {
		t.Fatalf("PurgeEvent: %v", err)
	}

	if _, err := s.GetEvent("acme", "evt_1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("event survived purge: %v", err)
	}
	if _, err := s.GetChunk("acme", "chk_1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("chunk survived purge: %v", err)
	}
	hits, err := s.SearchEffectiveChunks("acme", "sensitive purge", ChunkFilter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("fts row survived purge")
	}
	// Cross-tenant purge does not touch the row.
	if err := s.PurgeEvent("globex", "evt_1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("cross-tenant purge: got %v, want ErrNotFound", err)
	}
}

func TestTaskUpsertAndList(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	task := &types.Task{
		ID: "tsk_1", Tenant: "acme", Status: types.TaskOpen,
		Title: "fix flaky retrieval test", Priority: 2,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.UpsertTask(task); err != nil {
		t.Fatalf("UpsertTask: %v", err)
	}

	task.Status = types.TaskDoing
	task.Progress = 0.4
	task.UpdatedAt = now.Add(time.Minute)
	if err := s.UpsertTask(task); err != nil {
		t.Fatalf("UpsertTask update: %v", err)
	}

	got, err := s.GetTask("acme", "tsk_1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != types.TaskDoing || got.Progress != 0.4 {
		t.Errorf("update not applied: %+v", got)
	}

	doing, err := s.ListTasks("acme", TaskFilter{Status: types.TaskDoing})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(doing) != 1 {
		t.Errorf("doing tasks: %d", len(doing))
	}
}

func TestNotesAndHandoffs(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	note := &types.KnowledgeNote{
		ID: "kn_1", Tenant: "acme", Scope: types.ScopeProject,
		Title: "retrieval tuning", Text: "bm25 alone misses paraphrases",
		Layer: "reflection", CreatedAt: now,
	}
	if err := s.InsertNote(note); err != nil {
		t.Fatalf("InsertNote: %v", err)
	}
	notes, err := s.ListNotes("acme", NoteFilter{Layer: "reflection"})
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(notes) != 1 || notes[0].Title != "retrieval tuning" {
		t.Errorf("notes: %+v", notes)
	}

	b := testBundle("acme", "evt_1", "chk_1", "handoff recorded")
	b.Handoff = &types.SessionHandoff{
		ID: "hand_1", Tenant: "acme", Session: "sess_1", AgentID: "agent-a",
		Summary: "migrated schema, tests pending", OpenItems: []string{"run CI"},
		CreatedAt: now,
	}
	if err := s.WriteBundle(b); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	h, err := s.LatestHandoff("acme", "")
	if err != nil {
		t.Fatalf("LatestHandoff: %v", err)
	}
	if h.Summary != "migrated schema, tests pending" || len(h.OpenItems) != 1 {
		t.Errorf("handoff: %+v", h)
	}
	if _, err := s.LatestHandoff("globex", ""); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("cross-tenant handoff: got %v", err)
	}
}

func TestListEventsStableOrderOnEqualTimestamps(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Insert out of id order; all three share one timestamp.
	for _, id := range []string{"evt_b", "evt_a", "evt_c"} {
		b := testBundle("acme", id, "chk_"+id, "burst event")
		b.Event.Timestamp = ts
		b.Chunks[0].Timestamp = ts
		if err := s.WriteBundle(b); err != nil {
			t.Fatalf("WriteBundle(%s): %v", id, err)
		}
	}

	events, err := s.ListEvents("acme", EventFilter{})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events: %d", len(events))
	}
	for i, want := range []string{"evt_c", "evt_b", "evt_a"} {
		if events[i].ID != want {
			t.Errorf("events[%d] = %s, want %s", i, events[i].ID, want)
		}
	}

	// A limited page takes the head of that same order.
	page, err := s.ListEvents("acme", EventFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListEvents limited: %v", err)
	}
	if len(page) != 2 || page[0].ID != "evt_c" || page[1].ID != "evt_b" {
		t.Errorf("page: %+v", page)
	}
}

func TestSearchRetractedDoesNotConsumeLimit(t *testing.T) {
	s := newTestStore(t)

	for i, text := range []string{
		"kubernetes migration plan draft one",
		"kubernetes migration plan draft two",
	} {
		id := string(rune('1' + i))
		if err := s.WriteBundle(testBundle("acme", "evt_"+id, "chk_"+id, text)); err != nil {
			t.Fatalf("WriteBundle: %v", err)
		}
		proposeAndApprove(t, s, "acme", types.MemoryEdit{
			ID: "edt_" + id, Tenant: "acme", TargetType: types.TargetChunk,
			TargetID: "chk_" + id, Op: types.OpRetract, ProposedBy: types.ActorHuman,
		})
	}
	if err := s.WriteBundle(testBundle("acme", "evt_live", "chk_live", "kubernetes migration final runbook")); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	// The retracted chunks may outrank the live one, but they must not
	// occupy its result slot.
	hits, err := s.SearchEffectiveChunks("acme", "kubernetes", ChunkFilter{Limit: 1})
	if err != nil {
		t.Fatalf("SearchEffectiveChunks: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "chk_live" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestSearchFallsBackWithoutTextIndex(t *testing.T) {
	s := newTestStore(t)

	if err := s.WriteBundle(testBundle("acme", "evt_1", "chk_1", "postgres connection pool exhausted")); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}
	s.ftsExt = false

	// Writes keep working without the index.
	if err := s.WriteBundle(testBundle("acme", "evt_2", "chk_2", "postgres replica lag spike")); err != nil {
		t.Fatalf("WriteBundle without index: %v", err)
	}

	hits, err := s.SearchEffectiveChunks("acme", "postgres pool", ChunkFilter{})
	if err != nil {
		t.Fatalf("fallback search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits: %+v", hits)
	}
	// Full term coverage ranks first.
	if hits[0].ID != "chk_1" || hits[0].Similarity != 1.0 {
		t.Errorf("best hit: %s (%v)", hits[0].ID, hits[0].Similarity)
	}
	if hits[1].Similarity >= hits[0].Similarity || hits[1].Similarity <= 0 {
		t.Errorf("partial hit similarity: %v", hits[1].Similarity)
	}

	// Retraction still hides chunks on the fallback path.
	proposeAndApprove(t, s, "acme", types.MemoryEdit{
		ID: "edt_1", Tenant: "acme", TargetType: types.TargetChunk,
		TargetID: "chk_1", Op: types.OpRetract, ProposedBy: types.ActorHuman,
	})
	hits, err = s.SearchEffectiveChunks("acme", "pool exhausted", ChunkFilter{})
	if err != nil {
		t.Fatalf("search after retract: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("retracted chunk surfaced: %+v", hits)
	}

	if hits, err := s.SearchEffectiveChunks("globex", "postgres", ChunkFilter{}); err != nil || len(hits) != 0 {
		t.Errorf("cross-tenant fallback search: %v, %v", hits, err)
	}
}

func TestGetStats(t *testing.T) {
	s := newTestStore(t)

	if err := s.WriteBundle(testBundle("acme", "evt_1", "chk_1", "a row")); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}
	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats["events"] != 1 || stats["chunks"] != 1 {
		t.Errorf("stats: %+v", stats)
	}
}

package tools

import (
	"context"
	"encoding/json"
	"testing"

	"memoryd/internal/assembler"
	"memoryd/internal/capsule"
	"memoryd/internal/config"
	"memoryd/internal/graph"
	"memoryd/internal/mode"
	"memoryd/internal/policy"
	"memoryd/internal/recorder"
	"memoryd/internal/retrieval"
	"memoryd/internal/store"
	"memoryd/internal/surgery"
)

func newTestRegistry(t *testing.T) (*Registry, *store.LocalStore) {
	t.Helper()
	s, err := store.NewLocalStore(":memory:")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := config.Default()
	p := policy.NewEngine(cfg.Privacy)
	ret := retrieval.New(s, p, nil, cfg.Retrieval)
	caps := capsule.New(s, cfg.Capsules)
	asm := assembler.New(s, ret, caps, mode.NewStickyRegistry(), cfg.Budget)
	deps := Deps{
		Store:     s,
		Recorder:  recorder.New(s, p, cfg.Ingestion),
		Assembler: asm,
		Retrieval: ret,
		Surgery:   surgery.New(s),
		Capsules:  caps,
		Graph:     graph.New(s, cfg.Graph),
	}
	return BuildRegistry(deps), s
}

func dispatch(t *testing.T, r *Registry, tool string, args map[string]any) Response {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return r.Dispatch(context.Background(), Request{Tool: tool, Args: raw})
}

func TestManifestCoversToolSet(t *testing.T) {
	r, _ := newTestRegistry(t)

	want := []string{
		"record_event", "build_acb", "get_event", "get_chunk", "search_chunks",
		"get_chunk_timeline", "query_decisions", "create_edit", "approve_edit",
		"reject_edit", "get_edit", "list_edits", "create_capsule", "get_capsule",
		"list_capsules", "revoke_capsule", "create_edge", "get_edges", "traverse",
		"update_edge_properties", "delete_edge", "get_project_tasks",
		"upsert_task", "get_task", "list_tasks", "get_task_dependencies",
		"get_project_summary",
		"create_handoff", "get_latest_handoff", "get_stats", "purge_event",
	}
	if r.Count() != len(want) {
		t.Errorf("tool count: %d, want %d (%v)", r.Count(), len(want), r.Names())
	}
	for _, name := range want {
		if r.Get(name) == nil {
			t.Errorf("missing tool %s", name)
		}
	}

	manifest := r.Manifest()
	if len(manifest) != r.Count() {
		t.Errorf("manifest size: %d", len(manifest))
	}
	for _, entry := range manifest {
		if entry.Description == "" {
			t.Errorf("tool %s has no description", entry.Name)
		}
	}
}

func TestDispatchRecordAndSearch(t *testing.T) {
	r, _ := newTestRegistry(t)

	resp := dispatch(t, r, "record_event", map[string]any{
		"tenant_id":  "acme",
		"session_id": "sess_1",
		"channel":    "private",
		"actor":      map[string]any{"type": "human", "id": "u1"},
		"kind":       "message",
		"content":    map[string]any{"text": "the migration needs a dry run first"},
	})
	if !resp.OK {
		t.Fatalf("record_event failed: %+v", resp.Error)
	}
	var recorded struct {
		EventID  string   `json:"EventID"`
		ChunkIDs []string `json:"ChunkIDs"`
	}
	if err := json.Unmarshal(resp.Result, &recorded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if recorded.EventID == "" || len(recorded.ChunkIDs) != 1 {
		t.Fatalf("record result: %+v", recorded)
	}

	resp = dispatch(t, r, "search_chunks", map[string]any{
		"tenant_id": "acme",
		"query":     "migration dry run",
		"channel":   "private",
	})
	if !resp.OK {
		t.Fatalf("search_chunks failed: %+v", resp.Error)
	}
	var search struct {
		PoolSize int `json:"pool_size"`
	}
	if err := json.Unmarshal(resp.Result, &search); err != nil {
		t.Fatal(err)
	}
	if search.PoolSize != 1 {
		t.Errorf("pool size: %d", search.PoolSize)
	}

	resp = dispatch(t, r, "get_event", map[string]any{
		"tenant_id": "acme",
		"event_id":  recorded.EventID,
	})
	if !resp.OK {
		t.Fatalf("get_event failed: %+v", resp.Error)
	}
}

func TestDispatchErrorKinds(t *testing.T) {
	r, _ := newTestRegistry(t)

	// Unknown tool.
	resp := dispatch(t, r, "no_such_tool", map[string]any{"tenant_id": "acme"})
	if resp.OK || resp.Error.Kind != "invalid_input" {
		t.Errorf("unknown tool: %+v", resp.Error)
	}

	// Missing tenant.
	resp = dispatch(t, r, "get_stats", map[string]any{})
	if resp.OK || resp.Error.Kind != "invalid_input" {
		t.Errorf("missing tenant: %+v", resp.Error)
	}

	// Session-scoped tool without session_id.
	resp = dispatch(t, r, "record_event", map[string]any{
		"tenant_id": "acme", "channel": "private",
		"actor":   map[string]any{"type": "human", "id": "u1"},
		"kind":    "message",
		"content": map[string]any{"text": "x"},
	})
	if resp.OK || resp.Error.Kind != "invalid_input" {
		t.Errorf("missing session: %+v", resp.Error)
	}

	// Missing required schema argument.
	resp = dispatch(t, r, "get_event", map[string]any{"tenant_id": "acme"})
	if resp.OK || resp.Error.Kind != "invalid_input" {
		t.Errorf("missing required arg: %+v", resp.Error)
	}

	// Domain NotFound surfaces with its kind.
	resp = dispatch(t, r, "get_event", map[string]any{
		"tenant_id": "acme", "event_id": "evt_nope",
	})
	if resp.OK || resp.Error.Kind != "not_found" {
		t.Errorf("missing event: %+v", resp.Error)
	}
}

func TestDispatchSurgeryFlow(t *testing.T) {
	r, _ := newTestRegistry(t)

	resp := dispatch(t, r, "record_event", map[string]any{
		"tenant_id": "acme", "session_id": "sess_1", "channel": "private",
		"actor":   map[string]any{"type": "human", "id": "u1"},
		"kind":    "message",
		"content": map[string]any{"text": "the database password is rotated monthly"},
	})
	if !resp.OK {
		t.Fatalf("record: %+v", resp.Error)
	}
	var recorded struct {
		ChunkIDs []string `json:"ChunkIDs"`
	}
	if err := json.Unmarshal(resp.Result, &recorded); err != nil {
		t.Fatal(err)
	}

	resp = dispatch(t, r, "create_edit", map[string]any{
		"tenant_id":   "acme",
		"target_type": "chunk",
		"target_id":   recorded.ChunkIDs[0],
		"op":          "retract",
		"proposed_by": "human",
		"reason":      "sensitive operational detail",
	})
	if !resp.OK {
		t.Fatalf("create_edit: %+v", resp.Error)
	}
	var edit struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Result, &edit); err != nil {
		t.Fatal(err)
	}
	if edit.Status != "pending" {
		t.Errorf("edit status: %s", edit.Status)
	}

	resp = dispatch(t, r, "approve_edit", map[string]any{
		"tenant_id": "acme", "edit_id": edit.ID, "approved_by": "human:lead",
	})
	if !resp.OK {
		t.Fatalf("approve_edit: %+v", resp.Error)
	}

	// Retracted chunk no longer surfaces in search.
	resp = dispatch(t, r, "search_chunks", map[string]any{
		"tenant_id": "acme", "query": "database password", "channel": "private",
	})
	if !resp.OK {
		t.Fatal(resp.Error)
	}
	var search struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(resp.Result, &search); err != nil {
		t.Fatal(err)
	}
	if len(search.Results) != 0 {
		t.Errorf("retracted chunk surfaced: %d results", len(search.Results))
	}

	// Re-approving a settled edit reads as missing.
	resp = dispatch(t, r, "approve_edit", map[string]any{
		"tenant_id": "acme", "edit_id": edit.ID, "approved_by": "human:lead",
	})
	if resp.OK || resp.Error.Kind != "not_found" {
		t.Errorf("re-approve: %+v", resp.Error)
	}
}

func TestDispatchGraphAndTasks(t *testing.T) {
	r, _ := newTestRegistry(t)

	mkTask := func(title string) string {
		resp := dispatch(t, r, "upsert_task", map[string]any{
			"tenant_id": "acme", "title": title,
		})
		if !resp.OK {
			t.Fatalf("upsert_task: %+v", resp.Error)
		}
		var task struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(resp.Result, &task); err != nil {
			t.Fatal(err)
		}
		return task.ID
	}
	a, b, c := mkTask("a"), mkTask("b"), mkTask("c")

	for _, pair := range [][2]string{{a, b}, {b, c}} {
		resp := dispatch(t, r, "create_edge", map[string]any{
			"tenant_id": "acme", "from": pair[0], "to": pair[1], "type": "depends_on",
		})
		if !resp.OK {
			t.Fatalf("create_edge: %+v", resp.Error)
		}
	}
	resp := dispatch(t, r, "create_edge", map[string]any{
		"tenant_id": "acme", "from": c, "to": a, "type": "depends_on",
	})
	if resp.OK || resp.Error.Kind != "circular_dependency" {
		t.Errorf("cycle: %+v", resp.Error)
	}

	resp = dispatch(t, r, "get_task_dependencies", map[string]any{
		"tenant_id": "acme", "task_id": a,
	})
	if !resp.OK {
		t.Fatalf("get_task_dependencies: %+v", resp.Error)
	}
	var depsOut struct {
		DependsOn []struct {
			NodeID string `json:"node_id"`
		} `json:"depends_on"`
	}
	if err := json.Unmarshal(resp.Result, &depsOut); err != nil {
		t.Fatal(err)
	}
	if len(depsOut.DependsOn) != 2 {
		t.Errorf("depends_on chain: %+v", depsOut.DependsOn)
	}
}

func TestDispatchBuildACB(t *testing.T) {
	r, _ := newTestRegistry(t)

	resp := dispatch(t, r, "record_event", map[string]any{
		"tenant_id": "acme", "session_id": "sess_1", "channel": "agent",
		"actor":   map[string]any{"type": "agent", "id": "bot"},
		"kind":    "message",
		"content": map[string]any{"text": "retries use exponential backoff"},
	})
	if !resp.OK {
		t.Fatalf("record: %+v", resp.Error)
	}

	resp = dispatch(t, r, "build_acb", map[string]any{
		"tenant_id": "acme", "session_id": "sess_1",
		"intent": "debug", "query_text": "backoff retries error",
	})
	if !resp.OK {
		t.Fatalf("build_acb: %+v", resp.Error)
	}
	var acb struct {
		ID   string `json:"acb_id"`
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(resp.Result, &acb); err != nil {
		t.Fatal(err)
	}
	if acb.Mode != "DEBUGGING" || acb.ID == "" {
		t.Errorf("acb: %+v", acb)
	}
}

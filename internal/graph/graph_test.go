package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"memoryd/internal/config"
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
	return New(s, config.DefaultGraphConfig()), s
}

// seedTask registers a task row (and therefore a node) to hang edges off.
func seedTask(t *testing.T, s *store.LocalStore, id, title string, status types.TaskStatus, priority int, created time.Time) {
	t.Helper()
	err := s.UpsertTask(&types.Task{
		ID: id, Tenant: "acme", Status: status, Title: title,
		Priority: priority, CreatedAt: created, UpdatedAt: created,
	})
	if err != nil {
		t.Fatalf("seed task %s: %v", id, err)
	}
}

func TestCreateEdgeValidation(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedTask(t, s, "tsk_a", "a", types.TaskOpen, 0, now)
	seedTask(t, s, "tsk_b", "b", types.TaskOpen, 0, now)

	if _, err := svc.CreateEdge(ctx, "acme", "tsk_a", "tsk_b", "friend_of", nil); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("bad type: %v", err)
	}
	if _, err := svc.CreateEdge(ctx, "acme", "tsk_a", "tsk_missing", types.EdgeRelatedTo, nil); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("missing endpoint: %v", err)
	}
	edge, err := svc.CreateEdge(ctx, "acme", "tsk_a", "tsk_b", types.EdgeRelatedTo, map[string]interface{}{"note": "pair"})
	if err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	if edge.Properties["note"] != "pair" {
		t.Errorf("properties: %v", edge.Properties)
	}
}

func TestTraverseDepthAndCycles(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Chain a -> b -> c -> d -> e -> f -> g, plus a back-edge g -> a.
	nodes := []string{"tsk_a", "tsk_b", "tsk_c", "tsk_d", "tsk_e", "tsk_f", "tsk_g"}
	for _, n := range nodes {
		seedTask(t, s, n, n, types.TaskOpen, 0, now)
	}
	for i := 0; i < len(nodes)-1; i++ {
		if _, err := svc.CreateEdge(ctx, "acme", nodes[i], nodes[i+1], types.EdgeRelatedTo, nil); err != nil {
			t.Fatalf("edge %d: %v", i, err)
		}
	}
	if _, err := svc.CreateEdge(ctx, "acme", "tsk_g", "tsk_a", types.EdgeRelatedTo, nil); err != nil {
		t.Fatalf("back edge: %v", err)
	}

	// Depth cap of 5 truncates silently: a reaches b..f but not g.
	got, err := svc.Traverse("acme", "tsk_a", types.EdgeRelatedTo, types.DirectionOut, 10)
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("traversal size: %d (%+v)", len(got), got)
	}
	for i, n := range got {
		if n.Depth != i+1 {
			t.Errorf("node %s depth %d, want %d", n.NodeID, n.Depth, i+1)
		}
		if n.Kind != "task" {
			t.Errorf("node %s kind %q", n.NodeID, n.Kind)
		}
	}
	if got[0].NodeID != "tsk_b" || got[4].NodeID != "tsk_f" {
		t.Errorf("order: %+v", got)
	}

	// The cycle does not loop forever and the start node is never re-emitted.
	got, err = svc.Traverse("acme", "tsk_a", types.EdgeRelatedTo, types.DirectionOut, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("depth 3: %d nodes", len(got))
	}

	if _, err := svc.Traverse("acme", "tsk_missing", types.EdgeRelatedTo, types.DirectionOut, 3); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("missing start: %v", err)
	}
}

func TestDependsOnCycleRejected(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for _, n := range []string{"tsk_a", "tsk_b", "tsk_c"} {
		seedTask(t, s, n, n, types.TaskOpen, 0, now)
	}
	mustEdge := func(from, to string) {
		t.Helper()
		if _, err := svc.CreateEdge(ctx, "acme", from, to, types.EdgeDependsOn, nil); err != nil {
			t.Fatalf("%s -> %s: %v", from, to, err)
		}
	}
	mustEdge("tsk_a", "tsk_b")
	mustEdge("tsk_b", "tsk_c")
	if _, err := svc.CreateEdge(ctx, "acme", "tsk_c", "tsk_a", types.EdgeDependsOn, nil); !errors.Is(err, types.ErrCircularDependency) {
		t.Errorf("cycle: got %v", err)
	}
}

func TestUpdateAndDeleteEdge(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedTask(t, s, "tsk_a", "a", types.TaskOpen, 0, now)
	seedTask(t, s, "tsk_b", "b", types.TaskOpen, 0, now)

	edge, err := svc.CreateEdge(ctx, "acme", "tsk_a", "tsk_b", types.EdgeRelatedTo,
		map[string]interface{}{"weight": 1.0, "label": "old"})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.UpdateEdgeProperties(ctx, "acme", edge.ID, map[string]interface{}{
		"label": "new", "extra": true,
	})
	if err != nil {
		t.Fatalf("UpdateEdgeProperties: %v", err)
	}
	if updated.Properties["label"] != "new" || updated.Properties["weight"] != 1.0 || updated.Properties["extra"] != true {
		t.Errorf("merge: %v", updated.Properties)
	}
	if !updated.UpdatedAt.After(edge.CreatedAt) && !updated.UpdatedAt.Equal(edge.CreatedAt) {
		t.Errorf("updated_at not refreshed: %v", updated.UpdatedAt)
	}

	if _, err := svc.UpdateEdgeProperties(ctx, "acme", edge.ID, nil); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("empty patch: %v", err)
	}

	if err := svc.DeleteEdge(ctx, "acme", edge.ID); err != nil {
		t.Fatalf("DeleteEdge: %v", err)
	}
	if err := svc.DeleteEdge(ctx, "acme", edge.ID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("double delete: %v", err)
	}
}

func TestProjectTasksBoard(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seedTask(t, s, "tsk_proj", "the project", types.TaskOpen, 0, now)
	seedTask(t, s, "tsk_1", "design schema", types.TaskDone, 1, now.Add(-3*time.Hour))
	seedTask(t, s, "tsk_2", "write importer", types.TaskDoing, 5, now.Add(-2*time.Hour))
	seedTask(t, s, "tsk_3", "ship docs", types.TaskOpen, 2, now.Add(-time.Hour))
	seedTask(t, s, "tsk_4", "cut release", types.TaskOpen, 2, now)

	for _, child := range []string{"tsk_1", "tsk_2", "tsk_3", "tsk_4"} {
		if _, err := svc.CreateEdge(ctx, "acme", "tsk_proj", child, types.EdgeParentOf, nil); err != nil {
			t.Fatalf("edge to %s: %v", child, err)
		}
	}
	// An explicit edge status overrides the task's own lifecycle state.
	edges, err := svc.GetEdges("acme", "tsk_4", types.DirectionIn, nil)
	if err != nil || len(edges) != 1 {
		t.Fatalf("edges for tsk_4: %v %v", edges, err)
	}
	if _, err := svc.UpdateEdgeProperties(ctx, "acme", edges[0].ID, map[string]interface{}{"status": "done"}); err != nil {
		t.Fatal(err)
	}

	board, err := svc.ProjectTasks("acme", "tsk_proj")
	if err != nil {
		t.Fatalf("ProjectTasks: %v", err)
	}
	if len(board.Todo) != 1 || board.Todo[0].NodeID != "tsk_3" {
		t.Errorf("todo: %+v", board.Todo)
	}
	if len(board.Doing) != 1 || board.Doing[0].NodeID != "tsk_2" {
		t.Errorf("doing: %+v", board.Doing)
	}
	if len(board.Done) != 2 {
		t.Fatalf("done: %+v", board.Done)
	}
	// Within a column: priority first, then creation time.
	if board.Done[0].NodeID != "tsk_4" || board.Done[1].NodeID != "tsk_1" {
		t.Errorf("done order: %+v", board.Done)
	}
}

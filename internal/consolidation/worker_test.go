package consolidation

import (
	"context"
	"strconv"
	"testing"
	"time"

	"go.uber.org/goleak"

	"memoryd/internal/config"
	"memoryd/internal/store"
	"memoryd/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T) *store.LocalStore {
	t.Helper()
	s, err := store.NewLocalStore(":memory:")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedChunks(t *testing.T, s *store.LocalStore, tenant string, n int) {
	t.Helper()
	now := time.Now().UTC()
	for i := 0; i < n; i++ {
		id := strconv.Itoa(i)
		err := s.WriteBundle(&store.RecordBundle{
			Event: types.Event{
				ID: "evt_" + tenant + "_" + id, Tenant: tenant, Session: "sess_1",
				Channel: types.ChannelAgent,
				Actor:   types.Actor{Type: types.ActorAgent, ID: "bot"},
				Kind:    types.KindMessage, Sensitivity: types.SensitivityNone,
				Content: []byte(`{"text":"x"}`), Scope: types.ScopeSession,
				Timestamp: now,
			},
			Chunks: []types.Chunk{{
				ID: "chk_" + tenant + "_" + id, Tenant: tenant,
				EventID: "evt_" + tenant + "_" + id, Session: "sess_1",
				Timestamp: now, Kind: types.KindMessage,
				Channel: types.ChannelAgent, Sensitivity: types.SensitivityNone,
				TokenEstimate: 10, Importance: float64(i) / float64(n),
				Text:  "observation number " + id + ". more detail follows",
				Scope: types.ScopeSession,
			}},
		})
		if err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
}

func TestRunOnceWritesDigest(t *testing.T) {
	s := newTestStore(t)
	seedChunks(t, s, "acme", 25)

	cfg := config.DefaultConsolidationConfig()
	cfg.MinChunksPerSummary = 20
	w := New(s, cfg)

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	notes, err := s.ListNotes("acme", store.NoteFilter{Layer: "recent"})
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 {
		t.Fatalf("recent notes: %d", len(notes))
	}
	if notes[0].Layer != "recent" || notes[0].Text == "" {
		t.Errorf("digest: %+v", notes[0])
	}

	// The event log is untouched.
	events, err := s.ListEvents("acme", store.EventFilter{Limit: 100})
	if err != nil || len(events) != 25 {
		t.Errorf("events after pass: %d, %v", len(events), err)
	}
}

func TestRunOnceBelowThreshold(t *testing.T) {
	s := newTestStore(t)
	seedChunks(t, s, "acme", 5)

	cfg := config.DefaultConsolidationConfig()
	cfg.MinChunksPerSummary = 20
	w := New(s, cfg)

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	notes, err := s.ListNotes("acme", store.NoteFilter{Layer: "recent"})
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 0 {
		t.Errorf("digest written below threshold: %+v", notes)
	}
}

func TestRunOnceReflectionLayer(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	err := s.WriteBundle(&store.RecordBundle{
		Event: types.Event{
			ID: "evt_1", Tenant: "acme", Session: "sess_1",
			Channel: types.ChannelAgent,
			Actor:   types.Actor{Type: types.ActorAgent, ID: "bot"},
			Kind:    types.KindDecision, Sensitivity: types.SensitivityNone,
			Content: []byte(`{"decision":"use sqlite"}`), Scope: types.ScopeProject,
			Timestamp: now,
		},
		Decision: &types.Decision{
			ID: "dec_1", Tenant: "acme", Status: types.DecisionActive,
			Scope: types.ScopeProject, Decision: "use sqlite", CreatedAt: now,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	w := New(s, config.DefaultConsolidationConfig())
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	notes, err := s.ListNotes("acme", store.NoteFilter{Layer: "reflection"})
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 {
		t.Fatalf("reflection notes: %d", len(notes))
	}

	// A second pass has no new decisions in its window.
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	notes, err = s.ListNotes("acme", store.NoteFilter{Layer: "reflection"})
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 {
		t.Errorf("duplicate reflection note: %d", len(notes))
	}
}

func TestTenantIsolationInPass(t *testing.T) {
	s := newTestStore(t)
	seedChunks(t, s, "acme", 25)
	seedChunks(t, s, "globex", 3)

	cfg := config.DefaultConsolidationConfig()
	cfg.MinChunksPerSummary = 20
	w := New(s, cfg)
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	acme, _ := s.ListNotes("acme", store.NoteFilter{Layer: "recent"})
	globex, _ := s.ListNotes("globex", store.NoteFilter{Layer: "recent"})
	if len(acme) != 1 || len(globex) != 0 {
		t.Errorf("acme=%d globex=%d", len(acme), len(globex))
	}
}

func TestStartStop(t *testing.T) {
	s := newTestStore(t)
	cfg := config.DefaultConsolidationConfig()
	cfg.Enabled = true
	cfg.IntervalMinutes = 60
	w := New(s, cfg)

	w.Start(context.Background())
	w.Stop()
	// Stop is idempotent.
	w.Stop()

	// Disabled worker never launches a goroutine; Stop is still safe.
	off := New(s, config.DefaultConsolidationConfig())
	off.Start(context.Background())
	off.Stop()
}

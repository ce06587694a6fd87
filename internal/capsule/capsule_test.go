package capsule

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
	return New(s, config.DefaultCapsuleConfig()), s
}

func seedChunk(t *testing.T, s *store.LocalStore, tenant, chunkID string) {
	t.Helper()
	now := time.Now().UTC()
	eventID := "evt_for_" + chunkID
	err := s.WriteBundle(&store.RecordBundle{
		Event: types.Event{
			ID: eventID, Tenant: tenant, Session: "sess_1",
			Channel: types.ChannelAgent,
			Actor:   types.Actor{Type: types.ActorAgent, ID: "alice"},
			Kind:    types.KindMessage, Sensitivity: types.SensitivityNone,
			Content: []byte(`{"text":"finding"}`), Scope: types.ScopeSession,
			Timestamp: now,
		},
		Chunks: []types.Chunk{{
			ID: chunkID, Tenant: tenant, EventID: eventID, Session: "sess_1",
			Timestamp: now, Kind: types.KindMessage, Channel: types.ChannelAgent,
			Sensitivity: types.SensitivityNone, TokenEstimate: 5,
			Importance: 0.5, Text: "finding about the build",
			Scope: types.ScopeSession,
		}},
	})
	if err != nil {
		t.Fatalf("seed chunk: %v", err)
	}
}

func TestCapsuleAudience(t *testing.T) {
	svc, s := newTestService(t)
	seedChunk(t, s, "t1", "chk_1")
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateInput{
		Tenant:        "t1",
		AuthorAgentID: "alice",
		Audience:      []string{"bob"},
		Items:         types.CapsuleItems{Chunks: []string{"chk_1"}},
		Risks:         []string{"may be stale after redeploy"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.TTLDays != 7 {
		t.Errorf("default ttl: %d", c.TTLDays)
	}
	wantExpiry := c.CreatedAt.Add(7 * 24 * time.Hour)
	if !c.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expires_at: %v, want %v", c.ExpiresAt, wantExpiry)
	}

	// Audience agent sees it.
	got, err := svc.Get("t1", c.ID, "bob")
	if err != nil {
		t.Fatalf("Get as bob: %v", err)
	}
	if got.ID != c.ID {
		t.Errorf("got %s", got.ID)
	}
	listed, err := svc.List("t1", "bob")
	if err != nil || len(listed) != 1 {
		t.Fatalf("List as bob: %v, %v", listed, err)
	}

	// Outsider does not, and cannot tell it exists.
	if _, err := svc.Get("t1", c.ID, "carol"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Get as carol: got %v, want ErrNotFound", err)
	}
	listed, err = svc.List("t1", "carol")
	if err != nil || len(listed) != 0 {
		t.Errorf("List as carol: %v, %v", listed, err)
	}

	// After revoke, even the audience sees NotFound.
	if err := svc.Revoke(ctx, "t1", c.ID, "alice"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := svc.Get("t1", c.ID, "bob"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Get after revoke: got %v, want ErrNotFound", err)
	}
	// The author still can.
	if _, err := svc.Get("t1", c.ID, "alice"); err != nil {
		t.Errorf("author get after revoke: %v", err)
	}
}

func TestCapsuleValidation(t *testing.T) {
	svc, s := newTestService(t)
	seedChunk(t, s, "t1", "chk_1")
	ctx := context.Background()

	// Items must exist in tenant.
	_, err := svc.Create(ctx, CreateInput{
		Tenant: "t1", AuthorAgentID: "alice", Audience: []string{"bob"},
		Items: types.CapsuleItems{Chunks: []string{"chk_missing"}},
	})
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("missing item: got %v", err)
	}

	// Cross-tenant items are invisible.
	_, err = svc.Create(ctx, CreateInput{
		Tenant: "t2", AuthorAgentID: "alice", Audience: []string{"bob"},
		Items: types.CapsuleItems{Chunks: []string{"chk_1"}},
	})
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("cross-tenant item: got %v", err)
	}

	// Empty audience and empty items are invalid.
	_, err = svc.Create(ctx, CreateInput{
		Tenant: "t1", AuthorAgentID: "alice",
		Items: types.CapsuleItems{Chunks: []string{"chk_1"}},
	})
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("empty audience: got %v", err)
	}
	_, err = svc.Create(ctx, CreateInput{
		Tenant: "t1", AuthorAgentID: "alice", Audience: []string{"bob"},
	})
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("empty items: got %v", err)
	}
}

func TestRevokePermissions(t *testing.T) {
	svc, s := newTestService(t)
	seedChunk(t, s, "t1", "chk_1")
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateInput{
		Tenant: "t1", AuthorAgentID: "alice", Audience: []string{"bob"},
		Items: types.CapsuleItems{Chunks: []string{"chk_1"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Only the author may revoke; others cannot tell the capsule exists.
	if err := svc.Revoke(ctx, "t1", c.ID, "bob"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("non-author revoke: got %v", err)
	}
	if err := svc.Revoke(ctx, "t1", c.ID, "alice"); err != nil {
		t.Fatalf("author revoke: %v", err)
	}

	first, err := svc.Get("t1", c.ID, "alice")
	if err != nil {
		t.Fatalf("author get after revoke: %v", err)
	}
	if first.Status != types.CapsuleRevoked || first.RevokedAt == nil {
		t.Fatalf("after revoke: status=%s revoked_at=%v", first.Status, first.RevokedAt)
	}

	// Revoking again is a no-op: still revoked, original revoked_at kept.
	if err := svc.Revoke(ctx, "t1", c.ID, "alice"); err != nil {
		t.Errorf("double revoke: got %v, want no-op", err)
	}
	second, err := svc.Get("t1", c.ID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if second.Status != types.CapsuleRevoked {
		t.Errorf("status after double revoke: %s", second.Status)
	}
	if second.RevokedAt == nil || !second.RevokedAt.Equal(*first.RevokedAt) {
		t.Errorf("revoked_at changed on double revoke: %v -> %v", first.RevokedAt, second.RevokedAt)
	}
}

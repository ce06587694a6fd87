// Package capsule implements curated, audience-restricted, TTL-bound memory
// bundles transferable between agents.
package capsule

import (
	"context"
	"time"

	"memoryd/internal/config"
	"memoryd/internal/ids"
	"memoryd/internal/logging"
	"memoryd/internal/store"
	"memoryd/internal/types"
)

// Service creates and serves capsules.
type Service struct {
	store *store.LocalStore
	cfg   config.CapsuleConfig
}

// New builds a capsule service.
func New(s *store.LocalStore, cfg config.CapsuleConfig) *Service {
	return &Service{store: s, cfg: cfg}
}

// CreateInput is one create_capsule request.
type CreateInput struct {
	Tenant        string
	AuthorAgentID string
	Scope         types.Scope
	Subject       types.Subject
	Audience      []string
	Items         types.CapsuleItems
	Risks         []string
	TTLDays       int
}

// Create validates and persists a capsule. Every referenced item must exist
// in the tenant; expires_at = created_at + ttl_days.
func (s *Service) Create(ctx context.Context, in CreateInput) (*types.Capsule, error) {
	timer := logging.StartTimer(logging.CategoryCapsule, "Create")
	defer timer.Stop()

	if err := ctx.Err(); err != nil {
		return nil, types.ErrDeadlineExceeded
	}
	if in.Tenant == "" {
		return nil, types.InvalidInputf("tenant required")
	}
	if in.AuthorAgentID == "" {
		return nil, types.InvalidInputf("author agent required")
	}
	if len(in.Audience) == 0 {
		return nil, types.InvalidInputf("audience required")
	}
	for _, a := range in.Audience {
		if a == "" {
			return nil, types.InvalidInputf("audience agent ids must be non-empty")
		}
	}
	if in.Items.Count() == 0 {
		return nil, types.InvalidInputf("capsule requires at least one item")
	}
	if s.cfg.MaxItems > 0 && in.Items.Count() > s.cfg.MaxItems {
		return nil, types.InvalidInputf("capsule exceeds max items (%d)", s.cfg.MaxItems)
	}
	if in.Scope == "" {
		in.Scope = types.ScopeSession
	}
	if !in.Scope.Valid() {
		return nil, types.InvalidInputf("scope %q unknown", in.Scope)
	}
	ttl := in.TTLDays
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTLDays
	}

	if err := s.verifyItems(in.Tenant, in.Items); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &types.Capsule{
		ID:               ids.New(ids.PrefixCapsule),
		Tenant:           in.Tenant,
		Scope:            in.Scope,
		Subject:          in.Subject,
		AuthorAgentID:    in.AuthorAgentID,
		AudienceAgentIDs: in.Audience,
		Items:            in.Items,
		Risks:            in.Risks,
		TTLDays:          ttl,
		CreatedAt:        now,
		ExpiresAt:        now.Add(time.Duration(ttl) * 24 * time.Hour),
		Status:           types.CapsuleActive,
	}
	if err := s.store.InsertCapsule(c); err != nil {
		return nil, err
	}
	logging.Capsule("Capsule %s created by %s for %d agents (%d items, ttl=%dd)",
		c.ID, c.AuthorAgentID, len(c.AudienceAgentIDs), c.Items.Count(), ttl)
	return c, nil
}

func (s *Service) verifyItems(tenant string, items types.CapsuleItems) error {
	for _, id := range items.Chunks {
		if _, err := s.store.GetChunk(tenant, id); err != nil {
			return err
		}
	}
	for _, id := range items.Decisions {
		if _, err := s.store.GetDecision(tenant, id); err != nil {
			return err
		}
	}
	for _, id := range items.Artifacts {
		if _, err := s.store.GetArtifact(tenant, id); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a capsule for the requesting agent. A capsule that is revoked,
// expired, or not addressed to the agent is indistinguishable from a missing
// one; only the author sees it regardless of status.
func (s *Service) Get(tenant, capsuleID, agentID string) (*types.Capsule, error) {
	c, err := s.store.GetCapsule(tenant, capsuleID)
	if err != nil {
		return nil, err
	}
	if c.AuthorAgentID == agentID {
		return c, nil
	}
	if c.Status != types.CapsuleActive || !c.ExpiresAt.After(time.Now().UTC()) {
		return nil, types.NotFoundf("capsule %s", capsuleID)
	}
	for _, a := range c.AudienceAgentIDs {
		if a == agentID {
			return c, nil
		}
	}
	return nil, types.NotFoundf("capsule %s", capsuleID)
}

// List returns active, unexpired capsules addressed to the agent.
func (s *Service) List(tenant, agentID string) ([]types.Capsule, error) {
	return s.store.ListCapsulesForAudience(tenant, agentID, time.Now().UTC())
}

// Revoke marks a capsule revoked. Only the author may revoke.
func (s *Service) Revoke(ctx context.Context, tenant, capsuleID, agentID string) error {
	if err := ctx.Err(); err != nil {
		return types.ErrDeadlineExceeded
	}
	c, err := s.store.GetCapsule(tenant, capsuleID)
	if err != nil {
		return err
	}
	if c.AuthorAgentID != agentID {
		return types.NotFoundf("capsule %s", capsuleID)
	}
	return s.store.RevokeCapsule(tenant, capsuleID, time.Now().UTC())
}

package assembler

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"memoryd/internal/logging"
	"memoryd/internal/store"
	"memoryd/internal/types"
)

// Rules and identity views are small and change rarely; a short TTL keeps
// them warm without an invalidation protocol.
const (
	viewTTL          = 5 * time.Minute
	viewSweepEvery   = 10 * time.Minute
	rulesViewLimit   = 50
	capsuleItemLimit = 100
)

type viewCache struct {
	c *gocache.Cache
}

func newViewCache() *viewCache {
	return &viewCache{c: gocache.New(viewTTL, viewSweepEvery)}
}

// ruleView is one entry of the tenant's static rules/identity view.
type ruleView struct {
	ID    string
	Title string
	Text  string
}

// rulesView returns the tenant's standing rules and identity notes, cached.
func (a *Assembler) rulesView(tenant string) ([]ruleView, error) {
	key := "rules:" + tenant
	if cached, ok := a.views.c.Get(key); ok {
		return cached.([]ruleView), nil
	}

	notes, err := a.store.ListNotes(tenant, store.NoteFilter{
		Layer: "metadata",
		Limit: rulesViewLimit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]ruleView, 0, len(notes))
	for _, n := range notes {
		out = append(out, ruleView{ID: n.ID, Title: n.Title, Text: n.Text})
	}
	a.views.c.SetDefault(key, out)
	logging.AssemblerDebug("Cached rules view for %s: %d notes", tenant, len(out))
	return out, nil
}

// InvalidateViews drops cached views for a tenant, e.g. after a note write.
func (a *Assembler) InvalidateViews(tenant string) {
	a.views.c.Delete("rules:" + tenant)
}

// capsuleView is a capsule with its items materialized to text.
type capsuleView struct {
	Capsule types.Capsule
	Items   []types.ACBItem
}

// capsuleViews lists the agent's capsules and materializes their items.
// Items hidden by surgery (retracted, quarantined) stay out.
func (a *Assembler) capsuleViews(tenant, agentID string) ([]capsuleView, error) {
	capsules, err := a.capsules.List(tenant, agentID)
	if err != nil {
		return nil, err
	}
	views := make([]capsuleView, 0, len(capsules))
	for _, c := range capsules {
		v := capsuleView{Capsule: c}
		for _, id := range c.Items.Chunks {
			if len(v.Items) >= capsuleItemLimit {
				break
			}
			eff, err := a.store.GetEffectiveChunk(tenant, id)
			if err != nil || eff.IsRetracted || eff.IsQuarantined {
				continue
			}
			v.Items = append(v.Items, types.ACBItem{
				Type:     "capsule_item",
				Text:     eff.Text,
				Refs:     []string{c.ID, eff.ID},
				TokenEst: eff.TokenEstimate,
				Score:    eff.Importance,
			})
		}
		for _, id := range c.Items.Decisions {
			if len(v.Items) >= capsuleItemLimit {
				break
			}
			d, err := a.store.GetDecision(tenant, id)
			if err != nil {
				continue
			}
			text := decisionText(d)
			v.Items = append(v.Items, types.ACBItem{
				Type:     "capsule_item",
				Text:     text,
				Refs:     []string{c.ID, d.ID},
				TokenEst: estimateTokens(text),
				Score:    0.6,
			})
		}
		// Artifact payloads are opaque blobs; capsules carry their ids only.
		views = append(views, v)
	}
	return views, nil
}

func decisionText(d *types.Decision) string {
	text := d.Decision
	if d.Rationale != "" {
		text += " (rationale: " + d.Rationale + ")"
	}
	return text
}

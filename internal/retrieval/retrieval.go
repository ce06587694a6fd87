// Package retrieval generates and ranks chunk candidates for a query:
// lexical (FTS) candidates scored by fused similarity, recency, and
// importance, with an optional hybrid lane that merges vector hits by
// reciprocal rank fusion.
package retrieval

import (
	"context"
	"math"
	"sort"
	"time"

	"memoryd/internal/config"
	"memoryd/internal/embedding"
	"memoryd/internal/logging"
	"memoryd/internal/policy"
	"memoryd/internal/store"
	"memoryd/internal/types"
)

// Engine ranks effective chunks for queries.
type Engine struct {
	store    *store.LocalStore
	policy   *policy.Engine
	embedder embedding.Engine // nil disables the vector lane
	cfg      config.RetrievalConfig
}

// New builds a retrieval engine. embedder may be nil.
func New(s *store.LocalStore, p *policy.Engine, emb embedding.Engine, cfg config.RetrievalConfig) *Engine {
	return &Engine{store: s, policy: p, embedder: emb, cfg: cfg}
}

// Query is one retrieval request.
type Query struct {
	Tenant    string
	Text      string
	Channel   types.Channel
	Mode      types.Mode
	Session   string
	Scope     types.Scope
	Subject   types.Subject
	ProjectID string
	Tag       string

	// Sensitivities overrides the channel's default allow-list when set.
	Sensitivities []types.Sensitivity

	// Hybrid requests the vector lane; ignored when no embedder is wired.
	Hybrid bool

	PoolMax   int // candidate cap; default from config
	ResultMax int // result cap; default from config
}

// Result is one ranked chunk.
type Result struct {
	types.EffectiveChunk
	Score      float64
	Similarity float64
}

// Weights reports the scoring weights in use, for ACB provenance.
func (e *Engine) Weights() map[string]float64 {
	return map[string]float64{
		"alpha": e.cfg.Alpha,
		"beta":  e.cfg.Beta,
		"gamma": e.cfg.Gamma,
	}
}

// Search runs candidate generation, policy filtering, and score fusion.
// The second return value is the candidate pool size before truncation.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, int, error) {
	timer := logging.StartTimer(logging.CategoryRetrieval, "Search")
	defer timer.Stop()

	if err := ctx.Err(); err != nil {
		return nil, 0, types.ErrDeadlineExceeded
	}
	if q.Tenant == "" {
		return nil, 0, types.InvalidInputf("tenant required")
	}

	poolMax := q.PoolMax
	if poolMax <= 0 {
		poolMax = e.cfg.CandidatePoolMax
	}
	resultMax := q.ResultMax
	if resultMax <= 0 {
		resultMax = e.cfg.RetrievedChunksMax
	}

	filter := store.ChunkFilter{
		Session:   q.Session,
		Scope:     q.Scope,
		Subject:   q.Subject,
		ProjectID: q.ProjectID,
		Tag:       q.Tag,
		Limit:     poolMax,
	}

	candidates, err := e.store.SearchEffectiveChunks(q.Tenant, q.Text, filter)
	if err != nil {
		return nil, 0, err
	}

	if q.Hybrid && e.embedder != nil {
		candidates, err = e.fuseWithVectorLane(ctx, q, candidates, poolMax)
		if err != nil {
			// The vector lane is best-effort; lexical results stand.
			logging.Get(logging.CategoryRetrieval).Warn("Vector lane failed, serving lexical only: %v", err)
		}
	}

	allowed := e.allowedSensitivities(q)
	now := time.Now().UTC()
	halfLife := e.halfLifeHours(q.Mode)

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		if !sensitivityAllowed(allowed, c.Sensitivity) {
			continue
		}
		if channelBlocked(c.BlockedChannels, q.Channel) {
			continue
		}
		score := e.cfg.Alpha*c.Similarity +
			e.cfg.Beta*recencyDecay(now, c.Timestamp, halfLife) +
			e.cfg.Gamma*c.Importance
		results = append(results, Result{
			EffectiveChunk: c.EffectiveChunk,
			Score:          score,
			Similarity:     c.Similarity,
		})
	}
	poolSize := len(results)

	// Deterministic order: score desc, then id desc for exact ties.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID > results[j].ID
	})
	if len(results) > resultMax {
		results = results[:resultMax]
	}

	logging.Retrieval("Query %q: %d candidates -> %d results (mode=%s)",
		q.Text, poolSize, len(results), q.Mode)
	return results, poolSize, nil
}

// fuseWithVectorLane merges lexical candidates with ANN hits using
// reciprocal rank fusion, then rebuilds the similarity from the fused rank so
// downstream score fusion stays uniform.
func (e *Engine) fuseWithVectorLane(ctx context.Context, q Query, lexical []store.ScoredChunk, poolMax int) ([]store.ScoredChunk, error) {
	queryEmb, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		return lexical, err
	}
	vector, err := e.store.SearchVector(q.Tenant, queryEmb, poolMax)
	if err != nil {
		return lexical, err
	}
	if len(vector) == 0 {
		return lexical, nil
	}

	k := float64(e.cfg.RRFConstant)
	fused := make(map[string]float64, len(lexical)+len(vector))
	for rank, c := range lexical {
		fused[c.ID] += 1.0 / (k + float64(rank+1))
	}
	for rank, m := range vector {
		fused[m.ChunkID] += 1.0 / (k + float64(rank+1))
	}

	byID := make(map[string]store.ScoredChunk, len(lexical))
	for _, c := range lexical {
		byID[c.ID] = c
	}
	// Vector-only hits need their effective view loaded.
	for _, m := range vector {
		if _, ok := byID[m.ChunkID]; ok {
			continue
		}
		eff, err := e.store.GetEffectiveChunk(q.Tenant, m.ChunkID)
		if err != nil {
			continue
		}
		if eff.IsRetracted || eff.IsQuarantined {
			continue
		}
		byID[m.ChunkID] = store.ScoredChunk{EffectiveChunk: *eff, Similarity: m.Similarity}
	}

	ids := make([]string, 0, len(fused))
	for id := range fused {
		if _, ok := byID[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if fused[ids[i]] != fused[ids[j]] {
			return fused[ids[i]] > fused[ids[j]]
		}
		return ids[i] > ids[j]
	})
	if len(ids) > poolMax {
		ids = ids[:poolMax]
	}

	// Normalize the RRF score into (0,1] as the fused similarity.
	maxFused := fused[ids[0]]
	out := make([]store.ScoredChunk, 0, len(ids))
	for _, id := range ids {
		c := byID[id]
		c.Similarity = fused[id] / maxFused
		out = append(out, c)
	}
	logging.RetrievalDebug("RRF fused %d lexical + %d vector hits into %d candidates",
		len(lexical), len(vector), len(out))
	return out, nil
}

func (e *Engine) allowedSensitivities(q Query) []types.Sensitivity {
	if len(q.Sensitivities) > 0 {
		// Caller may narrow, never widen, the channel's allow-list.
		channelAllowed := e.policy.AllowedSensitivities(q.Channel)
		out := make([]types.Sensitivity, 0, len(q.Sensitivities))
		for _, s := range q.Sensitivities {
			if sensitivityAllowed(channelAllowed, s) {
				out = append(out, s)
			}
		}
		return out
	}
	return e.policy.AllowedSensitivities(q.Channel)
}

func sensitivityAllowed(allowed []types.Sensitivity, s types.Sensitivity) bool {
	for _, a := range allowed {
		if a == s {
			return true
		}
	}
	return false
}

func channelBlocked(blocked []types.Channel, ch types.Channel) bool {
	for _, b := range blocked {
		if b == ch {
			return true
		}
	}
	return false
}

// recencyDecay is exponential with a mode-dependent half-life: 1.0 now,
// 0.5 at one half-life, approaching 0.
func recencyDecay(now, ts time.Time, halfLifeHours float64) float64 {
	if halfLifeHours <= 0 {
		return 0
	}
	age := now.Sub(ts).Hours()
	if age <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * age / halfLifeHours)
}

func (e *Engine) halfLifeHours(mode types.Mode) float64 {
	if h, ok := e.cfg.HalfLifeHours[string(mode)]; ok {
		return h
	}
	if h, ok := e.cfg.HalfLifeHours[string(types.ModeGeneral)]; ok {
		return h
	}
	return 96
}

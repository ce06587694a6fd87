package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"memoryd/internal/logging"
	"memoryd/internal/types"
)

// ComposeEffective applies approved edits to a chunk, in applied order.
// Later amends win on text; the latest absolute attenuation wins on
// importance, otherwise deltas accumulate and clamp to [0,1]; blocks union;
// any quarantine marks the chunk quarantined; any retract marks it retracted.
// Rejected and pending edits never reach this function.
func ComposeEffective(c types.Chunk, edits []types.MemoryEdit) types.EffectiveChunk {
	eff := types.EffectiveChunk{Chunk: c}

	baseImportance := c.Importance
	var deltaSum float64
	haveAbsolute := false
	var absolute float64
	blocked := map[types.Channel]bool{}

	for _, e := range edits {
		if e.Status != types.EditApproved {
			continue
		}
		eff.EditsApplied++
		switch e.Op {
		case types.OpRetract:
			eff.IsRetracted = true
		case types.OpQuarantine:
			eff.IsQuarantined = true
		case types.OpAmend:
			if e.Patch.Text != nil {
				eff.Text = *e.Patch.Text
			}
			if e.Patch.Importance != nil {
				// Amend resets the importance baseline; later
				// attenuations apply on top of it.
				baseImportance = *e.Patch.Importance
				haveAbsolute = false
				deltaSum = 0
			}
		case types.OpAttenuate:
			if e.Patch.Importance != nil {
				absolute = *e.Patch.Importance
				haveAbsolute = true
			} else if e.Patch.ImportanceDelta != nil {
				deltaSum += *e.Patch.ImportanceDelta
			}
		case types.OpBlock:
			if e.Patch.Channel != "" {
				blocked[e.Patch.Channel] = true
			}
		}
	}

	if haveAbsolute {
		eff.Importance = clamp01(absolute)
	} else {
		eff.Importance = clamp01(baseImportance + deltaSum)
	}
	for ch := range blocked {
		eff.BlockedChannels = append(eff.BlockedChannels, ch)
	}
	return eff
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// GetEffectiveChunk returns a chunk with all approved edits composed.
// Retracted and quarantined chunks ARE returned here, flagged; retrieval
// filters them, direct addressing does not.
func (s *LocalStore) GetEffectiveChunk(tenant, id string) (*types.EffectiveChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		"SELECT "+chunkColumns+" FROM chunks WHERE tenant = ? AND id = ?",
		tenant, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFoundf("chunk %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	edits, err := s.approvedEdits(tenant, id)
	if err != nil {
		return nil, err
	}
	eff := ComposeEffective(c, edits)
	return &eff, nil
}

func (s *LocalStore) approvedEdits(tenant, targetID string) ([]types.MemoryEdit, error) {
	rows, err := s.db.Query(
		"SELECT "+editColumns+` FROM memory_edits
		WHERE tenant = ? AND target_id = ? AND status = 'approved'
		ORDER BY applied_at ASC, id ASC`, tenant, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approved edits: %w", err)
	}
	defer rows.Close()

	var out []types.MemoryEdit
	for rows.Next() {
		e, err := scanEdit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edit: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// approvedEditsByTarget batch-loads approved edits for a set of chunk ids.
func (s *LocalStore) approvedEditsByTarget(tenant string, ids []string) (map[string][]types.MemoryEdit, error) {
	if len(ids) == 0 {
		return map[string][]types.MemoryEdit{}, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, tenant)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.Query(
		"SELECT "+editColumns+` FROM memory_edits
		WHERE tenant = ? AND target_id IN (`+placeholders+`) AND status = 'approved'
		ORDER BY applied_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to batch query edits: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]types.MemoryEdit)
	for rows.Next() {
		e, err := scanEdit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edit: %w", err)
		}
		out[e.TargetID] = append(out[e.TargetID], e)
	}
	return out, rows.Err()
}

// ScoredChunk pairs an effective chunk with its lexical similarity.
type ScoredChunk struct {
	types.EffectiveChunk
	Similarity float64
}

// SearchEffectiveChunks runs an FTS5 match over effective chunk text and
// composes edits onto the hits. Retracted and quarantined chunks are dropped
// here; channel blocks are left to the caller, which knows the requesting
// channel. Builds without the fts5 module fall back to a LIKE scan.
func (s *LocalStore) SearchEffectiveChunks(tenant, query string, f ChunkFilter) ([]ScoredChunk, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SearchEffectiveChunks")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	if !s.ftsExt {
		return s.searchChunksLike(tenant, query, f, limit)
	}

	match := ftsQuote(query)
	if match == "" {
		return nil, nil
	}

	sqlQuery := `
		SELECT c.id, c.tenant, c.event_id, c.session, c.timestamp, c.kind,
			c.channel, c.sensitivity, c.tags, c.token_estimate, c.importance,
			c.text, c.scope, c.subject_type, c.subject_id, c.project_id,
			bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.chunk_id
		WHERE chunks_fts MATCH ? AND c.tenant = ?`
	args := []interface{}{match, tenant}
	sqlQuery, args = f.apply(sqlQuery, args)
	// Edits are composed after the match, so over-fetch: retracted or
	// quarantined hits must not eat into the caller's limit.
	sqlQuery += " ORDER BY rank LIMIT ?"
	args = append(args, overFetch(limit))

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("fts search failed: %w", err)
	}

	type rawHit struct {
		chunk types.Chunk
		rank  float64
	}
	var hits []rawHit
	for rows.Next() {
		var c types.Chunk
		var kind, channel, sensitivity, tags, scope string
		var rank float64
		if err := rows.Scan(&c.ID, &c.Tenant, &c.EventID, &c.Session,
			&c.Timestamp, &kind, &channel, &sensitivity, &tags,
			&c.TokenEstimate, &c.Importance, &c.Text, &scope,
			&c.Subject.Type, &c.Subject.ID, &c.ProjectID, &rank); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan fts hit: %w", err)
		}
		c.Kind = types.EventKind(kind)
		c.Channel = types.Channel(channel)
		c.Sensitivity = types.Sensitivity(sensitivity)
		c.Tags = splitTags(tags)
		c.Scope = types.Scope(scope)
		hits = append(hits, rawHit{chunk: c, rank: rank})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.chunk.ID
	}
	editsByChunk, err := s.approvedEditsByTarget(tenant, ids)
	if err != nil {
		return nil, err
	}

	var out []ScoredChunk
	for _, h := range hits {
		eff := ComposeEffective(h.chunk, editsByChunk[h.chunk.ID])
		if eff.IsRetracted || eff.IsQuarantined {
			continue
		}
		out = append(out, ScoredChunk{
			EffectiveChunk: eff,
			Similarity:     bm25ToSimilarity(h.rank),
		})
		if len(out) == limit {
			break
		}
	}
	logging.StoreDebug("FTS %q -> %d hits, %d effective", query, len(hits), len(out))
	return out, nil
}

// overFetch widens a result limit to leave room for hits that edit
// composition will drop.
func overFetch(limit int) int {
	return limit * 4
}

// searchChunksLike is the lexical path for sqlite builds without fts5. Terms
// prefilter with LIKE over stored text; scoring counts terms present in the
// effective text, so an amend that removes a term drops the hit. Amends that
// introduce new terms are only matchable on an fts5 build.
func (s *LocalStore) searchChunksLike(tenant, query string, f ChunkFilter, limit int) ([]ScoredChunk, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	sqlQuery := "SELECT " + chunkColumns + " FROM chunks c WHERE c.tenant = ?"
	args := []interface{}{tenant}
	likes := make([]string, len(terms))
	for i, t := range terms {
		likes[i] = `c.text LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(t)+"%")
	}
	sqlQuery += " AND (" + strings.Join(likes, " OR ") + ")"
	sqlQuery, args = f.apply(sqlQuery, args)
	sqlQuery += " ORDER BY c.timestamp DESC, c.id DESC LIMIT ?"
	args = append(args, overFetch(limit))

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("like search failed: %w", err)
	}
	var candidates []types.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan like hit: %w", err)
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	editsByChunk, err := s.approvedEditsByTarget(tenant, ids)
	if err != nil {
		return nil, err
	}

	var out []ScoredChunk
	for _, c := range candidates {
		eff := ComposeEffective(c, editsByChunk[c.ID])
		if eff.IsRetracted || eff.IsQuarantined {
			continue
		}
		text := strings.ToLower(eff.Text)
		matched := 0
		for _, t := range terms {
			if strings.Contains(text, t) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		out = append(out, ScoredChunk{
			EffectiveChunk: eff,
			Similarity:     float64(matched) / float64(len(terms)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	logging.StoreDebug("LIKE %q -> %d candidates, %d effective", query, len(candidates), len(out))
	return out, nil
}

// searchTerms lowercases and strips punctuation from query words.
func searchTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'.,;:!?()[]{}<>`)
		if f != "" {
			terms = append(terms, f)
		}
	}
	return terms
}

// escapeLike escapes LIKE metacharacters for use with ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// bm25ToSimilarity maps sqlite's bm25 rank (lower is better, can be
// negative) onto (0,1].
func bm25ToSimilarity(rank float64) float64 {
	if rank < 0 {
		rank = -rank
	}
	return 1.0 / (1.0 + rank)
}

// ftsQuote builds a safe FTS5 MATCH expression: each term is double-quoted
// and OR-joined, so user punctuation cannot inject FTS syntax.
func ftsQuote(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		f = strings.Trim(f, `'.,;:!?()[]{}<>`)
		if f == "" {
			continue
		}
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}

// ListEffectiveChunks lists recent chunks with edits composed; retracted and
// quarantined chunks are dropped. Used for the recency lane of retrieval.
func (s *LocalStore) ListEffectiveChunks(tenant string, f ChunkFilter) ([]types.EffectiveChunk, error) {
	chunks, err := s.ListRecentChunks(tenant, f)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	editsByChunk, err := s.approvedEditsByTarget(tenant, ids)
	if err != nil {
		return nil, err
	}

	var out []types.EffectiveChunk
	for _, c := range chunks {
		eff := ComposeEffective(c, editsByChunk[c.ID])
		if eff.IsRetracted || eff.IsQuarantined {
			continue
		}
		out = append(out, eff)
	}
	return out, nil
}

package store

import (
	"database/sql"
	"fmt"
	"time"

	"memoryd/internal/logging"
	"memoryd/internal/types"
)

func (s *LocalStore) insertChunkTx(tx *sql.Tx, c *types.Chunk) error {
	_, err := tx.Exec(`
		INSERT INTO chunks (id, tenant, event_id, session, timestamp, kind,
			channel, sensitivity, tags, token_estimate, importance, text,
			scope, subject_type, subject_id, project_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Tenant, c.EventID, c.Session, c.Timestamp, string(c.Kind),
		string(c.Channel), string(c.Sensitivity), joinTags(c.Tags),
		c.TokenEstimate, c.Importance, c.Text, string(c.Scope),
		c.Subject.Type, c.Subject.ID, c.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	if s.ftsExt {
		if _, err := tx.Exec(
			"INSERT INTO chunks_fts (chunk_id, tenant, text) VALUES (?, ?, ?)",
			c.ID, c.Tenant, c.Text); err != nil {
			return fmt.Errorf("failed to index chunk: %w", err)
		}
	}
	return registerNodeTx(tx, c.Tenant, c.ID, "chunk", c.Timestamp)
}

// refreshChunkFTSTx replaces the FTS row for a chunk with new effective text.
// Called when an approved amend changes what retrieval should match. A no-op
// without the fts5 module; the LIKE fallback scans live rows instead.
func (s *LocalStore) refreshChunkFTSTx(tx *sql.Tx, tenant, chunkID, text string) error {
	if !s.ftsExt {
		return nil
	}
	if _, err := tx.Exec("DELETE FROM chunks_fts WHERE chunk_id = ?", chunkID); err != nil {
		return fmt.Errorf("failed to drop stale fts row: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT INTO chunks_fts (chunk_id, tenant, text) VALUES (?, ?, ?)",
		chunkID, tenant, text); err != nil {
		return fmt.Errorf("failed to reindex chunk: %w", err)
	}
	return nil
}

func scanChunk(scanner interface {
	Scan(dest ...interface{}) error
}) (types.Chunk, error) {
	var c types.Chunk
	var kind, channel, sensitivity, tags, scope string
	err := scanner.Scan(&c.ID, &c.Tenant, &c.EventID, &c.Session, &c.Timestamp,
		&kind, &channel, &sensitivity, &tags, &c.TokenEstimate, &c.Importance,
		&c.Text, &scope, &c.Subject.Type, &c.Subject.ID, &c.ProjectID)
	if err != nil {
		return c, err
	}
	c.Kind = types.EventKind(kind)
	c.Channel = types.Channel(channel)
	c.Sensitivity = types.Sensitivity(sensitivity)
	c.Tags = splitTags(tags)
	c.Scope = types.Scope(scope)
	return c, nil
}

const chunkColumns = `id, tenant, event_id, session, timestamp, kind, channel,
	sensitivity, tags, token_estimate, importance, text, scope, subject_type,
	subject_id, project_id`

// GetChunk returns the RAW chunk (no edits composed) by id within the tenant.
func (s *LocalStore) GetChunk(tenant, id string) (*types.Chunk, error) {
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
	return &c, nil
}

// GetChunksByEvent returns all chunks derived from an event.
func (s *LocalStore) GetChunksByEvent(tenant, eventID string) ([]types.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT "+chunkColumns+" FROM chunks WHERE tenant = ? AND event_id = ? ORDER BY id",
		tenant, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var out []types.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ChunkFilter narrows chunk listing and lexical search. Zero values mean "any".
type ChunkFilter struct {
	Session   string
	Kind      types.EventKind
	Channel   types.Channel
	Scope     types.Scope
	Subject   types.Subject
	ProjectID string
	Tag       string
	Since     time.Time
	Until     time.Time
	Limit     int
}

func (f ChunkFilter) apply(query string, args []interface{}) (string, []interface{}) {
	if f.Session != "" {
		query += " AND c.session = ?"
		args = append(args, f.Session)
	}
	if f.Kind != "" {
		query += " AND c.kind = ?"
		args = append(args, string(f.Kind))
	}
	if f.Channel != "" {
		query += " AND c.channel = ?"
		args = append(args, string(f.Channel))
	}
	if f.Scope != "" {
		query += " AND c.scope = ?"
		args = append(args, string(f.Scope))
	}
	if f.Subject.Type != "" {
		query += " AND c.subject_type = ?"
		args = append(args, f.Subject.Type)
	}
	if f.Subject.ID != "" {
		query += " AND c.subject_id = ?"
		args = append(args, f.Subject.ID)
	}
	if f.ProjectID != "" {
		query += " AND c.project_id = ?"
		args = append(args, f.ProjectID)
	}
	if f.Tag != "" {
		query += " AND c.tags LIKE ?"
		args = append(args, "%,"+f.Tag+",%")
	}
	if !f.Since.IsZero() {
		query += " AND c.timestamp >= ?"
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		query += " AND c.timestamp <= ?"
		args = append(args, f.Until)
	}
	return query, args
}

// ListRecentChunks returns raw chunks matching the filter, newest first.
func (s *LocalStore) ListRecentChunks(tenant string, f ChunkFilter) ([]types.Chunk, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ListRecentChunks")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + chunkColumns + " FROM chunks c WHERE c.tenant = ?"
	args := []interface{}{tenant}
	query, args = f.apply(query, args)
	query += " ORDER BY c.timestamp DESC, c.id DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var out []types.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

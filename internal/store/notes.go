package store

import (
	"database/sql"
	"fmt"

	"memoryd/internal/logging"
	"memoryd/internal/types"
)

func insertNoteTx(tx *sql.Tx, n *types.KnowledgeNote) error {
	_, err := tx.Exec(`
		INSERT INTO knowledge_notes (id, tenant, scope, subject_type,
			subject_id, title, text, layer, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Tenant, string(n.Scope), n.Subject.Type, n.Subject.ID,
		n.Title, n.Text, n.Layer, joinTags(n.Tags), n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert knowledge note: %w", err)
	}
	return registerNodeTx(tx, n.Tenant, n.ID, "knowledge_note", n.CreatedAt)
}

// InsertNote persists a knowledge note outside the event bundle path. The
// consolidation worker writes its distillations through here.
func (s *LocalStore) InsertNote(n *types.KnowledgeNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx("InsertNote", func(tx *sql.Tx) error {
		return insertNoteTx(tx, n)
	})
}

// NoteFilter narrows ListNotes. Zero values mean "any".
type NoteFilter struct {
	Layer   string
	Scope   types.Scope
	Subject types.Subject
	Tag     string
	Limit   int
}

// ListNotes returns knowledge notes matching the filter, newest first.
func (s *LocalStore) ListNotes(tenant string, f NoteFilter) ([]types.KnowledgeNote, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ListNotes")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, tenant, scope, subject_type, subject_id, title, text,
			layer, tags, created_at
		FROM knowledge_notes WHERE tenant = ?`
	args := []interface{}{tenant}
	if f.Layer != "" {
		query += " AND layer = ?"
		args = append(args, f.Layer)
	}
	if f.Scope != "" {
		query += " AND scope = ?"
		args = append(args, string(f.Scope))
	}
	if f.Subject.Type != "" {
		query += " AND subject_type = ?"
		args = append(args, f.Subject.Type)
	}
	if f.Subject.ID != "" {
		query += " AND subject_id = ?"
		args = append(args, f.Subject.ID)
	}
	if f.Tag != "" {
		query += " AND tags LIKE ?"
		args = append(args, "%,"+f.Tag+",%")
	}
	query += " ORDER BY created_at DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var out []types.KnowledgeNote
	for rows.Next() {
		var n types.KnowledgeNote
		var scope, tags string
		if err := rows.Scan(&n.ID, &n.Tenant, &scope, &n.Subject.Type,
			&n.Subject.ID, &n.Title, &n.Text, &n.Layer, &tags,
			&n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		n.Scope = types.Scope(scope)
		n.Tags = splitTags(tags)
		out = append(out, n)
	}
	return out, rows.Err()
}

func insertHandoffTx(tx *sql.Tx, h *types.SessionHandoff) error {
	_, err := tx.Exec(`
		INSERT INTO session_handoffs (id, tenant, session, agent_id, summary,
			open_items, refs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.Tenant, h.Session, h.AgentID, h.Summary,
		joinTags(h.OpenItems), joinTags(h.Refs), h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert handoff: %w", err)
	}
	return registerNodeTx(tx, h.Tenant, h.ID, "handoff", h.CreatedAt)
}

// LatestHandoff returns the most recent handoff for the tenant, optionally
// restricted to a session. Used to seed a fresh session's first ACB.
func (s *LocalStore) LatestHandoff(tenant, session string) (*types.SessionHandoff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, tenant, session, agent_id, summary, open_items, refs, created_at
		FROM session_handoffs WHERE tenant = ?`
	args := []interface{}{tenant}
	if session != "" {
		query += " AND session = ?"
		args = append(args, session)
	}
	query += " ORDER BY created_at DESC LIMIT 1"

	var h types.SessionHandoff
	var openItems, refs string
	err := s.db.QueryRow(query, args...).Scan(&h.ID, &h.Tenant, &h.Session,
		&h.AgentID, &h.Summary, &openItems, &refs, &h.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, types.NotFoundf("handoff")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get handoff: %w", err)
	}
	h.OpenItems = splitTags(openItems)
	h.Refs = splitTags(refs)
	return &h, nil
}

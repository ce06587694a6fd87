package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"memoryd/internal/logging"
	"memoryd/internal/types"
)

// RecordBundle is everything one ingested event produces. It is persisted in
// a single transaction so an event is never visible without its chunks.
type RecordBundle struct {
	Event    types.Event
	Chunks   []types.Chunk
	Artifact *types.Artifact
	Decision *types.Decision
	Task     *types.Task
	Note     *types.KnowledgeNote
	Handoff  *types.SessionHandoff

	// SupersededDecisionID, when set, is marked superseded in the same
	// transaction that records the new decision.
	SupersededDecisionID string
}

// WriteBundle persists an event and all of its derived records atomically.
func (s *LocalStore) WriteBundle(b *RecordBundle) error {
	timer := logging.StartTimer(logging.CategoryStore, "WriteBundle")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx("WriteBundle", func(tx *sql.Tx) error {
		if err := insertEventTx(tx, &b.Event); err != nil {
			return err
		}
		for i := range b.Chunks {
			if err := s.insertChunkTx(tx, &b.Chunks[i]); err != nil {
				return err
			}
		}
		if b.Artifact != nil {
			if err := insertArtifactTx(tx, b.Artifact); err != nil {
				return err
			}
		}
		if b.Decision != nil {
			if b.SupersededDecisionID != "" {
				if err := supersedeDecisionTx(tx, b.Event.Tenant, b.SupersededDecisionID); err != nil {
					return err
				}
			}
			if err := insertDecisionTx(tx, b.Decision); err != nil {
				return err
			}
		}
		if b.Task != nil {
			if err := upsertTaskTx(tx, b.Task); err != nil {
				return err
			}
		}
		if b.Note != nil {
			if err := insertNoteTx(tx, b.Note); err != nil {
				return err
			}
		}
		if b.Handoff != nil {
			if err := insertHandoffTx(tx, b.Handoff); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertEventTx(tx *sql.Tx, e *types.Event) error {
	_, err := tx.Exec(`
		INSERT INTO events (id, tenant, session, channel, actor_type, actor_id,
			kind, sensitivity, tags, content, refs, scope, subject_type,
			subject_id, project_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Tenant, e.Session, string(e.Channel), string(e.Actor.Type),
		e.Actor.ID, string(e.Kind), string(e.Sensitivity), joinTags(e.Tags),
		string(e.Content), joinTags(e.Refs), string(e.Scope), e.Subject.Type,
		e.Subject.ID, e.ProjectID, e.Timestamp)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("%w: event %s already exists", types.ErrConflict, e.ID)
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	// Events are graph endpoints.
	return registerNodeTx(tx, e.Tenant, e.ID, "event", e.Timestamp)
}

// GetEvent returns an event by id within the tenant.
func (s *LocalStore) GetEvent(tenant, id string) (*types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e types.Event
	var channel, actorType, kind, sensitivity, tags, content, refs, scope string
	err := s.db.QueryRow(`
		SELECT id, tenant, session, channel, actor_type, actor_id, kind,
			sensitivity, tags, content, refs, scope, subject_type, subject_id,
			project_id, timestamp
		FROM events WHERE tenant = ? AND id = ?`, tenant, id).Scan(
		&e.ID, &e.Tenant, &e.Session, &channel, &actorType, &e.Actor.ID,
		&kind, &sensitivity, &tags, &content, &refs, &scope,
		&e.Subject.Type, &e.Subject.ID, &e.ProjectID, &e.Timestamp)
	if err == sql.ErrNoRows {
		return nil, types.NotFoundf("event %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	e.Channel = types.Channel(channel)
	e.Actor.Type = types.ActorType(actorType)
	e.Kind = types.EventKind(kind)
	e.Sensitivity = types.Sensitivity(sensitivity)
	e.Tags = splitTags(tags)
	e.Content = []byte(content)
	e.Refs = splitTags(refs)
	e.Scope = types.Scope(scope)
	return &e, nil
}

// EventFilter narrows ListEvents. Zero values mean "any".
type EventFilter struct {
	Session     string
	Kind        types.EventKind
	Scope       types.Scope
	Subject     types.Subject
	ProjectID   string
	Tag         string
	Since       time.Time
	Until       time.Time
	Limit       int
}

// ListEvents returns events matching the filter, newest first.
func (s *LocalStore) ListEvents(tenant string, f EventFilter) ([]types.Event, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ListEvents")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, tenant, session, channel, actor_type, actor_id, kind,
			sensitivity, tags, content, refs, scope, subject_type, subject_id,
			project_id, timestamp
		FROM events WHERE tenant = ?`
	args := []interface{}{tenant}

	if f.Session != "" {
		query += " AND session = ?"
		args = append(args, f.Session)
	}
	if f.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(f.Kind))
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
	if f.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, f.ProjectID)
	}
	if f.Tag != "" {
		query += " AND tags LIKE ?"
		args = append(args, "%,"+f.Tag+",%")
	}
	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, f.Until)
	}
	// Ids break timestamp ties so paging over a burst of same-instant
	// events stays deterministic.
	query += " ORDER BY timestamp DESC, id DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []types.Event
	for rows.Next() {
		var e types.Event
		var channel, actorType, kind, sensitivity, tags, content, refs, scope string
		if err := rows.Scan(&e.ID, &e.Tenant, &e.Session, &channel, &actorType,
			&e.Actor.ID, &kind, &sensitivity, &tags, &content, &refs, &scope,
			&e.Subject.Type, &e.Subject.ID, &e.ProjectID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Channel = types.Channel(channel)
		e.Actor.Type = types.ActorType(actorType)
		e.Kind = types.EventKind(kind)
		e.Sensitivity = types.Sensitivity(sensitivity)
		e.Tags = splitTags(tags)
		e.Content = []byte(content)
		e.Refs = splitTags(refs)
		e.Scope = types.Scope(scope)
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeEvent hard-deletes an event and, via foreign keys, its chunks. This is
// the explicit right-to-delete path, not normal forgetting.
func (s *LocalStore) PurgeEvent(tenant, id string) error {
	timer := logging.StartTimer(logging.CategoryStore, "PurgeEvent")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx("PurgeEvent", func(tx *sql.Tx) error {
		// Collect chunk ids first so the FTS rows can be removed too;
		// external-content FTS does not cascade.
		rows, err := tx.Query("SELECT id FROM chunks WHERE tenant = ? AND event_id = ?", tenant, id)
		if err != nil {
			return err
		}
		var chunkIDs []string
		for rows.Next() {
			var cid string
			if err := rows.Scan(&cid); err != nil {
				rows.Close()
				return err
			}
			chunkIDs = append(chunkIDs, cid)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		res, err := tx.Exec("DELETE FROM events WHERE tenant = ? AND id = ?", tenant, id)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return types.NotFoundf("event %s", id)
		}
		for _, cid := range chunkIDs {
			if s.ftsExt {
				if _, err := tx.Exec("DELETE FROM chunks_fts WHERE chunk_id = ?", cid); err != nil {
					return err
				}
			}
			if _, err := tx.Exec("DELETE FROM nodes WHERE tenant = ? AND id = ?", tenant, cid); err != nil {
				return err
			}
		}
		if _, err := tx.Exec("DELETE FROM nodes WHERE tenant = ? AND id = ?", tenant, id); err != nil {
			return err
		}
		logging.Store("Purged event %s and %d chunks", id, len(chunkIDs))
		return nil
	})
}

func insertArtifactTx(tx *sql.Tx, a *types.Artifact) error {
	_, err := tx.Exec(`
		INSERT INTO artifacts (id, tenant, event_id, media_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Tenant, a.EventID, a.MediaType, a.Payload, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	return registerNodeTx(tx, a.Tenant, a.ID, "artifact", a.CreatedAt)
}

// GetArtifact returns a stored artifact by id within the tenant.
func (s *LocalStore) GetArtifact(tenant, id string) (*types.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var a types.Artifact
	err := s.db.QueryRow(`
		SELECT id, tenant, event_id, media_type, payload, created_at
		FROM artifacts WHERE tenant = ? AND id = ?`, tenant, id).Scan(
		&a.ID, &a.Tenant, &a.EventID, &a.MediaType, &a.Payload, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, types.NotFoundf("artifact %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return &a, nil
}

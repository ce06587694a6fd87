package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"memoryd/internal/logging"
	"memoryd/internal/types"
)

const editColumns = `id, tenant, target_type, target_id, op, reason,
	proposed_by, status, created_at, applied_at, approved_by, patch`

func scanEdit(scanner interface {
	Scan(dest ...interface{}) error
}) (types.MemoryEdit, error) {
	var e types.MemoryEdit
	var targetType, op, proposedBy, status, patch string
	var appliedAt sql.NullTime
	err := scanner.Scan(&e.ID, &e.Tenant, &targetType, &e.TargetID, &op,
		&e.Reason, &proposedBy, &status, &e.CreatedAt, &appliedAt,
		&e.ApprovedBy, &patch)
	if err != nil {
		return e, err
	}
	e.TargetType = types.EditTargetType(targetType)
	e.Op = types.EditOp(op)
	e.ProposedBy = types.ActorType(proposedBy)
	e.Status = types.EditStatus(status)
	e.AppliedAt = nullTime(appliedAt)
	if err := json.Unmarshal([]byte(patch), &e.Patch); err != nil {
		return e, fmt.Errorf("corrupt patch on edit %s: %w", e.ID, err)
	}
	return e, nil
}

// InsertEdit records a proposed memory edit. The target must exist within the
// tenant.
func (s *LocalStore) InsertEdit(e *types.MemoryEdit) error {
	timer := logging.StartTimer(logging.CategoryStore, "InsertEdit")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx("InsertEdit", func(tx *sql.Tx) error {
		exists, err := targetExistsTx(tx, e.Tenant, e.TargetType, e.TargetID)
		if err != nil {
			return err
		}
		if !exists {
			return types.NotFoundf("%s %s", e.TargetType, e.TargetID)
		}

		patch, err := json.Marshal(e.Patch)
		if err != nil {
			return fmt.Errorf("failed to marshal patch: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO memory_edits (id, tenant, target_type, target_id, op,
				reason, proposed_by, status, created_at, applied_at,
				approved_by, patch)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Tenant, string(e.TargetType), e.TargetID, string(e.Op),
			e.Reason, string(e.ProposedBy), string(e.Status), e.CreatedAt,
			e.AppliedAt, e.ApprovedBy, string(patch))
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				return fmt.Errorf("%w: edit %s already exists", types.ErrConflict, e.ID)
			}
			return fmt.Errorf("failed to insert edit: %w", err)
		}
		return nil
	})
}

func targetExistsTx(tx *sql.Tx, tenant string, tt types.EditTargetType, id string) (bool, error) {
	var table string
	switch tt {
	case types.TargetChunk:
		table = "chunks"
	case types.TargetEvent:
		table = "events"
	case types.TargetDecision:
		table = "decisions"
	default:
		return false, types.InvalidInputf("unknown target type %q", tt)
	}
	var one int
	err := tx.QueryRow(
		fmt.Sprintf("SELECT 1 FROM %s WHERE tenant = ? AND id = ?", table),
		tenant, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetEdit returns an edit by id within the tenant.
func (s *LocalStore) GetEdit(tenant, id string) (*types.MemoryEdit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		"SELECT "+editColumns+" FROM memory_edits WHERE tenant = ? AND id = ?",
		tenant, id)
	e, err := scanEdit(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFoundf("edit %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get edit: %w", err)
	}
	return &e, nil
}

// EditFilter narrows ListEdits. Zero values mean "any".
type EditFilter struct {
	TargetID string
	Status   types.EditStatus
	Op       types.EditOp
	Limit    int
}

// ListEdits returns edits matching the filter, newest first.
func (s *LocalStore) ListEdits(tenant string, f EditFilter) ([]types.MemoryEdit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + editColumns + " FROM memory_edits WHERE tenant = ?"
	args := []interface{}{tenant}
	if f.TargetID != "" {
		query += " AND target_id = ?"
		args = append(args, f.TargetID)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.Op != "" {
		query += " AND op = ?"
		args = append(args, string(f.Op))
	}
	query += " ORDER BY created_at DESC, id DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list edits: %w", err)
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

// ResolveEdit moves a pending edit to approved or rejected. Approval of an
// amend refreshes the target chunk's FTS row so searches match the effective
// text from this point on. Returns the updated edit.
func (s *LocalStore) ResolveEdit(tenant, id string, approve bool, approvedBy string, now time.Time) (*types.MemoryEdit, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ResolveEdit")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	var out types.MemoryEdit
	err := s.inTx("ResolveEdit", func(tx *sql.Tx) error {
		row := tx.QueryRow(
			"SELECT "+editColumns+" FROM memory_edits WHERE tenant = ? AND id = ?",
			tenant, id)
		e, err := scanEdit(row)
		if err == sql.ErrNoRows {
			return types.NotFoundf("edit %s", id)
		}
		if err != nil {
			return fmt.Errorf("failed to load edit: %w", err)
		}
		// Resolved edits are immutable; a non-pending edit is treated as
		// not found for resolution purposes.
		if e.Status != types.EditPending {
			return types.NotFoundf("pending edit %s", id)
		}

		status := types.EditRejected
		if approve {
			status = types.EditApproved
		}
		if _, err := tx.Exec(`
			UPDATE memory_edits SET status = ?, applied_at = ?, approved_by = ?
			WHERE tenant = ? AND id = ?`,
			string(status), now, approvedBy, tenant, id); err != nil {
			return fmt.Errorf("failed to update edit: %w", err)
		}
		e.Status = status
		e.AppliedAt = &now
		e.ApprovedBy = approvedBy

		// Amend approval changes the text retrieval should match.
		if approve && e.Op == types.OpAmend && e.TargetType == types.TargetChunk {
			if err := s.reindexEffectiveTextTx(tx, tenant, e.TargetID); err != nil {
				return err
			}
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Surgery("Edit %s resolved to %s by %s", id, out.Status, approvedBy)
	return &out, nil
}

// reindexEffectiveTextTx recomputes the effective text for a chunk and
// replaces its FTS row.
func (s *LocalStore) reindexEffectiveTextTx(tx *sql.Tx, tenant, chunkID string) error {
	if !s.ftsExt {
		return nil
	}
	row := tx.QueryRow(
		"SELECT "+chunkColumns+" FROM chunks WHERE tenant = ? AND id = ?",
		tenant, chunkID)
	c, err := scanChunk(row)
	if err != nil {
		return fmt.Errorf("failed to load chunk for reindex: %w", err)
	}
	edits, err := approvedEditsTx(tx, tenant, chunkID)
	if err != nil {
		return err
	}
	eff := ComposeEffective(c, edits)
	return s.refreshChunkFTSTx(tx, tenant, chunkID, eff.Text)
}

func approvedEditsTx(tx *sql.Tx, tenant, targetID string) ([]types.MemoryEdit, error) {
	rows, err := tx.Query(
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

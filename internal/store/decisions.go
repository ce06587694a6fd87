package store

import (
	"database/sql"
	"fmt"
	"strings"

	"memoryd/internal/logging"
	"memoryd/internal/types"
)

const decisionColumns = `id, tenant, status, scope, decision, rationale,
	constraints, alternatives, consequences, refs, supersedes, created_at`

func scanDecision(scanner interface {
	Scan(dest ...interface{}) error
}) (types.Decision, error) {
	var d types.Decision
	var status, scope, constraints, alternatives, consequences, refs string
	err := scanner.Scan(&d.ID, &d.Tenant, &status, &scope, &d.Decision,
		&d.Rationale, &constraints, &alternatives, &consequences, &refs,
		&d.Supersedes, &d.CreatedAt)
	if err != nil {
		return d, err
	}
	d.Status = types.DecisionStatus(status)
	d.Scope = types.Scope(scope)
	d.Constraints = splitTags(constraints)
	d.Alternatives = splitTags(alternatives)
	d.Consequences = splitTags(consequences)
	d.Refs = splitTags(refs)
	return d, nil
}

func insertDecisionTx(tx *sql.Tx, d *types.Decision) error {
	_, err := tx.Exec(`
		INSERT INTO decisions (id, tenant, status, scope, decision, rationale,
			constraints, alternatives, consequences, refs, supersedes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Tenant, string(d.Status), string(d.Scope), d.Decision,
		d.Rationale, joinTags(d.Constraints), joinTags(d.Alternatives),
		joinTags(d.Consequences), joinTags(d.Refs), d.Supersedes, d.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("%w: decision %s already exists", types.ErrConflict, d.ID)
		}
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return registerNodeTx(tx, d.Tenant, d.ID, "decision", d.CreatedAt)
}

func supersedeDecisionTx(tx *sql.Tx, tenant, id string) error {
	res, err := tx.Exec(`
		UPDATE decisions SET status = 'superseded'
		WHERE tenant = ? AND id = ? AND status = 'active'`, tenant, id)
	if err != nil {
		return fmt.Errorf("failed to supersede decision: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var status string
		err := tx.QueryRow(
			"SELECT status FROM decisions WHERE tenant = ? AND id = ?",
			tenant, id).Scan(&status)
		if err == sql.ErrNoRows {
			return types.NotFoundf("decision %s", id)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: decision %s is already %s", types.ErrConflict, id, status)
	}
	return nil
}

// GetDecision returns a decision by id within the tenant.
func (s *LocalStore) GetDecision(tenant, id string) (*types.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		"SELECT "+decisionColumns+" FROM decisions WHERE tenant = ? AND id = ?",
		tenant, id)
	d, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFoundf("decision %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}
	return &d, nil
}

// DecisionFilter narrows ListDecisions. Zero values mean "any".
type DecisionFilter struct {
	Status types.DecisionStatus
	Scope  types.Scope
	Limit  int
}

// ListDecisions returns decisions matching the filter, ordered by scope
// precedence (policy first) then recency.
func (s *LocalStore) ListDecisions(tenant string, f DecisionFilter) ([]types.Decision, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ListDecisions")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + decisionColumns + " FROM decisions WHERE tenant = ?"
	args := []interface{}{tenant}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.Scope != "" {
		query += " AND scope = ?"
		args = append(args, string(f.Scope))
	}
	query += `
		ORDER BY CASE scope
			WHEN 'policy' THEN 4
			WHEN 'project' THEN 3
			WHEN 'user' THEN 2
			WHEN 'session' THEN 2
			ELSE 1
		END DESC, created_at DESC`
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var out []types.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

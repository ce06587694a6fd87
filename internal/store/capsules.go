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

const capsuleColumns = `id, tenant, scope, subject_type, subject_id,
	author_agent_id, audience, items, risks, ttl_days, created_at,
	expires_at, status, revoked_at`

func scanCapsule(scanner interface {
	Scan(dest ...interface{}) error
}) (types.Capsule, error) {
	var c types.Capsule
	var scope, audience, items, risks, status string
	var revokedAt sql.NullTime
	err := scanner.Scan(&c.ID, &c.Tenant, &scope, &c.Subject.Type,
		&c.Subject.ID, &c.AuthorAgentID, &audience, &items, &risks,
		&c.TTLDays, &c.CreatedAt, &c.ExpiresAt, &status, &revokedAt)
	if err != nil {
		return c, err
	}
	c.Scope = types.Scope(scope)
	c.AudienceAgentIDs = splitTags(audience)
	c.Risks = splitTags(risks)
	c.Status = types.CapsuleStatus(status)
	c.RevokedAt = nullTime(revokedAt)
	if err := json.Unmarshal([]byte(items), &c.Items); err != nil {
		return c, fmt.Errorf("corrupt items on capsule %s: %w", c.ID, err)
	}
	return c, nil
}

// InsertCapsule persists a new capsule.
func (s *LocalStore) InsertCapsule(c *types.Capsule) error {
	timer := logging.StartTimer(logging.CategoryStore, "InsertCapsule")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx("InsertCapsule", func(tx *sql.Tx) error {
		items, err := json.Marshal(c.Items)
		if err != nil {
			return fmt.Errorf("failed to marshal capsule items: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO capsules (id, tenant, scope, subject_type, subject_id,
				author_agent_id, audience, items, risks, ttl_days, created_at,
				expires_at, status, revoked_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Tenant, string(c.Scope), c.Subject.Type, c.Subject.ID,
			c.AuthorAgentID, joinTags(c.AudienceAgentIDs), string(items),
			joinTags(c.Risks), c.TTLDays, c.CreatedAt, c.ExpiresAt,
			string(c.Status), c.RevokedAt)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				return fmt.Errorf("%w: capsule %s already exists", types.ErrConflict, c.ID)
			}
			return fmt.Errorf("failed to insert capsule: %w", err)
		}
		return registerNodeTx(tx, c.Tenant, c.ID, "capsule", c.CreatedAt)
	})
}

// GetCapsule returns a capsule by id within the tenant, regardless of status.
// Audience enforcement belongs to the capsule service, which knows the caller.
func (s *LocalStore) GetCapsule(tenant, id string) (*types.Capsule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		"SELECT "+capsuleColumns+" FROM capsules WHERE tenant = ? AND id = ?",
		tenant, id)
	c, err := scanCapsule(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFoundf("capsule %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get capsule: %w", err)
	}
	return &c, nil
}

// ListCapsulesForAudience returns active, unexpired capsules whose audience
// includes agentID, newest first.
func (s *LocalStore) ListCapsulesForAudience(tenant, agentID string, now time.Time) ([]types.Capsule, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ListCapsulesForAudience")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT "+capsuleColumns+` FROM capsules
		WHERE tenant = ? AND status = 'active' AND expires_at > ?
			AND audience LIKE ?
		ORDER BY created_at DESC`,
		tenant, now, "%,"+agentID+",%")
	if err != nil {
		return nil, fmt.Errorf("failed to list capsules: %w", err)
	}
	defer rows.Close()

	var out []types.Capsule
	for rows.Next() {
		c, err := scanCapsule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan capsule: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RevokeCapsule marks a capsule revoked. Revoking an already-revoked capsule
// is a no-op: the status stays revoked and the original revoked_at is kept.
// Expired capsules revoke normally; expiry alone already hides them.
func (s *LocalStore) RevokeCapsule(tenant, id string, now time.Time) error {
	timer := logging.StartTimer(logging.CategoryStore, "RevokeCapsule")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx("RevokeCapsule", func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRow(
			"SELECT status FROM capsules WHERE tenant = ? AND id = ?",
			tenant, id).Scan(&status)
		if err == sql.ErrNoRows {
			return types.NotFoundf("capsule %s", id)
		}
		if err != nil {
			return err
		}
		if types.CapsuleStatus(status) == types.CapsuleRevoked {
			return nil
		}
		_, err = tx.Exec(`
			UPDATE capsules SET status = 'revoked', revoked_at = ?
			WHERE tenant = ? AND id = ?`, now, tenant, id)
		if err != nil {
			return fmt.Errorf("failed to revoke capsule: %w", err)
		}
		logging.Capsule("Capsule %s revoked", id)
		return nil
	})
}

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"memoryd/internal/logging"
	"memoryd/internal/types"
)

// registerNodeTx records an entity as a graph endpoint. Idempotent: every
// entity insert calls it in the same transaction.
func registerNodeTx(tx *sql.Tx, tenant, id, kind string, createdAt time.Time) error {
	_, err := tx.Exec(`
		INSERT INTO nodes (id, tenant, kind, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, tenant, kind, createdAt)
	if err != nil {
		return fmt.Errorf("failed to register node: %w", err)
	}
	return nil
}

// NodeExists reports whether id is a registered node within the tenant.
func (s *LocalStore) NodeExists(tenant, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodeExists(tenant, id)
}

func (s *LocalStore) nodeExists(tenant, id string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM nodes WHERE tenant = ? AND id = ?", tenant, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

const edgeColumns = `id, tenant, from_node, to_node, type, properties,
	created_at, updated_at`

func scanEdge(scanner interface {
	Scan(dest ...interface{}) error
}) (types.Edge, error) {
	var e types.Edge
	var edgeType, props string
	err := scanner.Scan(&e.ID, &e.Tenant, &e.FromNode, &e.ToNode, &edgeType,
		&props, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return e, err
	}
	e.Type = types.EdgeType(edgeType)
	if props != "" && props != "{}" {
		if err := json.Unmarshal([]byte(props), &e.Properties); err != nil {
			return e, fmt.Errorf("corrupt properties on edge %s: %w", e.ID, err)
		}
	}
	return e, nil
}

// UpsertEdge creates an edge or, if one with the same endpoints and type
// exists, merges properties and bumps updated_at. Both endpoints must be
// registered nodes in the tenant. A depends_on edge that would close a cycle
// is rejected.
func (s *LocalStore) UpsertEdge(e *types.Edge) (*types.Edge, error) {
	timer := logging.StartTimer(logging.CategoryStore, "UpsertEdge")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	var out types.Edge
	err := s.inTx("UpsertEdge", func(tx *sql.Tx) error {
		for _, node := range []string{e.FromNode, e.ToNode} {
			var one int
			err := tx.QueryRow(
				"SELECT 1 FROM nodes WHERE tenant = ? AND id = ?",
				e.Tenant, node).Scan(&one)
			if err == sql.ErrNoRows {
				return types.NotFoundf("node %s", node)
			}
			if err != nil {
				return err
			}
		}

		// Self-loops carry no information and break traversal.
		if e.FromNode == e.ToNode {
			return types.InvalidInputf("edge endpoints must differ")
		}

		if e.Type == types.EdgeDependsOn {
			// from depends_on to: reject if to can already reach from.
			reaches, err := reachableTx(tx, e.Tenant, e.ToNode, e.FromNode, types.EdgeDependsOn)
			if err != nil {
				return err
			}
			if reaches {
				return fmt.Errorf("%w: %s -> %s", types.ErrCircularDependency, e.FromNode, e.ToNode)
			}
		}

		row := tx.QueryRow(
			"SELECT "+edgeColumns+` FROM edges
			WHERE tenant = ? AND from_node = ? AND to_node = ? AND type = ?`,
			e.Tenant, e.FromNode, e.ToNode, string(e.Type))
		existing, err := scanEdge(row)
		switch {
		case err == sql.ErrNoRows:
			props, merr := json.Marshal(e.Properties)
			if merr != nil {
				return fmt.Errorf("failed to marshal properties: %w", merr)
			}
			if e.Properties == nil {
				props = []byte("{}")
			}
			if _, err := tx.Exec(`
				INSERT INTO edges (id, tenant, from_node, to_node, type,
					properties, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				e.ID, e.Tenant, e.FromNode, e.ToNode, string(e.Type),
				string(props), e.CreatedAt, e.UpdatedAt); err != nil {
				return fmt.Errorf("failed to insert edge: %w", err)
			}
			out = *e
			return nil
		case err != nil:
			return fmt.Errorf("failed to look up edge: %w", err)
		default:
			// Merge: new properties win key by key.
			merged := existing.Properties
			if merged == nil {
				merged = map[string]interface{}{}
			}
			for k, v := range e.Properties {
				merged[k] = v
			}
			props, merr := json.Marshal(merged)
			if merr != nil {
				return fmt.Errorf("failed to marshal properties: %w", merr)
			}
			if _, err := tx.Exec(`
				UPDATE edges SET properties = ?, updated_at = ?
				WHERE tenant = ? AND id = ?`,
				string(props), e.UpdatedAt, e.Tenant, existing.ID); err != nil {
				return fmt.Errorf("failed to update edge: %w", err)
			}
			existing.Properties = merged
			existing.UpdatedAt = e.UpdatedAt
			out = existing
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetEdge returns an edge by id within the tenant.
func (s *LocalStore) GetEdge(tenant, id string) (*types.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		"SELECT "+edgeColumns+" FROM edges WHERE tenant = ? AND id = ?",
		tenant, id)
	e, err := scanEdge(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFoundf("edge %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get edge: %w", err)
	}
	return &e, nil
}

// UpdateEdgeProperties shallow-merges patch into the edge's properties and
// refreshes updated_at. A key set to nil in the patch is removed.
func (s *LocalStore) UpdateEdgeProperties(tenant, id string, patch map[string]interface{}, now time.Time) (*types.Edge, error) {
	timer := logging.StartTimer(logging.CategoryStore, "UpdateEdgeProperties")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	var out types.Edge
	err := s.inTx("UpdateEdgeProperties", func(tx *sql.Tx) error {
		row := tx.QueryRow(
			"SELECT "+edgeColumns+" FROM edges WHERE tenant = ? AND id = ?",
			tenant, id)
		e, err := scanEdge(row)
		if err == sql.ErrNoRows {
			return types.NotFoundf("edge %s", id)
		}
		if err != nil {
			return fmt.Errorf("failed to get edge: %w", err)
		}

		merged := e.Properties
		if merged == nil {
			merged = map[string]interface{}{}
		}
		for k, v := range patch {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		props, merr := json.Marshal(merged)
		if merr != nil {
			return fmt.Errorf("failed to marshal properties: %w", merr)
		}
		if _, err := tx.Exec(`
			UPDATE edges SET properties = ?, updated_at = ?
			WHERE tenant = ? AND id = ?`,
			string(props), now, tenant, id); err != nil {
			return fmt.Errorf("failed to update edge: %w", err)
		}
		e.Properties = merged
		e.UpdatedAt = now
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteEdge removes an edge by id within the tenant.
func (s *LocalStore) DeleteEdge(tenant, id string) error {
	timer := logging.StartTimer(logging.CategoryStore, "DeleteEdge")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx("DeleteEdge", func(tx *sql.Tx) error {
		res, err := tx.Exec("DELETE FROM edges WHERE tenant = ? AND id = ?", tenant, id)
		if err != nil {
			return fmt.Errorf("failed to delete edge: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return types.NotFoundf("edge %s", id)
		}
		return nil
	})
}

// GetEdges returns edges touching nodeID in the given direction, optionally
// filtered to edge types.
func (s *LocalStore) GetEdges(tenant, nodeID string, dir types.Direction, edgeTypes []types.EdgeType) ([]types.Edge, error) {
	timer := logging.StartTimer(logging.CategoryStore, "GetEdges")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	exists, err := s.nodeExists(tenant, nodeID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, types.NotFoundf("node %s", nodeID)
	}

	query := "SELECT " + edgeColumns + " FROM edges WHERE tenant = ?"
	args := []interface{}{tenant}
	switch dir {
	case types.DirectionOut:
		query += " AND from_node = ?"
		args = append(args, nodeID)
	case types.DirectionIn:
		query += " AND to_node = ?"
		args = append(args, nodeID)
	default:
		query += " AND (from_node = ? OR to_node = ?)"
		args = append(args, nodeID, nodeID)
	}
	if len(edgeTypes) > 0 {
		query += " AND type IN ("
		for i, t := range edgeTypes {
			if i > 0 {
				query += ","
			}
			query += "?"
			args = append(args, string(t))
		}
		query += ")"
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var out []types.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// reachableTx reports whether `to` is reachable from `from` by following
// edges of the given type. BFS with a visited set; graphs stay small enough
// that one query per frontier node is fine.
func reachableTx(tx *sql.Tx, tenant, from, to string, edgeType types.EdgeType) (bool, error) {
	if from == to {
		return true, nil
	}
	visited := map[string]bool{from: true}
	frontier := []string{from}

	for len(frontier) > 0 {
		node := frontier[0]
		frontier = frontier[1:]

		rows, err := tx.Query(
			"SELECT to_node FROM edges WHERE tenant = ? AND from_node = ? AND type = ?",
			tenant, node, string(edgeType))
		if err != nil {
			return false, fmt.Errorf("failed to expand node %s: %w", node, err)
		}
		var next []string
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				rows.Close()
				return false, err
			}
			next = append(next, n)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return false, err
		}

		for _, n := range next {
			if n == to {
				return true, nil
			}
			if !visited[n] {
				visited[n] = true
				frontier = append(frontier, n)
			}
		}
	}
	return false, nil
}

// NodeKind returns the registered kind of a node.
func (s *LocalStore) NodeKind(tenant, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var kind string
	err := s.db.QueryRow(
		"SELECT kind FROM nodes WHERE tenant = ? AND id = ?", tenant, id).Scan(&kind)
	if err == sql.ErrNoRows {
		return "", types.NotFoundf("node %s", id)
	}
	if err != nil {
		return "", err
	}
	return kind, nil
}

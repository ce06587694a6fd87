package store

import (
	"database/sql"
	"fmt"

	"memoryd/internal/logging"
	"memoryd/internal/types"
)

const taskColumns = `id, tenant, status, title, details, refs, priority,
	blocked_by, start_date, due_date, estimate_hours, progress, assignee,
	project, session, created_at, updated_at`

func scanTask(scanner interface {
	Scan(dest ...interface{}) error
}) (types.Task, error) {
	var t types.Task
	var status, refs, blockedBy string
	var start, due sql.NullTime
	err := scanner.Scan(&t.ID, &t.Tenant, &status, &t.Title, &t.Details,
		&refs, &t.Priority, &blockedBy, &start, &due, &t.EstimateHours,
		&t.Progress, &t.Assignee, &t.Project, &t.Session, &t.CreatedAt,
		&t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.Status = types.TaskStatus(status)
	t.Refs = splitTags(refs)
	t.BlockedBy = splitTags(blockedBy)
	t.StartDate = nullTime(start)
	t.DueDate = nullTime(due)
	return t, nil
}

// upsertTaskTx creates a task or updates an existing one in place. A
// task_update event either names an existing task or mints a new one; both
// land here.
func upsertTaskTx(tx *sql.Tx, t *types.Task) error {
	_, err := tx.Exec(`
		INSERT INTO tasks (id, tenant, status, title, details, refs, priority,
			blocked_by, start_date, due_date, estimate_hours, progress,
			assignee, project, session, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			title = excluded.title,
			details = excluded.details,
			refs = excluded.refs,
			priority = excluded.priority,
			blocked_by = excluded.blocked_by,
			start_date = excluded.start_date,
			due_date = excluded.due_date,
			estimate_hours = excluded.estimate_hours,
			progress = excluded.progress,
			assignee = excluded.assignee,
			project = excluded.project,
			session = excluded.session,
			updated_at = excluded.updated_at
		WHERE tasks.tenant = excluded.tenant`,
		t.ID, t.Tenant, string(t.Status), t.Title, t.Details, joinTags(t.Refs),
		t.Priority, joinTags(t.BlockedBy), t.StartDate, t.DueDate,
		t.EstimateHours, t.Progress, t.Assignee, t.Project, t.Session,
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}
	return registerNodeTx(tx, t.Tenant, t.ID, "task", t.CreatedAt)
}

// UpsertTask creates or updates a task outside the event bundle path.
func (s *LocalStore) UpsertTask(t *types.Task) error {
	timer := logging.StartTimer(logging.CategoryStore, "UpsertTask")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx("UpsertTask", func(tx *sql.Tx) error {
		return upsertTaskTx(tx, t)
	})
}

// GetTask returns a task by id within the tenant.
func (s *LocalStore) GetTask(tenant, id string) (*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		"SELECT "+taskColumns+" FROM tasks WHERE tenant = ? AND id = ?",
		tenant, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFoundf("task %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &t, nil
}

// TaskFilter narrows ListTasks. Zero values mean "any".
type TaskFilter struct {
	Status   types.TaskStatus
	Project  string
	Session  string
	Assignee string
	Limit    int
}

// ListTasks returns tasks matching the filter, highest priority first then
// most recently updated.
func (s *LocalStore) ListTasks(tenant string, f TaskFilter) ([]types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + taskColumns + " FROM tasks WHERE tenant = ?"
	args := []interface{}{tenant}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.Project != "" {
		query += " AND project = ?"
		args = append(args, f.Project)
	}
	if f.Session != "" {
		query += " AND session = ?"
		args = append(args, f.Session)
	}
	if f.Assignee != "" {
		query += " AND assignee = ?"
		args = append(args, f.Assignee)
	}
	query += " ORDER BY priority DESC, updated_at DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

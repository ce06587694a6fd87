package store

import (
	"database/sql"
	"fmt"

	"memoryd/internal/logging"
)

// Schema versions:
// v1: Initial schema (events, chunks, edits, decisions, tasks, capsules,
//     artifacts, nodes, edges, knowledge_notes, session_handoffs, chunks_fts)
const CurrentSchemaVersion = 1

// Migration defines an additive column migration. Migrations are forward-only:
// columns are added, never dropped or retyped.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists column migrations for databases created by older
// builds. Empty at v1; additions accumulate here.
var pendingMigrations = []Migration{}

// RunMigrations applies schema migrations for existing databases.
func RunMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	if err := ensureVersionTable(db); err != nil {
		return err
	}

	appliedCount := 0
	skippedCount := 0
	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			skippedCount++
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			skippedCount++
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %s.%s failed: %w", m.Table, m.Column, err)
		}
		appliedCount++
	}

	if _, err := db.Exec(
		"INSERT OR REPLACE INTO schema_version (id, version) VALUES (1, ?)",
		CurrentSchemaVersion,
	); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	if appliedCount > 0 {
		logging.Store("Schema migrations applied=%d skipped=%d", appliedCount, skippedCount)
	}
	return nil
}

func ensureVersionTable(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_version (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL
	)`)
	return err
}

// SchemaVersion returns the recorded schema version, or 0 if unknown.
func SchemaVersion(db *sql.DB) int {
	var v int
	if err := db.QueryRow("SELECT version FROM schema_version WHERE id = 1").Scan(&v); err != nil {
		return 0
	}
	return v
}

func tableExists(db *sql.DB, table string) bool {
	var name string
	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
	).Scan(&name)
	return err == nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

package store

import (
	"fmt"

	"memoryd/internal/logging"
)

// initialize creates the required tables and runs forward-only migrations.
func (s *LocalStore) initialize() error {
	// Append-only ground truth. Events are never updated or deleted within
	// retention; purge is an explicit admin path that cascades chunks.
	eventsTable := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		session TEXT NOT NULL,
		channel TEXT NOT NULL,
		actor_type TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		sensitivity TEXT NOT NULL DEFAULT 'none',
		tags TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		refs TEXT NOT NULL DEFAULT '',
		scope TEXT NOT NULL DEFAULT 'global',
		subject_type TEXT NOT NULL DEFAULT '',
		subject_id TEXT NOT NULL DEFAULT '',
		project_id TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_tenant_ts ON events(tenant, timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_tenant_session_ts ON events(tenant, session, timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_tenant_subject ON events(tenant, subject_type, subject_id);
	CREATE INDEX IF NOT EXISTS idx_events_tenant_project ON events(tenant, project_id);
	CREATE INDEX IF NOT EXISTS idx_events_tags ON events(tags);
	`

	// Retrieval units. Each chunk has exactly one source event; purge of the
	// event cascades its chunks.
	chunksTable := `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		session TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		kind TEXT NOT NULL,
		channel TEXT NOT NULL,
		sensitivity TEXT NOT NULL DEFAULT 'none',
		tags TEXT NOT NULL DEFAULT '',
		token_estimate INTEGER NOT NULL,
		importance REAL NOT NULL DEFAULT 0.5,
		text TEXT NOT NULL,
		scope TEXT NOT NULL DEFAULT 'global',
		subject_type TEXT NOT NULL DEFAULT '',
		subject_id TEXT NOT NULL DEFAULT '',
		project_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_tenant_ts ON chunks(tenant, timestamp);
	CREATE INDEX IF NOT EXISTS idx_chunks_tenant_session_ts ON chunks(tenant, session, timestamp);
	CREATE INDEX IF NOT EXISTS idx_chunks_tenant_subject ON chunks(tenant, subject_type, subject_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_tenant_project ON chunks(tenant, project_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_event ON chunks(event_id);
	`

	// Full-text index over EFFECTIVE chunk text. Rows are refreshed when an
	// approved amend changes the text, so FTS matches always reflect the
	// composed view. mattn/go-sqlite3 compiles fts5 in only under the
	// sqlite_fts5 build tag, so this table is probed for below rather than
	// required.
	chunksFTS := `
	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		chunk_id UNINDEXED,
		tenant UNINDEXED,
		text
	);
	`

	editsTable := `
	CREATE TABLE IF NOT EXISTS memory_edits (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT NOT NULL,
		op TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		proposed_by TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL,
		applied_at DATETIME,
		approved_by TEXT NOT NULL DEFAULT '',
		patch TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_edits_target ON memory_edits(tenant, target_id, status);
	CREATE INDEX IF NOT EXISTS idx_edits_tenant_created ON memory_edits(tenant, created_at);
	`

	decisionsTable := `
	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		scope TEXT NOT NULL DEFAULT 'global',
		decision TEXT NOT NULL,
		rationale TEXT NOT NULL DEFAULT '',
		constraints TEXT NOT NULL DEFAULT '',
		alternatives TEXT NOT NULL DEFAULT '',
		consequences TEXT NOT NULL DEFAULT '',
		refs TEXT NOT NULL DEFAULT '',
		supersedes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_tenant_status ON decisions(tenant, status);
	CREATE INDEX IF NOT EXISTS idx_decisions_tenant_scope ON decisions(tenant, scope);
	`

	tasksTable := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		title TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		refs TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 0,
		blocked_by TEXT NOT NULL DEFAULT '',
		start_date DATETIME,
		due_date DATETIME,
		estimate_hours REAL NOT NULL DEFAULT 0,
		progress REAL NOT NULL DEFAULT 0,
		assignee TEXT NOT NULL DEFAULT '',
		project TEXT NOT NULL DEFAULT '',
		session TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_tenant_status ON tasks(tenant, status);
	CREATE INDEX IF NOT EXISTS idx_tasks_tenant_project ON tasks(tenant, project);
	CREATE INDEX IF NOT EXISTS idx_tasks_tenant_session ON tasks(tenant, session);
	`

	capsulesTable := `
	CREATE TABLE IF NOT EXISTS capsules (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		scope TEXT NOT NULL DEFAULT 'session',
		subject_type TEXT NOT NULL DEFAULT '',
		subject_id TEXT NOT NULL DEFAULT '',
		author_agent_id TEXT NOT NULL,
		audience TEXT NOT NULL DEFAULT '',
		items TEXT NOT NULL DEFAULT '{}',
		risks TEXT NOT NULL DEFAULT '',
		ttl_days INTEGER NOT NULL DEFAULT 7,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		revoked_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_capsules_tenant_status ON capsules(tenant, status, expires_at);
	CREATE INDEX IF NOT EXISTS idx_capsules_audience ON capsules(audience);
	`

	artifactsTable := `
	CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		event_id TEXT NOT NULL DEFAULT '',
		media_type TEXT NOT NULL DEFAULT '',
		payload BLOB,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_tenant ON artifacts(tenant);
	CREATE INDEX IF NOT EXISTS idx_artifacts_event ON artifacts(event_id);
	`

	// Node registry: one row per addressable memory artifact usable as a
	// graph endpoint. Written in the same transaction that creates the
	// artifact; edge cascade hangs off this table.
	nodesTable := `
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		kind TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_nodes_tenant_kind ON nodes(tenant, kind);
	`

	edgesTable := `
	CREATE TABLE IF NOT EXISTS edges (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		from_node TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		to_node TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		properties TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(tenant, from_node, to_node, type)
	);
	CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(tenant, from_node, type);
	CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(tenant, to_node, type);
	`

	notesTable := `
	CREATE TABLE IF NOT EXISTS knowledge_notes (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		scope TEXT NOT NULL DEFAULT 'global',
		subject_type TEXT NOT NULL DEFAULT '',
		subject_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		layer TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notes_tenant_layer ON knowledge_notes(tenant, layer);
	`

	handoffsTable := `
	CREATE TABLE IF NOT EXISTS session_handoffs (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		session TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		summary TEXT NOT NULL,
		open_items TEXT NOT NULL DEFAULT '',
		refs TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_handoffs_tenant_session ON session_handoffs(tenant, session, created_at);
	`

	for _, table := range []string{
		eventsTable,
		chunksTable,
		editsTable,
		decisionsTable,
		tasksTable,
		capsulesTable,
		artifactsTable,
		nodesTable,
		edgesTable,
		notesTable,
		handoffsTable,
	} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	// Same optional-module probe as sqlite-vec: try to create the index
	// and degrade to LIKE scans when fts5 is missing from the build.
	if _, err := s.db.Exec(chunksFTS); err != nil {
		logging.Store("fts5 index unavailable: %v", err)
		s.ftsExt = false
	} else {
		s.ftsExt = true
	}

	if err := RunMigrations(s.db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

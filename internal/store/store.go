// Package store implements the SQLite storage adapter for memoryd: typed CRUD
// over events/chunks/edits/decisions/tasks/capsules/nodes/edges, transactional
// multi-statement writes, an FTS5 index over effective chunk text (with a
// LIKE-scan fallback when the sqlite build lacks the fts5 module), and an
// optional sqlite-vec index over chunk embeddings.
//
// Tenant isolation is enforced here: every query is tenant-scoped and a
// tenant mismatch is indistinguishable from a missing row.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"memoryd/internal/logging"
	"memoryd/internal/types"
)

// LocalStore is the single write/read path to the SQLite database.
type LocalStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	dbPath    string
	vectorExt bool // sqlite-vec available
	ftsExt    bool // fts5 module compiled in
}

// NewLocalStore opens (or creates) the database at path and initializes the
// schema. Use ":memory:" for tests.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	logging.Store("Initializing LocalStore at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// NORMAL is safe with WAL and much faster than FULL for the write path.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign keys: %v", err)
	}

	store := &LocalStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}

	store.detectVecExtension()
	if store.vectorExt {
		logging.Store("sqlite-vec extension detected; ANN search enabled")
	} else {
		logging.StoreDebug("sqlite-vec extension not available; retrieval is lexical only")
	}
	if store.ftsExt {
		logging.StoreDebug("FTS5 module available; lexical search uses bm25")
	} else {
		logging.Store("FTS5 module not compiled in; lexical search falls back to LIKE scans")
	}

	logging.Store("LocalStore initialization complete")
	return store, nil
}

// Close closes the database connection.
func (s *LocalStore) Close() error {
	logging.Store("Closing LocalStore database connection")
	return s.db.Close()
}

// HasVectorIndex reports whether the sqlite-vec extension is available.
func (s *LocalStore) HasVectorIndex() bool {
	return s.vectorExt
}

// HasTextIndex reports whether the FTS5 module is available. Without it
// lexical search degrades to LIKE scans over chunk text.
func (s *LocalStore) HasTextIndex() bool {
	return s.ftsExt
}

// detectVecExtension attempts to create a vec0 virtual table to see if
// sqlite-vec is compiled in.
func (s *LocalStore) detectVecExtension() {
	if s.db == nil {
		return
	}
	if _, err := s.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])"); err == nil {
		s.vectorExt = true
		_, _ = s.db.Exec("DROP TABLE IF EXISTS vec_probe")
		return
	}
	s.vectorExt = false
}

// GetStats returns per-table row counts.
func (s *LocalStore) GetStats() (map[string]int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "GetStats")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	tables := []string{
		"events", "chunks", "memory_edits", "decisions", "tasks", "capsules",
		"artifacts", "nodes", "edges", "knowledge_notes", "session_handoffs",
	}
	for _, table := range tables {
		var count int64
		err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			logging.StoreDebug("Table %s count failed (may not exist): %v", table, err)
			continue
		}
		stats[table] = count
	}
	return stats, nil
}

// Tenants returns the distinct tenants present in the event log. The
// consolidation worker iterates these.
func (s *LocalStore) Tenants() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT DISTINCT tenant FROM events ORDER BY tenant")
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// =============================================================================
// RETRY + ERROR CLASSIFICATION
// =============================================================================

const (
	retryAttempts = 3
	retryBaseWait = 50 * time.Millisecond
)

// isDomainErr reports whether err is one of the typed kinds that must pass
// through retries untouched.
func isDomainErr(err error) bool {
	return errors.Is(err, types.ErrInvalidInput) ||
		errors.Is(err, types.ErrNotFound) ||
		errors.Is(err, types.ErrConflict) ||
		errors.Is(err, types.ErrCircularDependency) ||
		errors.Is(err, types.ErrForbidden) ||
		errors.Is(err, types.ErrDeadlineExceeded)
}

// isTransient flags sqlite contention errors worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// withRetry runs fn up to retryAttempts times with exponential backoff.
// Domain errors pass through immediately; exhausted transient failures
// surface as ErrUnavailable.
func withRetry(op string, fn func() error) error {
	var err error
	wait := retryBaseWait
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err = fn()
		if err == nil || isDomainErr(err) {
			return err
		}
		if !isTransient(err) || attempt == retryAttempts {
			break
		}
		logging.Get(logging.CategoryStore).Warn("%s attempt %d/%d failed, retrying in %v: %v",
			op, attempt, retryAttempts, wait, err)
		time.Sleep(wait)
		wait *= 2
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %s: %v", types.ErrUnavailable, op, err)
	}
	return err
}

// inTx runs fn within a transaction with retry-on-contention.
func (s *LocalStore) inTx(op string, fn func(tx *sql.Tx) error) error {
	return withRetry(op, func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// =============================================================================
// SMALL SCAN HELPERS
// =============================================================================

// joinTags flattens a tag set for storage; tags never contain commas worth
// preserving, and the array-overlap index is a LIKE over this form.
func joinTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return "," + strings.Join(tags, ",") + ","
}

// splitTags reverses joinTags.
func splitTags(s string) []string {
	trimmed := strings.Trim(s, ",")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, ",")
}

// nullTime converts a nullable column to *time.Time.
func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

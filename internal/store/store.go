package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var errNilStore = errors.New("store not initialised")

// Store wraps a pooled sqlx.DB connection to the SQLite entity store. All
// pipeline mutations go through it; it is the single source of truth.
type Store struct {
	db *sqlx.DB
}

// Open constructs a Store backed by the SQLite database at the provided
// path, migrating the schema on first use.
func Open(path string, busyTimeout time.Duration) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	busy := int(busyTimeout / time.Millisecond)
	if busy <= 0 {
		busy = 5000
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=1&_journal_mode=WAL", abs, busy)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureReady() error {
	if s == nil || s.db == nil {
		return errNilStore
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

func marshalStrings(values []string) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("marshal string list: %w", err)
	}
	return string(payload), nil
}

func unmarshalStrings(raw sql.NullString) []string {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw.String), &values); err != nil {
		return nil
	}
	if len(values) == 0 {
		return nil
	}
	return values
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS projects (
                id TEXT PRIMARY KEY,
                name TEXT NOT NULL,
                status TEXT NOT NULL DEFAULT 'draft',
                progress INTEGER NOT NULL DEFAULT 0,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS sources (
                id TEXT PRIMARY KEY,
                project_id TEXT NOT NULL,
                name TEXT NOT NULL,
                kind TEXT NOT NULL,
                content TEXT NOT NULL,
                status TEXT NOT NULL DEFAULT 'pending',
                relevance REAL NOT NULL DEFAULT 0,
                detected_type TEXT,
                summary TEXT,
                topics TEXT,
                has_requirements INTEGER NOT NULL DEFAULT 0,
                has_decisions INTEGER NOT NULL DEFAULT 0,
                has_stakeholders INTEGER NOT NULL DEFAULT 0,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
        );`,
	`CREATE TABLE IF NOT EXISTS requirements (
                project_id TEXT NOT NULL,
                id TEXT NOT NULL,
                title TEXT NOT NULL,
                description TEXT,
                category TEXT NOT NULL,
                priority TEXT NOT NULL,
                confidence REAL NOT NULL DEFAULT 0,
                source_id TEXT,
                excerpt TEXT,
                rationale TEXT,
                tags TEXT,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                PRIMARY KEY(project_id, id),
                FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
        );`,
	`CREATE TABLE IF NOT EXISTS stakeholders (
                id TEXT NOT NULL,
                project_id TEXT NOT NULL,
                name TEXT NOT NULL,
                role TEXT,
                department TEXT,
                influence TEXT NOT NULL,
                sentiment TEXT NOT NULL,
                source_ids TEXT,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                PRIMARY KEY(project_id, name),
                FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
        );`,
	`CREATE TABLE IF NOT EXISTS decisions (
                project_id TEXT NOT NULL,
                id TEXT NOT NULL,
                title TEXT NOT NULL,
                description TEXT,
                decision_type TEXT NOT NULL,
                status TEXT NOT NULL,
                confidence REAL NOT NULL DEFAULT 0,
                source_id TEXT,
                excerpt TEXT,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                PRIMARY KEY(project_id, id),
                FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
        );`,
	`CREATE TABLE IF NOT EXISTS timeline_events (
                id TEXT PRIMARY KEY,
                project_id TEXT NOT NULL,
                title TEXT NOT NULL,
                description TEXT,
                event_date TEXT,
                event_type TEXT NOT NULL,
                confidence REAL NOT NULL DEFAULT 0,
                source_id TEXT,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
        );`,
	`CREATE TABLE IF NOT EXISTS conflicts (
                project_id TEXT NOT NULL,
                id TEXT NOT NULL,
                title TEXT NOT NULL,
                description TEXT,
                severity TEXT NOT NULL,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                PRIMARY KEY(project_id, id),
                FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
        );`,
	`CREATE TABLE IF NOT EXISTS conflict_requirements (
                project_id TEXT NOT NULL,
                conflict_id TEXT NOT NULL,
                requirement_id TEXT NOT NULL,
                PRIMARY KEY(project_id, conflict_id, requirement_id),
                FOREIGN KEY(project_id, conflict_id) REFERENCES conflicts(project_id, id) ON DELETE CASCADE
        );`,
	`CREATE TABLE IF NOT EXISTS trace_links (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                project_id TEXT NOT NULL,
                from_type TEXT NOT NULL,
                from_id TEXT NOT NULL,
                to_type TEXT NOT NULL,
                to_id TEXT NOT NULL,
                relationship TEXT NOT NULL,
                strength REAL NOT NULL DEFAULT 0,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                UNIQUE(project_id, from_type, from_id, to_type, to_id, relationship),
                FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
        );`,
	`CREATE TABLE IF NOT EXISTS pipeline_runs (
                id TEXT PRIMARY KEY,
                project_id TEXT NOT NULL,
                status TEXT NOT NULL,
                sources_processed INTEGER NOT NULL DEFAULT 0,
                requirements_found INTEGER NOT NULL DEFAULT 0,
                stakeholders_found INTEGER NOT NULL DEFAULT 0,
                decisions_found INTEGER NOT NULL DEFAULT 0,
                conflicts_found INTEGER NOT NULL DEFAULT 0,
                error TEXT,
                started_at DATETIME NOT NULL,
                completed_at DATETIME,
                FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
        );`,
	`CREATE TABLE IF NOT EXISTS run_logs (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                run_id TEXT NOT NULL,
                project_id TEXT NOT NULL,
                agent TEXT NOT NULL,
                level TEXT NOT NULL,
                message TEXT NOT NULL,
                detail TEXT,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS documents (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                project_id TEXT NOT NULL,
                doc_type TEXT NOT NULL,
                version INTEGER NOT NULL,
                sections TEXT NOT NULL,
                superseded INTEGER NOT NULL DEFAULT 0,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                UNIQUE(project_id, doc_type, version),
                FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
        );`,
	`CREATE INDEX IF NOT EXISTS idx_sources_project ON sources(project_id);`,
	`CREATE INDEX IF NOT EXISTS idx_requirements_project ON requirements(project_id);`,
	`CREATE INDEX IF NOT EXISTS idx_stakeholders_project ON stakeholders(project_id);`,
	`CREATE INDEX IF NOT EXISTS idx_decisions_project ON decisions(project_id);`,
	`CREATE INDEX IF NOT EXISTS idx_timeline_project ON timeline_events(project_id);`,
	`CREATE INDEX IF NOT EXISTS idx_links_project ON trace_links(project_id);`,
	`CREATE INDEX IF NOT EXISTS idx_links_from ON trace_links(project_id, from_type, from_id);`,
	`CREATE INDEX IF NOT EXISTS idx_links_to ON trace_links(project_id, to_type, to_id);`,
	`CREATE INDEX IF NOT EXISTS idx_runs_project_started ON pipeline_runs(project_id, started_at);`,
	`CREATE INDEX IF NOT EXISTS idx_run_logs_project ON run_logs(project_id, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_documents_project_type ON documents(project_id, doc_type, version);`,
}

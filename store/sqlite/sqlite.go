/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements task.Store (TemplateStore + InstanceStore) using SQLite, plus
  persistence for materialization run records. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  templates:             Recurring task definitions; the rule is stored in
                         its field encoding (recurring::/starting::/...)
                         so what is on disk is what the user typed.
  instances:             Persisted occurrences with their lifecycle state.
  materialization_runs:  One row per heartbeat/forced materialization pass.

INDEXES:
  idx_instances_unique_due: UNIQUE(template_key, due) - the storage-level
  guarantee that a template never has two instances on the same date.
  Violations surface as recur.ErrDuplicateInstance.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/tasks.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  lifecycle := task.NewLifecycle(store, task.SystemClock())

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - task/store.go: Interface definitions
  - task/store/memory.go: In-memory implementation for testing
  - codec/codec.go: The rule field encoding stored in templates.rule_text
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/recurrence-engine/codec"
	"github.com/warp/recurrence-engine/recur"
	"github.com/warp/recurrence-engine/task"
)

// Store implements task.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ task.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Templates (recurring task definitions)
	CREATE TABLE IF NOT EXISTS templates (
		key TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		project TEXT NOT NULL,
		section TEXT NOT NULL,
		rule_text TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Instances (persisted occurrences)
	CREATE TABLE IF NOT EXISTS instances (
		id TEXT PRIMARY KEY,
		template_key TEXT NOT NULL,
		name TEXT NOT NULL,
		project TEXT NOT NULL,
		section TEXT NOT NULL,
		due TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: A template never has two instances on the same date.
	-- This backs the idempotency of the materialization pass.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_instances_unique_due
		ON instances(template_key, due);

	CREATE INDEX IF NOT EXISTS idx_instances_template
		ON instances(template_key);
	CREATE INDEX IF NOT EXISTS idx_instances_due
		ON instances(due);
	CREATE INDEX IF NOT EXISTS idx_instances_state
		ON instances(state);

	-- Materialization Runs (one row per heartbeat/forced pass)
	CREATE TABLE IF NOT EXISTS materialization_runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		created_count INTEGER DEFAULT 0,
		skipped_count INTEGER DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'running',
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_materialization_runs_started
		ON materialization_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TEMPLATE STORE (task.TemplateStore interface)
// =============================================================================

// SaveTemplate inserts or replaces a template. The rule is persisted in its
// field encoding so the stored form matches what the user typed.
func (s *Store) SaveTemplate(ctx context.Context, tpl task.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO templates (key, name, project, section, rule_text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			rule_text = excluded.rule_text,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query,
		tpl.Identity.Key(),
		tpl.Identity.Name, tpl.Identity.Project, tpl.Identity.Section,
		codec.EncodeRule(tpl.Rule),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

// Template retrieves a template by identity.
func (s *Store) Template(ctx context.Context, id task.Identity) (task.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var name, project, section, ruleText string
	err := s.db.QueryRowContext(ctx,
		"SELECT name, project, section, rule_text FROM templates WHERE key = ?",
		id.Key(),
	).Scan(&name, &project, &section, &ruleText)

	if err == sql.ErrNoRows {
		return task.Template{}, recur.ErrTemplateNotFound
	}
	if err != nil {
		return task.Template{}, err
	}

	return assembleTemplate(name, project, section, ruleText)
}

// ListTemplates returns all templates.
func (s *Store) ListTemplates(ctx context.Context) ([]task.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT name, project, section, rule_text FROM templates ORDER BY project, section, name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []task.Template
	for rows.Next() {
		var name, project, section, ruleText string
		if err := rows.Scan(&name, &project, &section, &ruleText); err != nil {
			return nil, err
		}
		tpl, err := assembleTemplate(name, project, section, ruleText)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

// DeleteTemplate removes a template. Its persisted instances remain; an
// orphaned instance completes without spawning a successor.
func (s *Store) DeleteTemplate(ctx context.Context, id task.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM templates WHERE key = ?", id.Key())
	return err
}

func assembleTemplate(name, project, section, ruleText string) (task.Template, error) {
	rule, err := codec.DecodeRule(codec.ExtractFields(ruleText), recur.Today())
	if err != nil {
		return task.Template{}, fmt.Errorf("failed to decode stored rule %q: %w", ruleText, err)
	}
	return task.Template{
		Identity: task.Identity{Name: name, Project: project, Section: section},
		Rule:     rule,
	}, nil
}

// =============================================================================
// INSTANCE STORE (task.InstanceStore interface)
// =============================================================================

// Insert persists an instance. Inserting a second instance for the same
// template and date returns recur.ErrDuplicateInstance.
func (s *Store) Insert(ctx context.Context, inst task.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertTx(ctx, s.db, inst)
}

func (s *Store) insertTx(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, inst task.Instance) error {
	query := `
		INSERT INTO instances (id, template_key, name, project, section, due, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(ctx, query,
		inst.ID,
		inst.Identity.Key(),
		inst.Identity.Name, inst.Identity.Project, inst.Identity.Section,
		inst.Due.String(),
		string(inst.State),
		now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return recur.ErrDuplicateInstance
		}
		return fmt.Errorf("failed to insert instance: %w", err)
	}
	return nil
}

// InsertBatch persists instances atomically: either every instance lands or
// none do. Used by virtual-completion, which writes the completed record and
// its successor together.
func (s *Store) InsertBatch(ctx context.Context, insts []task.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, inst := range insts {
		if err := s.insertTx(ctx, sqlTx, inst); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

// Exists checks whether any instance covers the given template and date.
func (s *Store) Exists(ctx context.Context, id task.Identity, due recur.CalendarDate) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM instances WHERE template_key = ? AND due = ?",
		id.Key(), due.String(),
	).Scan(&count)

	return count > 0, err
}

// Instance retrieves an instance by ID.
func (s *Store) Instance(ctx context.Context, instanceID string) (task.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, name, project, section, due, state
		FROM instances WHERE id = ?
	`

	insts, err := s.queryInstances(ctx, query, instanceID)
	if err != nil {
		return task.Instance{}, err
	}
	if len(insts) == 0 {
		return task.Instance{}, recur.ErrInstanceNotFound
	}
	return insts[0], nil
}

// ListInstances returns all instances of one template, ordered by due date.
func (s *Store) ListInstances(ctx context.Context, id task.Identity) ([]task.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, name, project, section, due, state
		FROM instances
		WHERE template_key = ?
		ORDER BY due ASC
	`

	return s.queryInstances(ctx, query, id.Key())
}

// ListAllInstances returns every persisted instance, ordered by due date.
func (s *Store) ListAllInstances(ctx context.Context) ([]task.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, name, project, section, due, state
		FROM instances
		ORDER BY due ASC, project, section, name
	`

	return s.queryInstances(ctx, query)
}

// MarkCompleted transitions an instance to the completed state.
func (s *Store) MarkCompleted(ctx context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE instances SET state = ?, updated_at = ? WHERE id = ?",
		string(task.StateCompleted),
		time.Now().UTC().Format(time.RFC3339),
		instanceID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return recur.ErrInstanceNotFound
	}
	return nil
}

func (s *Store) queryInstances(ctx context.Context, query string, args ...any) ([]task.Instance, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer rows.Close()

	var instances []task.Instance
	for rows.Next() {
		var inst task.Instance
		var due, state string
		if err := rows.Scan(
			&inst.ID,
			&inst.Identity.Name, &inst.Identity.Project, &inst.Identity.Section,
			&due, &state,
		); err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		inst.Due, err = recur.ParseCalendarDate(due)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored due date %q: %w", due, err)
		}
		inst.State = task.State(state)
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// =============================================================================
// MATERIALIZATION RUNS STORE
// =============================================================================

// MaterializationRun is one recorded heartbeat or forced pass.
type MaterializationRun struct {
	ID           string
	StartedAt    time.Time
	CompletedAt  *time.Time
	CreatedCount int
	SkippedCount int
	Status       string // running, completed, failed
	Error        string
}

// SaveMaterializationRun inserts or updates a run record.
func (s *Store) SaveMaterializationRun(ctx context.Context, r MaterializationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO materialization_runs (id, started_at, completed_at, created_count, skipped_count, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			completed_at = excluded.completed_at,
			created_count = excluded.created_count,
			skipped_count = excluded.skipped_count,
			status = excluded.status,
			error = excluded.error
	`

	var completedAt *string
	if r.CompletedAt != nil {
		t := r.CompletedAt.Format(time.RFC3339)
		completedAt = &t
	}

	_, err := s.db.ExecContext(ctx, query,
		r.ID,
		r.StartedAt.Format(time.RFC3339),
		completedAt,
		r.CreatedCount, r.SkippedCount,
		r.Status, r.Error,
	)
	return err
}

// ListMaterializationRuns returns the most recent runs, newest first.
func (s *Store) ListMaterializationRuns(ctx context.Context, limit int) ([]MaterializationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, started_at, completed_at, created_count, skipped_count, status, error
		FROM materialization_runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []MaterializationRun
	for rows.Next() {
		var r MaterializationRun
		var startedAt string
		var completedAt, runErr sql.NullString
		if err := rows.Scan(&r.ID, &startedAt, &completedAt,
			&r.CreatedCount, &r.SkippedCount, &r.Status, &runErr); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if completedAt.Valid {
			t, _ := time.Parse(time.RFC3339, completedAt.String)
			r.CompletedAt = &t
		}
		r.Error = runErr.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"instances", "templates", "materialization_runs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

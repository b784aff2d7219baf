// Package catalog indexes generation runs, the schedules they built and the
// simulator configs they wrote in a SQLite database next to the output.
package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"illusiongen/internal/emitter"
	"illusiongen/internal/logging"
	"illusiongen/internal/schedule"
	"illusiongen/internal/trace"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// Store manages the artifact catalog database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Open creates or opens the catalog at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:     db,
		dbPath: path,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.CatalogDebug("opened catalog %s", path)
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		status TEXT NOT NULL,
		networks_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS schedules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		network TEXT NOT NULL,
		word INTEGER NOT NULL,
		batch INTEGER NOT NULL,
		config REAL NOT NULL,
		source_file TEXT NOT NULL,
		nodes INTEGER NOT NULL,
		messages INTEGER NOT NULL,
		keepalive INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);
	CREATE INDEX IF NOT EXISTS idx_schedules_run ON schedules(run_id);

	CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		network TEXT NOT NULL,
		word INTEGER NOT NULL,
		batch INTEGER NOT NULL,
		config REAL NOT NULL,
		topology TEXT NOT NULL,
		k INTEGER NOT NULL,
		n INTEGER NOT NULL,
		routing TEXT NOT NULL,
		path TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_network ON artifacts(network, config);
	CREATE INDEX IF NOT EXISTS idx_artifacts_topology ON artifacts(topology);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RUN OPERATIONS
// =============================================================================

// Run is one generation run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     string
	Networks   []string
	Schedules  int
	Artifacts  int
}

// BeginRun records a new run and returns its id.
func (s *Store) BeginRun(networks []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	networksJSON, _ := json.Marshal(networks)

	_, err := s.db.Exec(`
		INSERT INTO runs (id, started_at, status, networks_json)
		VALUES (?, ?, ?, ?)
	`, id, time.Now().UTC(), StatusRunning, string(networksJSON))
	if err != nil {
		return "", fmt.Errorf("failed to begin run: %w", err)
	}
	return id, nil
}

// FinishRun stamps a run with its final status.
func (s *Store) FinishRun(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE runs SET finished_at = ?, status = ? WHERE id = ?`,
		time.Now().UTC(), status, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unknown run %s", id)
	}
	logging.Catalog("run %s %s", id, status)
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT r.id, r.started_at, r.finished_at, r.status, r.networks_json,
			(SELECT COUNT(*) FROM schedules WHERE run_id = r.id),
			(SELECT COUNT(*) FROM artifacts WHERE run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		var networksJSON sql.NullString
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &networksJSON,
			&r.Schedules, &r.Artifacts); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		if networksJSON.Valid {
			json.Unmarshal([]byte(networksJSON.String), &r.Networks)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// SCHEDULE AND ARTIFACT OPERATIONS
// =============================================================================

// RecordSchedule stores the summary of a finalized schedule.
func (s *Store) RecordSchedule(runID string, sch *schedule.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc := sch.Scenario
	_, err := s.db.Exec(`
		INSERT INTO schedules (run_id, network, word, batch, config, source_file,
			nodes, messages, keepalive)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, sc.Network, sc.Word, sc.Batch, sc.Config, sch.File,
		sch.Nodes, len(sch.Messages), sch.KeepAlive)
	if err != nil {
		return fmt.Errorf("failed to record schedule %s: %w", sc, err)
	}
	return nil
}

// RecordArtifacts stores the configs written for one scenario.
func (s *Store) RecordArtifacts(runID string, sc trace.Scenario, artifacts []emitter.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO artifacts (run_id, network, word, batch, config, topology, k, n, routing, path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range artifacts {
		if _, err := stmt.Exec(runID, sc.Network, sc.Word, sc.Batch, sc.Config,
			a.Variant.Family, a.Variant.K, a.Variant.Dim, a.Routing, a.Path); err != nil {
			return fmt.Errorf("failed to record artifact %s: %w", a.Name, err)
		}
	}
	return tx.Commit()
}

// ArtifactRecord is one cataloged simulator config.
type ArtifactRecord struct {
	RunID    string
	Scenario trace.Scenario
	Topology string
	K        int
	Dim      int
	Routing  string
	Path     string
}

// Name returns the artifact file name.
func (a ArtifactRecord) Name() string {
	return emitter.ArtifactName(a.Scenario, emitter.Variant{Family: a.Topology, K: a.K, Dim: a.Dim})
}

// ArtifactFilter narrows an artifact query. Zero fields match everything.
type ArtifactFilter struct {
	RunID    string
	Network  string
	Topology string
	Config   *float64
	Limit    int
}

// Artifacts returns cataloged configs matching f, in insertion order.
func (s *Store) Artifacts(f ArtifactFilter) ([]ArtifactRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []interface{}
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Network != "" {
		where = append(where, "network = ?")
		args = append(args, f.Network)
	}
	if f.Topology != "" {
		where = append(where, "topology = ?")
		args = append(args, f.Topology)
	}
	if f.Config != nil {
		where = append(where, "config = ?")
		args = append(args, *f.Config)
	}

	query := `SELECT run_id, network, word, batch, config, topology, k, n, routing, path FROM artifacts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var out []ArtifactRecord
	for rows.Next() {
		var a ArtifactRecord
		if err := rows.Scan(&a.RunID, &a.Scenario.Network, &a.Scenario.Word, &a.Scenario.Batch,
			&a.Scenario.Config, &a.Topology, &a.K, &a.Dim, &a.Routing, &a.Path); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

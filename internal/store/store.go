package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS resolution_passes (
	id            TEXT PRIMARY KEY,
	pass_id       TEXT NOT NULL,
	snapshot_hash TEXT,
	protocol_id   TEXT,
	stage_id      TEXT,
	stage_index   INTEGER NOT NULL DEFAULT 0,
	score         REAL NOT NULL DEFAULT 0,
	fallback      INTEGER NOT NULL DEFAULT 0,
	decision      TEXT NOT NULL,
	layout_json   TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_resolution_passes_pass ON resolution_passes(pass_id);

CREATE TABLE IF NOT EXISTS provenance_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	pass_id       TEXT NOT NULL,
	snapshot_hash TEXT,
	trigger_type  TEXT NOT NULL,
	protocol_id   TEXT,
	details_json  TEXT,
	decision      TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS active_pass (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	record_id     TEXT NOT NULL,
	FOREIGN KEY (record_id) REFERENCES resolution_passes(id)
);
`
// #endregion schema

// #region store-struct
// Store keeps the history of resolution passes in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for the provenance logger.
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion db-accessor

// #region record-pass
// RecordPass inserts a pass and returns it with its row id and timestamp
// set. Passes that were applied (anything but "superseded") also become
// the current pass.
func (s *Store) RecordPass(rec PassRecord) (PassRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	layoutJSON, err := json.Marshal(rec.Layout)
	if err != nil {
		return PassRecord{}, fmt.Errorf("marshal layout: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return PassRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO resolution_passes (id, pass_id, snapshot_hash, protocol_id, stage_id, stage_index, score, fallback, decision, layout_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PassID, nullIfEmpty(rec.SnapshotHash), nullIfEmpty(rec.ProtocolID), nullIfEmpty(rec.StageID),
		rec.StageIndex, rec.Score, boolInt(rec.Fallback), rec.Decision, string(layoutJSON),
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return PassRecord{}, fmt.Errorf("insert pass: %w", err)
	}

	if rec.Decision != "superseded" {
		_, err = tx.Exec(
			`INSERT INTO active_pass (id, record_id) VALUES (1, ?)
			 ON CONFLICT(id) DO UPDATE SET record_id = excluded.record_id`,
			rec.ID,
		)
		if err != nil {
			return PassRecord{}, fmt.Errorf("set active: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return PassRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}
// #endregion record-pass

// #region get-current
// GetCurrent reads the most recently applied pass.
func (s *Store) GetCurrent() (PassRecord, error) {
	var id string
	err := s.db.QueryRow(`SELECT record_id FROM active_pass WHERE id = 1`).Scan(&id)
	if err != nil {
		return PassRecord{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetPass(id)
}
// #endregion get-current

// #region get-pass
const passColumns = `id, pass_id, snapshot_hash, protocol_id, stage_id, stage_index, score, fallback, decision, layout_json, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPass(row scanner) (PassRecord, error) {
	var rec PassRecord
	var hash, protocolID, stageID sql.NullString
	var fallback int
	var layoutJSON, createdStr string

	if err := row.Scan(&rec.ID, &rec.PassID, &hash, &protocolID, &stageID, &rec.StageIndex,
		&rec.Score, &fallback, &rec.Decision, &layoutJSON, &createdStr); err != nil {
		return PassRecord{}, err
	}
	rec.SnapshotHash = hash.String
	rec.ProtocolID = protocolID.String
	rec.StageID = stageID.String
	rec.Fallback = fallback != 0
	if err := json.Unmarshal([]byte(layoutJSON), &rec.Layout); err != nil {
		return PassRecord{}, fmt.Errorf("unmarshal layout: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

// GetPass retrieves a pass by row id or pass id.
func (s *Store) GetPass(id string) (PassRecord, error) {
	row := s.db.QueryRow(
		`SELECT `+passColumns+` FROM resolution_passes WHERE id = ? OR pass_id = ?
		 ORDER BY created_at DESC LIMIT 1`, id, id,
	)
	rec, err := scanPass(row)
	if err != nil {
		return PassRecord{}, fmt.Errorf("get pass %s: %w", id, err)
	}
	return rec, nil
}
// #endregion get-pass

// #region list-passes
// ListPasses returns the most recent passes, newest first.
func (s *Store) ListPasses(limit int) ([]PassRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+passColumns+` FROM resolution_passes ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list passes: %w", err)
	}
	defer rows.Close()

	var records []PassRecord
	for rows.Next() {
		rec, err := scanPass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
// #endregion list-passes

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
// #endregion helpers

package calibration

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultStorePath is the default relative path for the SQLite DB.
// Open() creates the parent dir (e.g. .iacgate) if it does not exist.
const DefaultStorePath = ".iacgate/iacgate.db"

const schemaVersionV1 = 1

const schemaV1 = `
CREATE TABLE schema_version (
	version INTEGER NOT NULL
);
CREATE TABLE calibration_buckets (
	judge   TEXT NOT NULL,
	policy  TEXT NOT NULL,
	lo      REAL NOT NULL,
	hi      REAL NOT NULL,
	count   INTEGER NOT NULL DEFAULT 0,
	correct INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (judge, policy, lo)
);
CREATE TABLE decisions (
	id         TEXT PRIMARY KEY,
	policy     TEXT NOT NULL,
	action     TEXT NOT NULL,
	risk       REAL NOT NULL,
	latency_ms INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE outcomes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	decision_id TEXT NOT NULL,
	judge       TEXT NOT NULL,
	policy      TEXT NOT NULL,
	confidence  REAL NOT NULL,
	correct     INTEGER NOT NULL,
	created_at  TEXT NOT NULL
);
`

// nowUTC returns the current UTC time as an ISO 8601 string.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

// Store persists calibration models and the decision audit trail in SQLite.
// A store that cannot be opened is fatal at startup; the engine cannot
// calibrate without it.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and runs migrations.
// Creates the parent directory if it does not exist.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableCount == 0 {
		if _, err := s.db.Exec(schemaV1); err != nil {
			return fmt.Errorf("create v1 schema: %w", err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersionV1); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}

	var v int
	err = s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersionV1); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		v = schemaVersionV1
	}
	if v != schemaVersionV1 {
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// LoadTracker builds a Tracker from every persisted calibration model.
// Models are loaded as whole bucket partitions; a judge/policy pair with no
// rows simply starts cold.
func (s *Store) LoadTracker(opts ...Option) (*Tracker, error) {
	t := NewTracker(opts...)

	rows, err := s.db.Query(
		"SELECT judge, policy, lo, hi, count, correct FROM calibration_buckets ORDER BY judge, policy, lo",
	)
	if err != nil {
		return nil, fmt.Errorf("load calibration buckets: %w", err)
	}
	defer rows.Close()

	var cur ModelSnapshot
	flush := func() error {
		if cur.Judge == "" {
			return nil
		}
		if err := t.Load(cur); err != nil {
			return err
		}
		cur = ModelSnapshot{}
		return nil
	}
	for rows.Next() {
		var judge, policy string
		var b Bucket
		if err := rows.Scan(&judge, &policy, &b.Lo, &b.Hi, &b.Count, &b.Correct); err != nil {
			return nil, fmt.Errorf("scan calibration bucket: %w", err)
		}
		if judge != cur.Judge || policy != cur.PolicyKey {
			if err := flush(); err != nil {
				return nil, err
			}
			cur.Judge, cur.PolicyKey = judge, policy
		}
		cur.Buckets = append(cur.Buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calibration buckets: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return t, nil
}

// Flush upserts every dirty model from the tracker inside one transaction
// and marks flushed models clean. Safe to call periodically and at shutdown.
func (s *Store) Flush(t *Tracker) error {
	snaps := t.Snapshot()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin flush: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO calibration_buckets (judge, policy, lo, hi, count, correct)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(judge, policy, lo) DO UPDATE SET
			hi = excluded.hi, count = excluded.count, correct = excluded.correct`)
	if err != nil {
		return fmt.Errorf("prepare flush: %w", err)
	}
	defer stmt.Close()

	var flushed []ModelSnapshot
	for _, snap := range snaps {
		if !snap.Dirty {
			continue
		}
		for _, b := range snap.Buckets {
			if _, err := stmt.Exec(snap.Judge, snap.PolicyKey, b.Lo, b.Hi, b.Count, b.Correct); err != nil {
				return fmt.Errorf("flush model %s/%s: %w", snap.Judge, snap.PolicyKey, err)
			}
		}
		flushed = append(flushed, snap)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flush: %w", err)
	}
	for _, snap := range flushed {
		t.MarkClean(snap.Judge, snap.PolicyKey)
	}
	return nil
}

// SaveDecision appends one emitted decision to the audit table. The payload
// is the full decision JSON; the scalar columns exist for querying.
func (s *Store) SaveDecision(id, policyKey, action string, risk float64, latencyMS int64, payload []byte) error {
	_, err := s.db.Exec(
		"INSERT INTO decisions (id, policy, action, risk, latency_ms, payload, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		id, policyKey, action, risk, latencyMS, string(payload), nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("save decision %s: %w", id, err)
	}
	return nil
}

// GetDecisionPayload returns the stored JSON for one decision.
func (s *Store) GetDecisionPayload(id string) ([]byte, error) {
	var payload string
	err := s.db.QueryRow("SELECT payload FROM decisions WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decision %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get decision %s: %w", id, err)
	}
	return []byte(payload), nil
}

// AppendOutcome records one ground-truth observation row and returns its ID
// so callers can deduplicate resubmissions.
func (s *Store) AppendOutcome(decisionID, judge, policyKey string, confidence float64, correct bool) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO outcomes (decision_id, judge, policy, confidence, correct, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		decisionID, judge, policyKey, confidence, boolToInt(correct), nowUTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("append outcome: %w", err)
	}
	return res.LastInsertId()
}

// CountDecisionsByAction returns decision counts grouped by action for one
// policy key; an empty key means all policies.
func (s *Store) CountDecisionsByAction(policyKey string) (map[string]int64, error) {
	query := "SELECT action, COUNT(*) FROM decisions GROUP BY action"
	args := []any{}
	if policyKey != "" {
		query = "SELECT action, COUNT(*) FROM decisions WHERE policy = ? GROUP BY action"
		args = append(args, policyKey)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("count decisions: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var action string
		var n int64
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("scan decision count: %w", err)
		}
		out[action] = n
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package actionlog

// actionlog is a small append-only journal of every mutation the client
// attempted and how it ended up: committed, reconciled against a fetched
// snapshot, rolled back, or failed outright. The history command and the
// tests read it back; nothing in the hot path depends on it succeeding.

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite journal.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS actions (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  ts INTEGER NOT NULL,
	  type TEXT NOT NULL,
	  post_id TEXT NOT NULL,
	  outcome TEXT NOT NULL,
	  detail TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_actions_ts ON actions(ts);
	CREATE TABLE IF NOT EXISTS cursors (
	  name TEXT PRIMARY KEY,
	  value TEXT NOT NULL
	);
	`)
	return err
}

// Outcomes recorded for actions.
const (
	OutcomeCommitted  = "committed"
	OutcomeReconciled = "reconciled"
	OutcomeRolledBack = "rolledback"
	OutcomeFailed     = "failed"
)

// Action is one journal row.
type Action struct {
	TS      time.Time
	Type    string
	PostID  string
	Outcome string
	Detail  string
}

// Record appends one action row.
func (d *DB) Record(ctx context.Context, ts time.Time, typ, postID, outcome, detail string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO actions(ts, type, post_id, outcome, detail) VALUES(?,?,?,?,?)`,
		ts.Unix(), typ, postID, outcome, detail)
	return err
}

// Actions returns rows in [start, end), optionally filtered by type.
func (d *DB) Actions(ctx context.Context, start, end time.Time, typ string) ([]Action, error) {
	var rows *sql.Rows
	var err error
	if typ == "" {
		rows, err = d.sql.QueryContext(ctx, `SELECT ts, type, post_id, outcome, COALESCE(detail,'') FROM actions WHERE ts>=? AND ts<? ORDER BY ts, id`, start.Unix(), end.Unix())
	} else {
		rows, err = d.sql.QueryContext(ctx, `SELECT ts, type, post_id, outcome, COALESCE(detail,'') FROM actions WHERE ts>=? AND ts<? AND type=? ORDER BY ts, id`, start.Unix(), end.Unix(), typ)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Action
	for rows.Next() {
		var ts int64
		var a Action
		if err := rows.Scan(&ts, &a.Type, &a.PostID, &a.Outcome, &a.Detail); err != nil {
			return nil, err
		}
		a.TS = time.Unix(ts, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountWithin counts actions in [start, end), optionally filtered by type.
func (d *DB) CountWithin(ctx context.Context, start, end time.Time, typ string) (int, error) {
	var row *sql.Row
	if typ == "" {
		row = d.sql.QueryRowContext(ctx, `SELECT COUNT(1) FROM actions WHERE ts>=? AND ts<?`, start.Unix(), end.Unix())
	} else {
		row = d.sql.QueryRowContext(ctx, `SELECT COUNT(1) FROM actions WHERE ts>=? AND ts<? AND type=?`, start.Unix(), end.Unix(), typ)
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// SaveCursor upserts a named cursor value.
func (d *DB) SaveCursor(ctx context.Context, name, value string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO cursors(name, value) VALUES(?,?) ON CONFLICT(name) DO UPDATE SET value=excluded.value`, name, value)
	return err
}

// LoadCursor returns a named cursor value.
func (d *DB) LoadCursor(ctx context.Context, name string) (string, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT value FROM cursors WHERE name=?`, name)
	var v string
	if err := row.Scan(&v); err != nil {
		return "", err
	}
	return v, nil
}

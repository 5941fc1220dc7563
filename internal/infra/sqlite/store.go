// Package sqlite is the durable side-channel for membership state: an
// append-only event log (for restart recovery and audit) and a snapshot
// table holding each member's latest view. Nothing in this repository loads
// the snapshot rows back into the membership registry. It never sits on the
// hot path of a probe or gossip exchange.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a *sql.DB opened against the modernc.org/sqlite driver and runs
// the event-log migrations on open.
type DB struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite file at path and applies
// migrations. Use ":memory:" for an ephemeral, process-local database.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// modernc.org/sqlite does not support concurrent writers on one
	// connection; the store is only ever touched from the event-bus
	// listener goroutine, so a single connection is sufficient and avoids
	// SQLITE_BUSY noise.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{db: sqlDB}
	for _, stmt := range Migrations() {
		if _, err := sqlDB.Exec(stmt); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	return db, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	return db.db.Close()
}

// Migrations returns the event-log schema migration statements, one
// statement per entry.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS membership_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			member_id  TEXT NOT NULL,
			address    TEXT NOT NULL,
			state      TEXT NOT NULL,
			term       INTEGER NOT NULL,
			recorded_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_member ON membership_events(member_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_recorded ON membership_events(recorded_at)`,

		`CREATE TABLE IF NOT EXISTS member_snapshot (
			member_id  TEXT PRIMARY KEY,
			address    TEXT NOT NULL,
			zone       TEXT NOT NULL DEFAULT '',
			rack       TEXT NOT NULL DEFAULT '',
			host       TEXT NOT NULL DEFAULT '',
			version    TEXT NOT NULL DEFAULT '',
			state      TEXT NOT NULL,
			term       INTEGER NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
}

// EventRecord is a single append-only entry in the membership event log.
type EventRecord struct {
	ID         int64
	EventType  string
	MemberID   string
	Address    string
	State      string
	Term       int64
	RecordedAt time.Time
}

// InsertEvent appends a row to the event log.
func (db *DB) InsertEvent(eventType, memberID, address, state string, term int64) error {
	_, err := db.db.Exec(`
		INSERT INTO membership_events (event_type, member_id, address, state, term)
		VALUES (?, ?, ?, ?, ?)
	`, eventType, memberID, address, state, term)
	return err
}

// ListEvents returns every event recorded for memberID, oldest first.
func (db *DB) ListEvents(memberID string) ([]EventRecord, error) {
	rows, err := db.db.Query(`
		SELECT id, event_type, member_id, address, state, term, recorded_at
		FROM membership_events WHERE member_id = ? ORDER BY id ASC
	`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var r EventRecord
		var recordedStr string
		if err := rows.Scan(&r.ID, &r.EventType, &r.MemberID, &r.Address, &r.State, &r.Term, &recordedStr); err != nil {
			return nil, err
		}
		r.RecordedAt, _ = time.Parse("2006-01-02 15:04:05", recordedStr)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneBefore deletes every event recorded strictly before cutoff, and
// returns the number of rows removed. Intended for a periodic cleanup task
// so the log does not grow without bound.
func (db *DB) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := db.db.Exec(`
		DELETE FROM membership_events WHERE recorded_at < ?
	`, cutoff.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpsertSnapshot records the latest known view of a member.
func (db *DB) UpsertSnapshot(memberID, address, zone, rack, host, version, state string, term int64) error {
	_, err := db.db.Exec(`
		INSERT INTO member_snapshot (member_id, address, zone, rack, host, version, state, term, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(member_id) DO UPDATE SET
			address    = excluded.address,
			zone       = excluded.zone,
			rack       = excluded.rack,
			host       = excluded.host,
			version    = excluded.version,
			state      = excluded.state,
			term       = excluded.term,
			updated_at = datetime('now')
	`, memberID, address, zone, rack, host, version, state, term)
	return err
}

// SnapshotRecord is a single row of the member_snapshot table.
type SnapshotRecord struct {
	MemberID string
	Address  string
	Zone     string
	Rack     string
	Host     string
	Version  string
	State    string
	Term     int64
}

// ListSnapshot returns every member snapshot row. The membership service
// has no entry point that accepts these rows.
func (db *DB) ListSnapshot() ([]SnapshotRecord, error) {
	rows, err := db.db.Query(`
		SELECT member_id, address, zone, rack, host, version, state, term
		FROM member_snapshot
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		var r SnapshotRecord
		if err := rows.Scan(&r.MemberID, &r.Address, &r.Zone, &r.Rack, &r.Host, &r.Version, &r.State, &r.Term); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RemoveSnapshot deletes the snapshot row for memberID, used once a member
// is evicted from the registry as DEAD.
func (db *DB) RemoveSnapshot(memberID string) error {
	_, err := db.db.Exec(`DELETE FROM member_snapshot WHERE member_id = ?`, memberID)
	return err
}

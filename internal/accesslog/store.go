// Package accesslog implements the append-only local event store, grounded
// on marcopennelli-orbo's internal/database/database.go migration-list and
// upsert idioms, backed by modernc.org/sqlite (pure Go, no cgo).
package accesslog

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gatenet/edge-node/internal/models"
)

// Store is the access log's sqlite-backed persistence layer.
type Store struct {
	db *sql.DB
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS access_events (
		id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		gate_id TEXT NOT NULL,
		track_id INTEGER NOT NULL,
		face_id TEXT,
		user_id TEXT,
		name TEXT,
		status TEXT NOT NULL,
		decision TEXT NOT NULL,
		confidence REAL NOT NULL,
		face_crop_bytes BLOB,
		synced INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_access_events_timestamp ON access_events(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_access_events_synced ON access_events(synced)`,
	`CREATE INDEX IF NOT EXISTS idx_access_events_status ON access_events(status)`,
}

// Open opens (creating if needed) the sqlite database at path, enables WAL
// mode, and runs pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("accesslog: open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("accesslog: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("accesslog: enable foreign_keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	for _, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("accesslog: migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes one AccessEvent synchronously. This is the only write path
// at decision time; synced always starts false.
func (s *Store) Append(e models.AccessEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO access_events
			(id, timestamp, gate_id, track_id, face_id, user_id, name, status, decision, confidence, face_crop_bytes, synced, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		e.EventID, e.Timestamp.Unix(), e.GateID, e.TrackID,
		nullableString(e.FaceID), nullableString(""), nullableString(e.PersonName),
		string(e.Status), string(e.Decision), e.Confidence, e.FaceCrop, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("accesslog: append: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// UnsyncedBatch returns up to limit events not yet marked synced, oldest
// first, matching the reference implementation's upload-loop batch size.
func (s *Store) UnsyncedBatch(limit int) ([]models.AccessEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, timestamp, gate_id, track_id, COALESCE(face_id,''), COALESCE(name,''), status, decision, confidence, face_crop_bytes
		 FROM access_events WHERE synced = 0 ORDER BY timestamp ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("accesslog: query unsynced: %w", err)
	}
	defer rows.Close()

	var out []models.AccessEvent
	for rows.Next() {
		var e models.AccessEvent
		var ts int64
		var status, decision string
		var crop []byte
		if err := rows.Scan(&e.EventID, &ts, &e.GateID, &e.TrackID, &e.FaceID, &e.PersonName, &status, &decision, &e.Confidence, &crop); err != nil {
			return nil, fmt.Errorf("accesslog: scan: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		e.Status = models.PersonStatus(status)
		e.Decision = models.GateDecision(decision)
		e.FaceCrop = crop
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkSynced flips the synced flag for the given event ids.
func (s *Store) MarkSynced(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("accesslog: begin tx: %w", err)
	}
	stmt, err := tx.Prepare(`UPDATE access_events SET synced = 1 WHERE id = ?`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("accesslog: prepare: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			tx.Rollback()
			return fmt.Errorf("accesslog: mark synced: %w", err)
		}
	}
	return tx.Commit()
}

// Recent returns the most recent n rows, newest first.
func (s *Store) Recent(n int) ([]models.AccessEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, timestamp, gate_id, track_id, COALESCE(face_id,''), COALESCE(name,''), status, decision, confidence
		 FROM access_events ORDER BY timestamp DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("accesslog: query recent: %w", err)
	}
	defer rows.Close()

	var out []models.AccessEvent
	for rows.Next() {
		var e models.AccessEvent
		var ts int64
		var status, decision string
		if err := rows.Scan(&e.EventID, &ts, &e.GateID, &e.TrackID, &e.FaceID, &e.PersonName, &status, &decision, &e.Confidence); err != nil {
			return nil, fmt.Errorf("accesslog: scan: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		e.Status = models.PersonStatus(status)
		e.Decision = models.GateDecision(decision)
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneSyncedOlderThan deletes already-synced rows older than the given
// retention cutoff.
func (s *Store) PruneSyncedOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM access_events WHERE synced = 1 AND timestamp < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("accesslog: prune: %w", err)
	}
	return res.RowsAffected()
}

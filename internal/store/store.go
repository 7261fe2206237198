// Package store persists analyzer sessions in SQLite so an interrupted
// analysis can be resumed.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"sma-lab/internal/points"
	"sma-lab/pkg/colorutil"
	"sma-lab/pkg/geometry"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection with serialized access.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// SessionInfo describes a stored session.
type SessionInfo struct {
	Dataset   string
	Records   int
	Excluded  int
	Defaults  bool
	UpdatedAt time.Time
}

// New opens (creating if needed) the database at dbPath.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset TEXT NOT NULL UNIQUE,
		has_defaults INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS default_points (
		session_id INTEGER NOT NULL,
		slot INTEGER NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		PRIMARY KEY (session_id, slot),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		timestamp TEXT NOT NULL,
		excluded INTEGER NOT NULL DEFAULT 0,
		UNIQUE (session_id, timestamp),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS samples (
		record_id INTEGER NOT NULL,
		slot INTEGER NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		r INTEGER NOT NULL,
		g INTEGER NOT NULL,
		b INTEGER NOT NULL,
		temperature REAL NOT NULL,
		PRIMARY KEY (record_id, slot),
		FOREIGN KEY (record_id) REFERENCES records(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_records_session ON records(session_id, seq);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveSnapshot replaces the stored session for dataset.
func (db *DB) SaveSnapshot(dataset string, snap points.Snapshot) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sessions WHERE dataset = ?`, dataset); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	res, err := tx.Exec(`
		INSERT INTO sessions (dataset, has_defaults, updated_at)
		VALUES (?, ?, ?)
	`, dataset, snap.Defaults != nil, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	sessionID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	if snap.Defaults != nil {
		for slot, p := range snap.Defaults {
			if _, err := tx.Exec(`
				INSERT INTO default_points (session_id, slot, x, y) VALUES (?, ?, ?, ?)
			`, sessionID, slot, p.X, p.Y); err != nil {
				return fmt.Errorf("failed to insert default point: %w", err)
			}
		}
	}

	for seq, rec := range snap.Records {
		res, err := tx.Exec(`
			INSERT INTO records (session_id, seq, timestamp, excluded) VALUES (?, ?, ?, ?)
		`, sessionID, seq, rec.Timestamp, rec.Excluded)
		if err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.Timestamp, err)
		}
		recordID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		for slot, s := range rec.Points {
			if s == nil {
				continue
			}
			if _, err := tx.Exec(`
				INSERT INTO samples (record_id, slot, x, y, r, g, b, temperature)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, recordID, slot, s.Pos.X, s.Pos.Y, s.Color.R, s.Color.G, s.Color.B, s.Temperature); err != nil {
				return fmt.Errorf("failed to insert sample: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored session for dataset. ok is false when
// nothing was stored.
func (db *DB) LoadSnapshot(dataset string) (snap points.Snapshot, ok bool, err error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var sessionID int64
	var hasDefaults bool
	err = db.conn.QueryRow(`SELECT id, has_defaults FROM sessions WHERE dataset = ?`, dataset).
		Scan(&sessionID, &hasDefaults)
	if err == sql.ErrNoRows {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("failed to query session: %w", err)
	}

	if hasDefaults {
		var d points.Defaults
		rows, err := db.conn.Query(`SELECT slot, x, y FROM default_points WHERE session_id = ?`, sessionID)
		if err != nil {
			return snap, false, fmt.Errorf("failed to query defaults: %w", err)
		}
		n := 0
		for rows.Next() {
			var slot int
			var p geometry.PointInt
			if err := rows.Scan(&slot, &p.X, &p.Y); err != nil {
				rows.Close()
				return snap, false, fmt.Errorf("failed to scan default point: %w", err)
			}
			if slot >= 0 && slot < points.Slots {
				d[slot] = p
				n++
			}
		}
		rows.Close()
		if n != points.Slots {
			return snap, false, fmt.Errorf("session %s: incomplete default layout", dataset)
		}
		snap.Defaults = &d
	}

	rows, err := db.conn.Query(`
		SELECT r.id, r.timestamp, r.excluded, s.slot, s.x, s.y, s.r, s.g, s.b, s.temperature
		FROM records r
		LEFT JOIN samples s ON s.record_id = r.id
		WHERE r.session_id = ?
		ORDER BY r.seq, s.slot
	`, sessionID)
	if err != nil {
		return snap, false, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	lastID := int64(-1)
	for rows.Next() {
		var (
			id       int64
			ts       string
			excluded bool
			slot     sql.NullInt64
			x, y     sql.NullInt64
			r, g, b  sql.NullInt64
			temp     sql.NullFloat64
		)
		if err := rows.Scan(&id, &ts, &excluded, &slot, &x, &y, &r, &g, &b, &temp); err != nil {
			return snap, false, fmt.Errorf("failed to scan record: %w", err)
		}
		if id != lastID {
			snap.Records = append(snap.Records, points.RecordSnapshot{Timestamp: ts, Excluded: excluded})
			lastID = id
		}
		if !slot.Valid || slot.Int64 < 0 || slot.Int64 >= points.Slots {
			continue
		}
		rec := &snap.Records[len(snap.Records)-1]
		rec.Points[slot.Int64] = &points.Sample{
			Pos:         geometry.PointInt{X: int(x.Int64), Y: int(y.Int64)},
			Color:       colorutil.RGB{R: uint8(r.Int64), G: uint8(g.Int64), B: uint8(b.Int64)},
			Temperature: temp.Float64,
		}
	}
	if err := rows.Err(); err != nil {
		return snap, false, fmt.Errorf("failed to read records: %w", err)
	}
	return snap, true, nil
}

// Sessions lists the stored sessions, most recently updated first.
func (db *DB) Sessions() ([]SessionInfo, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT s.dataset, s.has_defaults, s.updated_at,
			COUNT(r.id), COALESCE(SUM(r.excluded), 0)
		FROM sessions s
		LEFT JOIN records r ON r.session_id = s.id
		GROUP BY s.id
		ORDER BY s.updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.Dataset, &info.Defaults, &info.UpdatedAt, &info.Records, &info.Excluded); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteSession removes the stored session for dataset.
func (db *DB) DeleteSession(dataset string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.Exec(`DELETE FROM sessions WHERE dataset = ?`, dataset); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

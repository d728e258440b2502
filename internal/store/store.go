// Package store persists reconciled torrent matches to a single SQLite
// table.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"debridvfs/internal/debrid"
	"debridvfs/internal/media"
)

// Match is one persisted row: a torrent's detail alongside the metadata the
// identifier assigned it.
type Match struct {
	TorrentID string
	Info      debrid.TorrentInfo
	Metadata  media.Metadata
	UpdatedAt time.Time
}

// Store is a SQLite-backed table of matches, keyed by torrent id.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dbPath and ensures its
// schema exists.
func Open(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(64)
	db.SetMaxIdleConns(32)

	if _, err := db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		if _, err := db.Exec(`PRAGMA wal_checkpoint(RESTART)`); err != nil {
			_, _ = db.Exec(`PRAGMA wal_checkpoint(PASSIVE)`)
		}
	}

	_, _ = db.Exec(`PRAGMA synchronous=NORMAL`)
	_, _ = db.Exec(`PRAGMA cache_size=-20000`)
	_, _ = db.Exec(`PRAGMA temp_store=MEMORY`)
	_, _ = db.Exec(`PRAGMA journal_size_limit=67108864`)
	_, _ = db.Exec(`PRAGMA wal_autocheckpoint=1000`)
	_, _ = db.Exec(`PRAGMA mmap_size=134217728`)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS matches (
	torrent_id TEXT PRIMARY KEY,
	info       TEXT NOT NULL,
	metadata   TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`)
	return err
}

// Close checkpoints the WAL and closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	_, _ = s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
	_, _ = s.db.Exec(`PRAGMA optimize`)
	return s.db.Close()
}

// Upsert writes or replaces the row for m.TorrentID.
func (s *Store) Upsert(m Match) error {
	if s == nil {
		return errors.New("store not initialized")
	}

	infoJSON, err := json.Marshal(m.Info)
	if err != nil {
		return err
	}
	metaJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return err
	}

	_, err = execWithRetry(s.db,
		`INSERT INTO matches(torrent_id, info, metadata, updated_at)
		 VALUES(?,?,?,?)
		 ON CONFLICT(torrent_id) DO UPDATE SET
		   info=excluded.info,
		   metadata=excluded.metadata,
		   updated_at=excluded.updated_at`,
		m.TorrentID, string(infoJSON), string(metaJSON), time.Now().Unix(),
	)
	return err
}

// Get returns the match for torrentID, or (Match{}, false, nil) if absent.
func (s *Store) Get(torrentID string) (Match, bool, error) {
	if s == nil {
		return Match{}, false, errors.New("store not initialized")
	}

	var infoJSON, metaJSON string
	var updatedAt int64
	err := s.db.QueryRow(`SELECT info, metadata, updated_at FROM matches WHERE torrent_id=?`, torrentID).
		Scan(&infoJSON, &metaJSON, &updatedAt)
	if err == sql.ErrNoRows {
		return Match{}, false, nil
	}
	if err != nil {
		return Match{}, false, err
	}

	m, err := decodeMatch(torrentID, infoJSON, metaJSON, updatedAt)
	if err != nil {
		return Match{}, false, err
	}
	return m, true, nil
}

// Has reports whether torrentID already has a persisted match, without
// decoding the row.
func (s *Store) Has(torrentID string) (bool, error) {
	if s == nil {
		return false, errors.New("store not initialized")
	}
	var x int
	err := s.db.QueryRow(`SELECT 1 FROM matches WHERE torrent_id=? LIMIT 1`, torrentID).Scan(&x)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// All returns every persisted match.
func (s *Store) All() ([]Match, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.db.Query(`SELECT torrent_id, info, metadata, updated_at FROM matches`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var id, infoJSON, metaJSON string
		var updatedAt int64
		if err := rows.Scan(&id, &infoJSON, &metaJSON, &updatedAt); err != nil {
			return out, err
		}
		m, err := decodeMatch(id, infoJSON, metaJSON, updatedAt)
		if err != nil {
			return out, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AllIDs returns every torrent id currently persisted.
func (s *Store) AllIDs() ([]string, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.db.Query(`SELECT torrent_id FROM matches`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes torrentID's row, if present.
func (s *Store) Delete(torrentID string) error {
	if s == nil {
		return errors.New("store not initialized")
	}
	_, err := execWithRetry(s.db, `DELETE FROM matches WHERE torrent_id=?`, torrentID)
	return err
}

// Count returns the number of persisted matches.
func (s *Store) Count() (int, error) {
	if s == nil {
		return 0, errors.New("store not initialized")
	}
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM matches`).Scan(&n)
	return n, err
}

func decodeMatch(torrentID, infoJSON, metaJSON string, updatedAt int64) (Match, error) {
	var info debrid.TorrentInfo
	if err := json.Unmarshal([]byte(infoJSON), &info); err != nil {
		return Match{}, err
	}
	var meta media.Metadata
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return Match{}, err
	}
	return Match{
		TorrentID: torrentID,
		Info:      info,
		Metadata:  meta,
		UpdatedAt: time.Unix(updatedAt, 0),
	}, nil
}

// execWithRetry retries transient SQLITE_BUSY/LOCKED errors with backoff.
func execWithRetry(db *sql.DB, query string, args ...any) (sql.Result, error) {
	var lastErr error
	sleep := 5 * time.Millisecond
	for i := 0; i < 8; i++ {
		res, err := db.Exec(query, args...)
		if err == nil {
			return res, nil
		}

		if !isBusyErr(err) {
			return nil, err
		}
		lastErr = err
		time.Sleep(sleep)
		sleep *= 2
		if sleep > 250*time.Millisecond {
			sleep = 250 * time.Millisecond
		}
	}
	return nil, lastErr
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "SQLITE_BUSY") || strings.Contains(s, "database is locked") || strings.Contains(s, "SQLITE_LOCKED")
}

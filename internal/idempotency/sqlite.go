package idempotency

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteJournal is the durable journal tier, adapted from the teacher's
// statedb.go WAL-mode + busy-timeout SQLite setup.
type SQLiteJournal struct {
	db *sql.DB
}

// OpenSQLiteJournal opens (creating if necessary) a SQLite-backed journal at
// path, enabling WAL mode and a busy timeout the way the teacher's statedb
// does.
func OpenSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS idempotency_journal (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

func (s *SQLiteJournal) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl).Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency_journal (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	return err
}

func (s *SQLiteJournal) Get(ctx context.Context, key string) ([]byte, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM idempotency_journal WHERE key = ?`, key)

	var value []byte
	var expiresAt int64
	if err := row.Scan(&value, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	if time.Now().Unix() > expiresAt {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM idempotency_journal WHERE key = ?`, key)
		return nil, false, nil
	}

	return value, true, nil
}

func (s *SQLiteJournal) Close() error {
	return s.db.Close()
}

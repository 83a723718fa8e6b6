package kvasset

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS assets (
	key          TEXT PRIMARY KEY,
	body         BLOB NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	modified     INTEGER NOT NULL
)`

// SQLiteStore is a Store persisted in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates when missing) the asset table at dsn.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "kvasset: open sqlite %q", dsn)
	}
	// Single writer keeps SQLite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "kvasset: create schema")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Lookup(ctx context.Context, key string) (*Entry, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	var (
		e        = Entry{Key: key}
		modified int64
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT body, content_type, modified FROM assets WHERE key = ?`, key)
	if err := row.Scan(&e.Body, &e.ContentType, &modified); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, errors.Wrapf(err, "kvasset: lookup %q", key)
	}
	e.ModTime = time.Unix(0, modified).UTC()
	return &e, nil
}

func (s *SQLiteStore) Put(ctx context.Context, entry *Entry) error {
	if err := validateKey(entry.Key); err != nil {
		return err
	}
	modTime := entry.ModTime
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	body := entry.Body
	if body == nil {
		body = []byte{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (key, body, content_type, modified) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			body = excluded.body,
			content_type = excluded.content_type,
			modified = excluded.modified`,
		entry.Key, body, entry.ContentType, modTime.UnixNano())
	return errors.Wrapf(err, "kvasset: put %q", entry.Key)
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM assets ORDER BY key`)
	if err != nil {
		return nil, errors.Wrap(err, "kvasset: list keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.Wrap(err, "kvasset: scan key")
		}
		keys = append(keys, k)
	}
	return keys, errors.Wrap(rows.Err(), "kvasset: list keys")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

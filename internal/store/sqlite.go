package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteDB holds a shared SQLite database whose rows carry one collection
// snapshot each. Saves run inside a transaction, so a crash mid-write
// leaves the prior snapshot intact.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		body BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &SQLiteDB{db: db}, nil
}

// Backend returns the Backend for the named collection.
func (s *SQLiteDB) Backend(name string) Backend {
	return &sqliteBackend{db: s.db, name: name}
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

type sqliteBackend struct {
	db   *sql.DB
	name string
}

func (b *sqliteBackend) Load() ([]byte, error) {
	var body []byte
	err := b.db.QueryRow(`SELECT body FROM collections WHERE name = ?`, b.name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", b.name, err)
	}
	return body, nil
}

func (b *sqliteBackend) Save(data []byte) error {
	_, err := b.db.Exec(
		`INSERT INTO collections (name, body) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET body = excluded.body`,
		b.name, data,
	)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", b.name, err)
	}
	return nil
}

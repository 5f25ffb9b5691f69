// Package opstate persists tether's operational state between restarts:
// the supervisor's last state, when it entered it, and publish counts.
// It is a diagnostics journal read by "tether status", not a
// configuration store; nothing read from it changes runtime behavior.
package opstate

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a namespaced key-value store backed by SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the store at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s, err := NewStoreDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreDB wraps an already-open database, creating the schema if
// needed. The Store takes ownership of db.
func NewStoreDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS operational_state (
		namespace  TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (namespace, key)
	);
	`)
	return err
}

// Get returns the value for namespace/key, or "" if it does not exist.
func (s *Store) Get(namespace, key string) (string, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM operational_state WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

// Set upserts a namespace/key/value triple.
func (s *Store) Set(namespace, key, value string) error {
	return s.SetMany(namespace, map[string]string{key: value})
}

// SetMany upserts several keys in one transaction.
func (s *Store) SetMany(namespace string, values map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("set %s: begin: %w", namespace, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for key, value := range values {
		if _, err := tx.Exec(
			`INSERT INTO operational_state (namespace, key, value, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (namespace, key) DO UPDATE
			 SET value = excluded.value, updated_at = excluded.updated_at`,
			namespace, key, value, now,
		); err != nil {
			return fmt.Errorf("set %s/%s: %w", namespace, key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set %s: commit: %w", namespace, err)
	}
	return nil
}

// DeleteNamespace removes all entries for a namespace.
func (s *Store) DeleteNamespace(namespace string) error {
	if _, err := s.db.Exec(`DELETE FROM operational_state WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("delete namespace %s: %w", namespace, err)
	}
	return nil
}

// List returns all key/value pairs for a namespace. Returns an empty
// (non-nil) map if the namespace has no entries.
func (s *Store) List(namespace string) (map[string]string, error) {
	rows, err := s.db.Query(
		`SELECT key, value FROM operational_state WHERE namespace = ? ORDER BY key`,
		namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", namespace, err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", namespace, err)
		}
		result[k] = v
	}
	return result, rows.Err()
}

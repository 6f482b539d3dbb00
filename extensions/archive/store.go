package archive

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, registered under "sqlite"
)

// Store is an embedded SQLite-backed key/value store for archived
// tools/call results, keyed by a generated id.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) the SQLite database at path and
// ensures its schema exists.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open database: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS archived_responses (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	content BLOB NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Put stores content under id, overwriting any prior entry.
func (s *Store) Put(id string, content []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO archived_responses (id, content) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET content = excluded.content`,
		id, content,
	)
	return err
}

// Get retrieves content stored under id. found is false if no such id
// exists.
func (s *Store) Get(id string) (content []byte, found bool, err error) {
	row := s.db.QueryRow(`SELECT content FROM archived_responses WHERE id = ?`, id)
	if err := row.Scan(&content); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return content, true, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

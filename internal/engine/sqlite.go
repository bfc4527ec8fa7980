package engine

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/celerix-dev/drinklog/pkg/schema"
)

//go:embed schema.sql
var schemaSQL string

// SQLitePersistence stores collections in a single SQLite database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
type SQLitePersistence struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and applies the schema.
// It is safe to call on an existing database.
func OpenSQLite(path string) (*SQLitePersistence, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLitePersistence{db: db}, nil
}

// Close closes the database connection.
func (s *SQLitePersistence) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveCollection replaces the rows of a collection in one transaction.
func (s *SQLitePersistence) SaveCollection(name string, docs []schema.Document) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM documents WHERE collection = ?`, name); err != nil {
		return fmt.Errorf("failed to clear collection %s: %w", name, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO documents (collection, id, seq, fields) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, d := range docs {
		raw, mErr := json.Marshal(d.Fields)
		if mErr != nil {
			err = fmt.Errorf("failed to marshal document %s: %w", d.ID, mErr)
			return err
		}
		if _, err = stmt.Exec(name, d.ID, i, string(raw)); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// LoadAll returns every collection ordered by insertion.
func (s *SQLitePersistence) LoadAll() (map[string][]schema.Document, error) {
	rows, err := s.db.Query(`SELECT collection, id, fields FROM documents ORDER BY collection ASC, seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	all := make(map[string][]schema.Document)
	for rows.Next() {
		var collection, id, raw string
		if err := rows.Scan(&collection, &id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document %s: %w", id, err)
		}
		all[collection] = append(all[collection], schema.Document{ID: id, Fields: fields})
	}
	return all, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed DocumentStore.
type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite pragmas: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			key TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			version INTEGER NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at_unix INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at_unix);`,
	}
	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (Document, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Document{}, ErrInvalidKey
	}
	row := s.db.QueryRowContext(ctx, `SELECT key, body, version, updated_at_unix FROM documents WHERE key = ?`, key)
	document, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("load document %s: %w", key, err)
	}
	return document, nil
}

func (s *Store) Put(ctx context.Context, key string, body []byte, expectedVersion int64) (Document, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Document{}, ErrInvalidKey
	}
	now := time.Now().UTC()
	nextVersion := expectedVersion + 1

	var (
		result sql.Result
		err    error
	)
	if expectedVersion == 0 {
		result, err = s.db.ExecContext(
			ctx,
			`INSERT INTO documents (key, body, version, updated_at_unix) VALUES (?, ?, ?, ?)
			 ON CONFLICT(key) DO NOTHING`,
			key, string(body), nextVersion, now.Unix(),
		)
	} else {
		result, err = s.db.ExecContext(
			ctx,
			`UPDATE documents SET body = ?, version = ?, updated_at_unix = ? WHERE key = ? AND version = ?`,
			string(body), nextVersion, now.Unix(), key, expectedVersion,
		)
	}
	if err != nil {
		return Document{}, fmt.Errorf("write document %s: %w", key, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Document{}, fmt.Errorf("write document %s: %w", key, err)
	}
	if affected == 0 {
		return Document{}, ErrConflict
	}
	return Document{Key: key, Body: body, Version: nextVersion, UpdatedAt: now}, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]Document, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT key, body, version, updated_at_unix FROM documents WHERE substr(key, 1, ?) = ? ORDER BY key ASC`,
		len(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	documents := []Document{}
	for rows.Next() {
		document, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, document)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return documents, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var (
		document      Document
		body          string
		updatedAtUnix int64
	)
	if err := row.Scan(&document.Key, &body, &document.Version, &updatedAtUnix); err != nil {
		return Document{}, err
	}
	document.Body = []byte(body)
	document.UpdatedAt = time.Unix(updatedAtUnix, 0).UTC()
	return document, nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileStore keeps one JSON envelope per document in a directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

type fileEnvelope struct {
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Body      json.RawMessage `json:"body"`
}

func NewFileStore(dir string) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("file store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Get(ctx context.Context, key string) (Document, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Document{}, ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(key)
}

func (s *FileStore) Put(ctx context.Context, key string, body []byte, expectedVersion int64) (Document, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Document{}, ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(key)
	switch {
	case errors.Is(err, ErrNotFound):
		if expectedVersion != 0 {
			return Document{}, ErrConflict
		}
	case err != nil:
		return Document{}, err
	case current.Version != expectedVersion:
		return Document{}, ErrConflict
	}

	if !json.Valid(body) {
		return Document{}, fmt.Errorf("write document %s: body is not valid json", key)
	}
	now := time.Now().UTC()
	envelope := fileEnvelope{Version: expectedVersion + 1, UpdatedAt: now, Body: json.RawMessage(body)}
	encoded, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return Document{}, fmt.Errorf("encode document %s: %w", key, err)
	}
	path := s.pathFor(key)
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return Document{}, fmt.Errorf("write document %s: %w", key, err)
	}
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return Document{}, fmt.Errorf("write document %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return Document{}, fmt.Errorf("write document %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return Document{}, fmt.Errorf("write document %s: %w", key, err)
	}
	return Document{Key: key, Body: body, Version: envelope.Version, UpdatedAt: now}, nil
}

func (s *FileStore) List(ctx context.Context, prefix string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	keys := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil || !strings.HasPrefix(key, prefix) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	documents := make([]Document, 0, len(keys))
	for _, key := range keys {
		document, err := s.read(key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		documents = append(documents, document)
	}
	return documents, nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) read(key string) (Document, error) {
	data, err := os.ReadFile(s.pathFor(key))
	if errors.Is(err, os.ErrNotExist) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("read document %s: %w", key, err)
	}
	var envelope fileEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Version == 0 {
		// Hand-edited or truncated files read as version 0 so the next write replaces them.
		return Document{Key: key, Body: data}, nil
	}
	return Document{Key: key, Body: []byte(envelope.Body), Version: envelope.Version, UpdatedAt: envelope.UpdatedAt}, nil
}

func (s *FileStore) pathFor(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+".json")
}

// Package store persists the assistant's JSON documents (contacts, sessions,
// urgency log, configuration) behind a small versioned key/value interface.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrConflict   = errors.New("document update conflict")
	ErrInvalidKey = errors.New("invalid document key")
	// ErrSkipWrite may be returned by an Update callback to leave the document untouched.
	ErrSkipWrite = errors.New("skip document write")
)

const maxUpdateAttempts = 3

// updateLocks queues writers of the same key inside this process, so the
// version check only has to arbitrate between processes.
var updateLocks = NewKeyedMutex()

type Document struct {
	Key       string
	Body      []byte
	Version   int64
	UpdatedAt time.Time
}

// DocumentStore is implemented by the SQLite and file backends. Put is a
// compare-and-swap: expectedVersion 0 creates the document, any other value
// must match the stored version or ErrConflict is returned.
type DocumentStore interface {
	Get(ctx context.Context, key string) (Document, error)
	Put(ctx context.Context, key string, body []byte, expectedVersion int64) (Document, error)
	List(ctx context.Context, prefix string) ([]Document, error)
	Close() error
}

// Update runs one read-modify-write cycle on key. fn receives nil when the
// document does not exist yet. Updates of one key are serialized in-process;
// a conflicting writer from another process causes fn to be re-run. fn must
// not call Update itself.
func Update(ctx context.Context, docs DocumentStore, key string, fn func(current []byte) ([]byte, error)) (Document, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Document{}, ErrInvalidKey
	}
	unlock := updateLocks.Lock(key)
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Document{}, err
		}
		current, err := docs.Get(ctx, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Document{}, err
		}
		next, err := fn(current.Body)
		if errors.Is(err, ErrSkipWrite) {
			return current, nil
		}
		if err != nil {
			return Document{}, err
		}
		written, err := docs.Put(ctx, key, next, current.Version)
		if errors.Is(err, ErrConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return Document{}, err
		}
		return written, nil
	}
	return Document{}, fmt.Errorf("update %s after %d attempts: %w", key, maxUpdateAttempts, lastErr)
}

// GetJSON decodes key into a T. Missing or malformed documents report found=false
// so callers fall back to defaults.
func GetJSON[T any](ctx context.Context, docs DocumentStore, key string) (T, bool, error) {
	var value T
	document, err := docs.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return value, false, nil
	}
	if err != nil {
		return value, false, err
	}
	if err := json.Unmarshal(document.Body, &value); err != nil {
		var zero T
		return zero, false, nil
	}
	return value, true, nil
}

// UpdateJSON is Update with JSON encoding. fn mutates value in place; exists
// is false for a missing or malformed document.
func UpdateJSON[T any](ctx context.Context, docs DocumentStore, key string, fn func(value *T, exists bool) error) (T, error) {
	var result T
	_, err := Update(ctx, docs, key, func(current []byte) ([]byte, error) {
		var value T
		exists := false
		if len(current) > 0 {
			if err := json.Unmarshal(current, &value); err == nil {
				exists = true
			} else {
				var zero T
				value = zero
			}
		}
		if err := fn(&value, exists); err != nil {
			if errors.Is(err, ErrSkipWrite) {
				result = value
			}
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		result = value
		return encoded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// KeyedMutex serializes work per key while letting distinct keys proceed in parallel.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: map[string]*keyedEntry{}}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

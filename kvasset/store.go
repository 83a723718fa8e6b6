// Package kvasset serves pre-built site assets out of a key-value store.
//
// A [Store] holds asset bodies under keys derived from request paths
// ("index.html", "js/app.js"). A [Handler] maps an HTTP request to a key,
// looks it up (through an in-process edge cache unless bypassed) and builds
// a [Response] with content type, ETag and conditional request handling.
package kvasset

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrKeyNotFound indicates that the key doesn't exist in the store.
	ErrKeyNotFound = errors.New("kvasset: key not found")

	// ErrInvalidKey indicates that the given key is invalid.
	ErrInvalidKey = errors.New("kvasset: invalid key")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("kvasset: store closed")
)

// Entry is a stored asset.
type Entry struct {
	Key         string
	Body        []byte
	ContentType string
	ModTime     time.Time
}

// Size returns the body length in bytes.
func (e *Entry) Size() int64 {
	return int64(len(e.Body))
}

// Store is the key-value backend holding site assets.
type Store interface {
	// Lookup returns the entry for key, or ErrKeyNotFound.
	Lookup(ctx context.Context, key string) (*Entry, error)
	// Put inserts or replaces an entry.
	Put(ctx context.Context, entry *Entry) error
	// Keys lists every stored key in lexical order.
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// MemoryStore is a Store backed by a map. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	closed  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (s *MemoryStore) Lookup(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	e, ok := s.entries[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) Put(ctx context.Context, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(entry.Key); err != nil {
		return err
	}

	cp := *entry
	cp.Body = append([]byte(nil), entry.Body...)
	if cp.ModTime.IsZero() {
		cp.ModTime = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.entries[cp.Key] = &cp
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func validateKey(key string) error {
	if key == "" || len(key) > 1024 {
		return ErrInvalidKey
	}
	return nil
}

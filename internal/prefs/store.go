// Package prefs is the device preference store. Reads fall back to defaults and writes
// are best-effort: a broken backend degrades the app to defaults, it never fails a flow.
package prefs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"reflect"
	"sort"
	"strings"
	"sync"

	"cvrd/client/internal/store"
)

const (
	KeyAppearanceMode     = "cvrd:appearance_mode"
	KeyCardCustomizations = "cvrd:card_customizations"
	KeyHidePauseWarning   = "cvrd:hide_pause_warning1"
	KeySectionOrder       = "@cvrd/section_order"
	KeySessionToken       = "cvrd:session_token"
)

// Store wraps a backend with JSON encoding, default-filling reads and per-key write order.
type Store struct {
	backend store.Backend

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(backend store.Backend) *Store {
	return &Store{
		backend: backend,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Store) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Load decodes the value stored under key into target, which must be a non-nil pointer.
// It reports false when the key is absent, null or unreadable, leaving target untouched.
func (s *Store) Load(ctx context.Context, key string, target any) bool {
	raw, ok := s.getRaw(ctx, key)
	if !ok {
		return false
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return false
	}
	ptr := reflect.ValueOf(target)
	if ptr.Kind() != reflect.Pointer || ptr.IsNil() {
		log.Printf("prefs: decode %s: target %T is not a pointer", key, target)
		return false
	}
	decoded := reflect.New(ptr.Elem().Type())
	if err := json.Unmarshal(raw, decoded.Interface()); err != nil {
		log.Printf("prefs: decode %s: %v", key, err)
		return false
	}
	ptr.Elem().Set(decoded.Elem())
	return true
}

// Get returns the stored value for key, or def when it is absent or undecodable.
func Get[T any](ctx context.Context, s *Store, key string, def T) T {
	var value T
	if !s.Load(ctx, key, &value) {
		return def
	}
	return value
}

// Set persists value under key. Failures are logged and reported as false.
func (s *Store) Set(ctx context.Context, key string, value any) bool {
	unlock := s.lock(key)
	defer unlock()
	return s.setLocked(ctx, key, value)
}

func (s *Store) setLocked(ctx context.Context, key string, value any) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		log.Printf("prefs: encode %s: %v", key, err)
		return false
	}
	return s.setRawLocked(ctx, key, raw)
}

func (s *Store) setRawLocked(ctx context.Context, key string, raw []byte) bool {
	if err := s.backend.Set(ctx, key, raw); err != nil {
		log.Printf("prefs: write %s: %v", key, err)
		return false
	}
	return true
}

// Remove deletes key. Failures are logged and reported as false.
func (s *Store) Remove(ctx context.Context, key string) bool {
	unlock := s.lock(key)
	defer unlock()

	if err := s.backend.Delete(ctx, key); err != nil {
		log.Printf("prefs: remove %s: %v", key, err)
		return false
	}
	return true
}

func (s *Store) getRaw(ctx context.Context, key string) ([]byte, bool) {
	raw, err := s.backend.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		log.Printf("prefs: read %s: %v", key, err)
		return nil, false
	}
	return raw, true
}

// Ping reports whether the backing storage is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

var snapshotPrefixes = []string{"cvrd:", "@cvrd/"}

// Snapshot returns every app preference as raw JSON, keyed by preference key. The session
// token is never included.
func (s *Store) Snapshot(ctx context.Context) (map[string]json.RawMessage, error) {
	snapshot := make(map[string]json.RawMessage)
	for _, prefix := range snapshotPrefixes {
		keys, err := s.backend.Keys(ctx, prefix)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			if key == KeySessionToken {
				continue
			}
			raw, ok := s.getRaw(ctx, key)
			if !ok {
				continue
			}
			if !json.Valid(raw) {
				log.Printf("prefs: skip invalid value for %s in snapshot", key)
				continue
			}
			snapshot[key] = json.RawMessage(raw)
		}
	}
	return snapshot, nil
}

// Restore writes every entry of snapshot and returns how many were persisted.
func (s *Store) Restore(ctx context.Context, snapshot map[string]json.RawMessage) int {
	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		if key == KeySessionToken || !hasSnapshotPrefix(key) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	restored := 0
	for _, key := range keys {
		unlock := s.lock(key)
		if s.setRawLocked(ctx, key, snapshot[key]) {
			restored++
		}
		unlock()
	}
	return restored
}

func hasSnapshotPrefix(key string) bool {
	for _, prefix := range snapshotPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

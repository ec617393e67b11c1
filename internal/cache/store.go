// Package cache implements the build-local, time-boxed cache placed in front
// of rate-limited or slow remote fetches (npm download counts, package
// READMEs).
//
// Storage is abstracted behind Store so the TTL policy in TTLCache can be
// tested without touching the filesystem. Three stores are provided:
// FileStore (one JSON file per key, the default), LevelDBStore and
// MemoryStore.
package cache

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// Entry is one stored value together with the time it was stored, in
// milliseconds since the Unix epoch.
type Entry struct {
	StoredAt int64           `json:"storedAt"`
	Value    json.RawMessage `json:"value"`
}

// Store is a key-value capability for cache entries. Get reports a miss for
// anything it cannot read back intact; it never fails.
type Store interface {
	Get(key string) (Entry, bool)
	Set(key string, entry Entry) error
}

// Maintainer is implemented by stores that can enumerate and drop their
// entries.
type Maintainer interface {
	Keys() ([]string, error)
	Clear() error
}

// SanitizeKey turns an arbitrary identifier such as a scoped npm package
// name into a string that is safe to use as a file name. Path separators and
// @ are dropped, other unsafe characters become '_'.
func SanitizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r == '@' || r == '/' || r == '\\':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := strings.TrimLeft(b.String(), ".")
	if s == "" {
		return "_"
	}
	return s
}

// MemoryStore keeps entries in a map. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	// FailWrites makes Set return an error, for exercising best-effort writes.
	FailWrites error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (m *MemoryStore) Get(key string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[SanitizeKey(key)]
	return e, ok
}

func (m *MemoryStore) Set(key string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.entries[SanitizeKey(key)] = entry
	return nil
}

func (m *MemoryStore) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	m.entries = make(map[string]Entry)
	m.mu.Unlock()
	return nil
}

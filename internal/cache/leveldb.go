package cache

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore keeps entries in a LevelDB database under "<namespace>:<key>".
// Namespaces created with Namespace share the underlying database.
type LevelDBStore struct {
	db        *leveldb.DB
	namespace string
	owner     bool
}

// OpenLevelDBStore opens (or creates) the database at path.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	return &LevelDBStore{db: db, namespace: "default", owner: true}, nil
}

// Namespace returns a view of the same database whose keys do not overlap
// with other namespaces.
func (l *LevelDBStore) Namespace(ns string) *LevelDBStore {
	return &LevelDBStore{db: l.db, namespace: ns}
}

func (l *LevelDBStore) prefix() []byte {
	return []byte(l.namespace + ":")
}

func (l *LevelDBStore) dbKey(key string) []byte {
	return append(l.prefix(), SanitizeKey(key)...)
}

func (l *LevelDBStore) Get(key string) (Entry, bool) {
	b, err := l.db.Get(l.dbKey(key), nil)
	if err != nil {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil || len(e.Value) == 0 {
		return Entry{}, false
	}
	return e, true
}

func (l *LevelDBStore) Set(key string, entry Entry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	return l.db.Put(l.dbKey(key), b, nil)
}

func (l *LevelDBStore) Keys() ([]string, error) {
	it := l.db.NewIterator(util.BytesPrefix(l.prefix()), nil)
	defer it.Release()

	var keys []string
	n := len(l.prefix())
	for it.Next() {
		keys = append(keys, string(it.Key()[n:]))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear deletes every entry of this namespace.
func (l *LevelDBStore) Clear() error {
	it := l.db.NewIterator(util.BytesPrefix(l.prefix()), nil)
	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return err
	}
	return l.db.Write(batch, nil)
}

// Close closes the database. Namespace views do not own it and are no-ops.
func (l *LevelDBStore) Close() error {
	if !l.owner {
		return nil
	}
	return l.db.Close()
}

package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// storedAtField is the timestamp field name of cache files.
const storedAtField = "dateStoredValueOf"

// FileStore keeps each entry in <dir>/<sanitized key>.json as
//
//	{"dateStoredValueOf": <epoch millis>, "<valueField>": <payload>}
//
// Several FileStores may share a directory as long as their keys differ.
type FileStore struct {
	dir        string
	valueField string
}

// NewFileStore returns a FileStore rooted at dir. valueField names the JSON
// field holding the payload; it defaults to "value".
func NewFileStore(dir, valueField string) *FileStore {
	if valueField == "" {
		valueField = "value"
	}
	return &FileStore{dir: dir, valueField: valueField}
}

// Path returns the file backing key.
func (f *FileStore) Path(key string) string {
	return filepath.Join(f.dir, SanitizeKey(key)+".json")
}

func (f *FileStore) Get(key string) (Entry, bool) {
	data, err := os.ReadFile(f.Path(key))
	if err != nil {
		return Entry{}, false
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return Entry{}, false
	}

	var storedAt float64
	rawTime, ok := doc[storedAtField]
	if !ok || json.Unmarshal(rawTime, &storedAt) != nil {
		return Entry{}, false
	}

	value, ok := doc[f.valueField]
	if !ok || len(bytes.TrimSpace(value)) == 0 {
		return Entry{}, false
	}

	return Entry{StoredAt: int64(storedAt), Value: value}, true
}

// Set writes the entry through a temporary file and a rename, so concurrent
// writers for one key leave the last complete write in place.
func (f *FileStore) Set(key string, entry Entry) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	doc := map[string]json.RawMessage{
		storedAtField: json.RawMessage(fmt.Sprintf("%d", entry.StoredAt)),
		f.valueField:  entry.Value,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, ".tmp-"+SanitizeKey(key)+"-*")
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tmpName, f.Path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming cache file: %w", err)
	}
	return nil
}

func (f *FileStore) Keys() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes every cache file in the store's directory.
func (f *FileStore) Clear() error {
	keys, err := f.Keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := os.Remove(filepath.Join(f.dir, k+".json")); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

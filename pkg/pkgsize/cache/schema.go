package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// schemaKey holds the Schema record. It never carries a schema prefix.
const schemaKey = "m:__schema__"

// Schema records the key format a cache directory was written with.
type Schema struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetSchema returns the stored schema, or nil if none was written.
func (s *Store) GetSchema() (*Schema, error) {
	data, err := s.Get([]byte(schemaKey))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var schema Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// SetSchema stores the schema record.
func (s *Store) SetSchema(schema *Schema) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	return s.Put([]byte(schemaKey), data)
}

// Migrate brings the store to SchemaVersion. Entries written under another
// schema can never be read, so migrating removes them. It returns how many
// entries were removed.
func (s *Store) Migrate() (int, error) {
	schema, err := s.GetSchema()
	if err != nil {
		return 0, err
	}
	if schema != nil && schema.Version == SchemaVersion {
		return 0, nil
	}

	removed, err := s.deleteExcept(MakeKeyPrefix(""), []byte(schemaKey))
	if err != nil {
		return removed, err
	}
	if err := s.SetSchema(&Schema{Version: SchemaVersion, UpdatedAt: time.Now()}); err != nil {
		return removed, err
	}
	return removed, nil
}

// deleteExcept removes every key that neither starts with keepPrefix nor
// equals keepKey.
func (s *Store) deleteExcept(keepPrefix, keepKey []byte) (int, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			if bytes.HasPrefix(key, keepPrefix) || bytes.Equal(key, keepKey) {
				continue
			}
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil || len(keys) == 0 {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

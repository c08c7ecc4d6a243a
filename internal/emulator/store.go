// Package emulator is a local stand-in for the external table store, used in
// development and in tests. Records live in a bbolt file.
package emulator

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/pigeonworks-llc/section-ledger/pkg/table"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrTableNotFound is returned when a base or table does not exist.
	ErrTableNotFound = errors.New("table not found")
)

// Store represents the bbolt database wrapper. Each base is a top-level bucket
// holding one nested bucket per table; records are keyed by insertion sequence.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open creates a new Store backed by the file at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureTable creates a table if it does not exist.
func (s *Store) EnsureTable(baseID, tableName string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		base, err := tx.CreateBucketIfNotExists([]byte(baseID))
		if err != nil {
			return fmt.Errorf("failed to create base %s: %w", baseID, err)
		}
		if _, err := base.CreateBucketIfNotExists([]byte(tableName)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", tableName, err)
		}
		return nil
	})
}

// Tables lists the table names of a base in key order.
func (s *Store) Tables(baseID string) ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		base := tx.Bucket([]byte(baseID))
		if base == nil {
			return ErrTableNotFound
		}
		return base.ForEachBucket(func(k []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

// List returns every record of a table in insertion order.
func (s *Store) List(baseID, tableName string) (table.RecordSet, error) {
	var records table.RecordSet
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := tableBucket(tx, baseID, tableName)
		if err != nil {
			return err
		}
		return b.ForEach(func(_, v []byte) error {
			var rec table.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to decode record: %w", err)
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}

// Get returns a single record.
func (s *Store) Get(baseID, tableName, recordID string) (table.Record, error) {
	var rec table.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := tableBucket(tx, baseID, tableName)
		if err != nil {
			return err
		}
		_, found, err := findRecord(b, recordID)
		if err != nil {
			return err
		}
		rec = found
		return nil
	})
	return rec, err
}

// Create stores a new record. An empty ID is replaced by a generated one.
func (s *Store) Create(baseID, tableName string, rec table.Record) (table.Record, error) {
	if rec.ID == "" {
		rec.ID = newRecordID()
	}
	if rec.CreatedTime.IsZero() {
		rec.CreatedTime = s.now().UTC().Truncate(time.Millisecond)
	}
	if rec.Fields == nil {
		rec.Fields = map[string]table.Cell{}
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tableBucket(tx, baseID, tableName)
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return putRecord(b, itob(int64(seq)), rec)
	})
	return rec, err
}

// Update merges fields into a record; absent cells remove the field.
func (s *Store) Update(baseID, tableName, recordID string, fields map[string]table.Cell) (table.Record, error) {
	var rec table.Record
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tableBucket(tx, baseID, tableName)
		if err != nil {
			return err
		}
		key, found, err := findRecord(b, recordID)
		if err != nil {
			return err
		}
		if found.Fields == nil {
			found.Fields = map[string]table.Cell{}
		}
		for name, cell := range fields {
			if cell.IsAbsent() {
				delete(found.Fields, name)
				continue
			}
			found.Fields[name] = cell
		}
		rec = found
		return putRecord(b, key, found)
	})
	return rec, err
}

// Delete removes a record.
func (s *Store) Delete(baseID, tableName, recordID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tableBucket(tx, baseID, tableName)
		if err != nil {
			return err
		}
		key, _, err := findRecord(b, recordID)
		if err != nil {
			return err
		}
		return b.Delete(key)
	})
}

func tableBucket(tx *bolt.Tx, baseID, tableName string) (*bolt.Bucket, error) {
	base := tx.Bucket([]byte(baseID))
	if base == nil {
		return nil, ErrTableNotFound
	}
	b := base.Bucket([]byte(tableName))
	if b == nil {
		return nil, ErrTableNotFound
	}
	return b, nil
}

func findRecord(b *bolt.Bucket, recordID string) ([]byte, table.Record, error) {
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var rec table.Record
		if err := json.Unmarshal(v, &rec); err != nil {
			return nil, table.Record{}, fmt.Errorf("failed to decode record: %w", err)
		}
		if rec.ID == recordID {
			key := make([]byte, len(k))
			copy(key, k)
			return key, rec, nil
		}
	}
	return nil, table.Record{}, ErrNotFound
}

func putRecord(b *bolt.Bucket, key []byte, rec table.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return b.Put(key, data)
}

// newRecordID returns an identifier shaped like the store's own ("rec" + 14 chars).
func newRecordID() string {
	return "rec" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}

// itob converts an int64 to a byte slice for use as a bbolt key.
func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

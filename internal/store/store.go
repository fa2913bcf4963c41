// Package store implements the JSON-file-backed table abstraction: one
// table is one file holding a single JSON array of flat records.
//
// Each operation loads the whole file, works on the decoded slice, and (for
// mutations) rewrites the entire file. A table serializes its own
// operations, but no locking exists across operations: two read-modify-write
// sequences built from separate calls can interleave and the last writer
// wins. Callers that need stronger guarantees do not get them here.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

var (
	// ErrKeyExists is returned by Insert when a record with the same
	// primary key is already present.
	ErrKeyExists = errors.New("store: primary key exists")

	// ErrRetryExhausted is returned by InsertWithRetry when every attempt
	// collided.
	ErrRetryExhausted = errors.New("store: insert retries exhausted")
)

// Table is a named JSON table backed by a single file. The key function
// extracts the primary key of a record.
type Table[T any] struct {
	path string
	key  func(T) string
	mu   sync.Mutex
}

// NewTable binds a table to its backing file. The file does not need to
// exist yet; a missing file reads as an empty table.
func NewTable[T any](path string, key func(T) string) *Table[T] {
	return &Table[T]{path: path, key: key}
}

func (t *Table[T]) load() ([]T, error) {
	raw, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", t.path, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var records []T
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", t.path, err)
	}
	return records, nil
}

func (t *Table[T]) write(records []T) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", t.path, err)
	}
	if err := os.WriteFile(t.path, raw, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", t.path, err)
	}
	return nil
}

// Filter loads the table and returns a snapshot of every record matching
// pred. A nil pred matches everything. The result is a copy, never a live
// view of the file.
func (t *Table[T]) Filter(pred func(T) bool) ([]T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.load()
	if err != nil {
		return nil, err
	}
	if pred == nil {
		return records, nil
	}
	var matches []T
	for _, rec := range records {
		if pred(rec) {
			matches = append(matches, rec)
		}
	}
	return matches, nil
}

// Get returns the record with the given primary key, if present.
func (t *Table[T]) Get(key string) (T, bool, error) {
	var zero T
	matches, err := t.Filter(func(rec T) bool { return t.key(rec) == key })
	if err != nil || len(matches) == 0 {
		return zero, false, err
	}
	return matches[0], true, nil
}

// UpdateWhere loads the table, applies mutate to every record matching
// pred, and rewrites the whole file. It returns the number of records
// mutated. With zero matches the file is left untouched.
func (t *Table[T]) UpdateWhere(pred func(T) bool, mutate func(*T)) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.load()
	if err != nil {
		return 0, err
	}
	count := 0
	for i := range records {
		if pred(records[i]) {
			mutate(&records[i])
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return count, t.write(records)
}

// Insert appends a record and rewrites the file, failing with ErrKeyExists
// if any existing record shares the primary key. On failure nothing is
// written.
func (t *Table[T]) Insert(rec T) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.load()
	if err != nil {
		return err
	}
	key := t.key(rec)
	for _, existing := range records {
		if t.key(existing) == key {
			return fmt.Errorf("%w: %q", ErrKeyExists, key)
		}
	}
	return t.write(append(records, rec))
}

// InsertWithRetry builds a fresh record with makeRecord and attempts to
// insert it, regenerating on primary-key collision up to maxAttempts total
// attempts. Exhaustion returns ErrRetryExhausted with no partial write.
// Collision retry is a best-effort mitigation of concurrent id generation,
// not a correctness guarantee.
func InsertWithRetry[T any](tbl *Table[T], makeRecord func() T, maxAttempts int) (T, error) {
	var zero T
	for attempt := 0; attempt < maxAttempts; attempt++ {
		rec := makeRecord()
		err := tbl.Insert(rec)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrKeyExists) {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%w after %d attempts", ErrRetryExhausted, maxAttempts)
}

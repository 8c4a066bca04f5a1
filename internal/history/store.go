// file: internal/history/store.go
// version: 1.0.1
// guid: a6c0e3f1-4d29-4b7e-8f15-2e9b7d0c6a48

// Package history keeps a bounded journal of finished transfers in PebbleDB.
// The transfer manager itself forgets tasks once they complete; this journal
// is fed from its listener and only serves status displays.
package history

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/pebble/v2"
	ulid "github.com/oklog/ulid/v2"

	"github.com/jdfalk/filesync/internal/transfer"
)

// DefaultLimit is how many records are kept when no limit is configured.
const DefaultLimit = 1000

// Key Schema:
// - transfer:<ulid>  -> Record JSON, ulid taken at finish time so keys sort
//   oldest first
const (
	keyPrefix = "transfer:"
	keyLower  = "transfer:0"
	keyUpper  = "transfer:~"
)

// Record is one finished transfer.
type Record struct {
	TaskID     string    `json:"task_id"`
	RepoID     string    `json:"repo_id"`
	Path       string    `json:"path"`
	Success    bool      `json:"success"`
	Bytes      int64     `json:"bytes"`
	FinishedAt time.Time `json:"finished_at"`
	ElapsedMs  int64     `json:"elapsed_ms"`
}

// Store is the journal. It is safe for concurrent use.
type Store struct {
	db    *pebble.DB
	limit int

	mu      sync.Mutex
	count   int
	entropy io.Reader
}

// Open opens or creates the journal at path, trimming it to limit records.
func Open(path string, limit int) (*Store, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	db, err := pebble.Open(path, &pebble.Options{
		FormatMajorVersion: pebble.FormatNewest,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open PebbleDB: %w", err)
	}

	s := &Store{
		db:      db,
		limit:   limit,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	n, err := s.countRecords()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to count history records: %w", err)
	}
	s.count = n
	if err := s.pruneLocked(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Append journals r and drops the oldest records beyond the limit.
func (s *Store) Append(r Record) error {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode history record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(r.FinishedAt), s.entropy)
	if err != nil {
		return fmt.Errorf("failed to allocate history key: %w", err)
	}
	if err := s.db.Set([]byte(keyPrefix+id.String()), data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to write history record: %w", err)
	}
	s.count++
	return s.pruneLocked()
}

// Recent returns up to n records, newest first.
func (s *Store) Recent(n int) ([]Record, error) {
	records := []Record{}
	if n <= 0 {
		return records, nil
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyLower),
		UpperBound: []byte(keyUpper),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	for iter.Last(); iter.Valid() && len(records) < n; iter.Prev() {
		var r Record
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, fmt.Errorf("corrupt history record %s: %w", iter.Key(), err)
		}
		records = append(records, r)
	}
	return records, iter.Error()
}

func (s *Store) countRecords() (int, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyLower),
		UpperBound: []byte(keyUpper),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, iter.Error()
}

// pruneLocked deletes the oldest records until count <= limit. s.mu must be
// held.
func (s *Store) pruneLocked() error {
	excess := s.count - s.limit
	if excess <= 0 {
		return nil
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyLower),
		UpperBound: []byte(keyUpper),
	})
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	deleted := 0
	for iter.First(); iter.Valid() && deleted < excess; iter.Next() {
		if err := batch.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			iter.Close()
			return fmt.Errorf("failed to prune history: %w", err)
		}
		deleted++
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if err := batch.Commit(pebble.NoSync); err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	s.count -= deleted
	return nil
}

// Listener journals every finished transfer. Write failures are logged and
// never reach the scheduler.
func Listener(s *Store) transfer.Listener {
	return func(ev transfer.Event) {
		if ev.Kind != transfer.EventFinished {
			return
		}
		err := s.Append(Record{
			TaskID:     ev.Task.ID,
			RepoID:     ev.Task.RepoID,
			Path:       ev.Task.Path,
			Success:    ev.Success,
			Bytes:      ev.Task.Transferred,
			FinishedAt: time.Now(),
			ElapsedMs:  ev.Elapsed.Milliseconds(),
		})
		if err != nil {
			log.Printf("[WARN] Failed to journal transfer %s:%s: %v", ev.Task.RepoID, ev.Task.Path, err)
		}
	}
}

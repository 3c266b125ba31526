// Package history implements the optional execution-history persistence
// named in spec.md §6: "execution history records {action_ref, inputs,
// outputs, status, error?, started_at, completed_at} and log records
// {execution_id, level, message, timestamp}. The core produces these as
// events; persistence is external." No teacher file persists anything to
// an embedded KV store, so this package is grounded purely on
// go.etcd.io/bbolt's own documented usage pattern (one top-level bucket
// per record kind, JSON-encoded values keyed by a monotonic id) — the
// simplest idiomatic use of the library the rest of the example pack pulls
// in only indirectly.
package history

import (
	"encoding/binary"
	"encoding/json"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/starthub-run/runtime/internal/fileutil"
)

var (
	executionsBucket = []byte("executions")
	logsBucket       = []byte("logs")
)

// ExecutionRecord is one completed (or failed) root execution.
type ExecutionRecord struct {
	ActionRef   string          `json:"action_ref"`
	Inputs      json.RawMessage `json:"inputs"`
	Outputs     json.RawMessage `json:"outputs,omitempty"`
	Status      string          `json:"status"` // "succeeded" | "failed"
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// LogRecord is one archived Log Channel record, associated with the
// execution that produced it.
type LogRecord struct {
	ExecutionID uint64    `json:"execution_id"`
	Level       string    `json:"level"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// Store persists execution and log history to a bbolt database file.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a history database at path.
func Open(path string) (*Store, error) {
	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(executionsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(logsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordExecution appends rec under a fresh monotonic id and returns it.
func (s *Store) RecordExecution(rec ExecutionRecord) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(executionsBucket)
		next, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = next
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(encodeID(id), data)
	})
	return id, err
}

// AppendLog appends a log record under a fresh id scoped within the logs
// bucket (distinct from execution ids).
func (s *Store) AppendLog(rec LogRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(logsBucket)
		next, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(encodeID(next), data)
	})
}

// Executions returns every recorded execution in insertion order.
func (s *Store) Executions() ([]ExecutionRecord, error) {
	var out []ExecutionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(executionsBucket)
		return b.ForEach(func(_, v []byte) error {
			var rec ExecutionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// LogsForExecution returns every log record tagged with executionID, in
// insertion order.
func (s *Store) LogsForExecution(executionID uint64) ([]LogRecord, error) {
	var out []LogRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(logsBucket)
		return b.ForEach(func(_, v []byte) error {
			var rec LogRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.ExecutionID == executionID {
				out = append(out, rec)
			}
			return nil
		})
	})
	return out, err
}

func encodeID(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

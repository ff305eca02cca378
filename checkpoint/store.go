// Package checkpoint spills undelivered spans to a BoltDB file at shutdown
// so the next pipeline start can retry them instead of losing them.
package checkpoint

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/spanflow/spanflow-go/core/span"
)

var bucketPending = []byte("pending")

// Store persists buffer entries in arrival order.
type Store struct {
	db     *bolt.DB
	path   string
	logger *zap.Logger
}

// entryRecord is the stored form of one buffer entry. The encoded span is
// kept verbatim so restore does not re-serialize.
type entryRecord struct {
	TraceID string `json:"traceId"`
	SpanID  string `json:"spanId"`
	Encoded []byte `json:"encoded"`
}

// Open creates or opens the checkpoint database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}
	return &Store{db: db, path: path, logger: logger}, nil
}

// Save replaces the stored set with the given entries, keyed by sequence
// number so a later Load sees the original order.
func (s *Store) Save(entries []span.Entry) error {
	start := time.Now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketPending) != nil {
			if err := tx.DeleteBucket(bucketPending); err != nil {
				return fmt.Errorf("failed to reset pending bucket: %w", err)
			}
		}
		b, err := tx.CreateBucket(bucketPending)
		if err != nil {
			return fmt.Errorf("failed to create pending bucket: %w", err)
		}
		for i, e := range entries {
			rec, err := sonic.Marshal(entryRecord{
				TraceID: e.TraceID,
				SpanID:  e.SpanID,
				Encoded: e.Encoded,
			})
			if err != nil {
				return fmt.Errorf("failed to serialize entry: %w", err)
			}
			var key [8]byte
			binary.BigEndian.PutUint64(key[:], uint64(i))
			if err := b.Put(key[:], rec); err != nil {
				return fmt.Errorf("failed to write entry: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("checkpoint saved",
		zap.Int("spans", len(entries)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Load returns the stored entries in the order they were saved.
func (s *Store) Load() ([]span.Entry, error) {
	var entries []span.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPending)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec entryRecord
			if err := sonic.Unmarshal(v, &rec); err != nil {
				s.logger.Warn("skipping corrupt checkpoint entry", zap.Error(err))
				continue
			}
			entries = append(entries, span.Entry{
				TraceID: rec.TraceID,
				SpanID:  rec.SpanID,
				Key:     span.IdentityKey(rec.TraceID, rec.SpanID),
				Encoded: rec.Encoded,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return entries, nil
}

// Clear drops all stored entries.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketPending) == nil {
			return nil
		}
		return tx.DeleteBucket(bucketPending)
	})
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

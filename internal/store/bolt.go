package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSequences = []byte("sequences")
	bucketRuns      = []byte("runs")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketSequences, bucketRuns} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveSequence(rec *SequenceRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSequences)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSequences)
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.ID), data)
	})
}

func (s *BoltStore) GetSequence(id string) (*SequenceRecord, error) {
	var rec SequenceRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSequences)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSequences)
		}
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("sequence %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BoltStore) DeleteSequence(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSequences)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSequences)
		}
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("sequence %s: %w", id, ErrNotFound)
		}
		return b.Delete([]byte(id))
	})
}

func (s *BoltStore) ListSequences() ([]*SequenceRecord, error) {
	var recs []*SequenceRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSequences)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSequences)
		}
		return b.ForEach(func(_, v []byte) error {
			var rec SequenceRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// runKey orders runs per sequence by start time. Fixed-width nanoseconds keep
// the lexicographic bucket order chronological.
func runKey(run *RunRecord) []byte {
	return []byte(fmt.Sprintf("%s/%020d", run.SequenceID, run.StartedAt.UnixNano()))
}

func (s *BoltStore) AppendRun(run *RunRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketRuns)
		}
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return b.Put(runKey(run), data)
	})
}

// ListRuns returns up to limit most recent runs of a sequence, newest first.
// A limit of 0 means no limit.
func (s *BoltStore) ListRuns(sequenceID string, limit int) ([]*RunRecord, error) {
	var runs []*RunRecord
	prefix := []byte(sequenceID + "/")

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketRuns)
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var run RunRecord
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			runs = append(runs, &run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Keys iterate oldest first; reverse for newest first.
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

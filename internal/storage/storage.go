// Package storage keeps the raw fishing ledger. Rows are stored exactly as
// entered so normalization can be re-run as its rules evolve.
//
// The local store is a BoltDB file with an append-only bucket of raw rows
// and a bucket recording each import batch. CSV import/export and a remote
// CSV source live alongside it.
package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"time"

	"catch-forecast/internal/records"

	"github.com/goccy/go-json"
	"go.etcd.io/bbolt"
)

const (
	recordsBucket = "records" // raw ledger rows keyed by append sequence
	batchesBucket = "batches" // import batch metadata keyed by batch id
)

// Batch describes one append to the ledger.
type Batch struct {
	ID       uint64    `json:"id"`
	Source   string    `json:"source"`
	Rows     int       `json:"rows"`
	FirstSeq uint64    `json:"first_seq"`
	At       time.Time `json:"at"`
}

// Store is the append-only raw ledger.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the ledger database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "catch-ledger.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(recordsBucket)); err != nil {
			return fmt.Errorf("create records bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(batchesBucket)); err != nil {
			return fmt.Errorf("create batches bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Append adds rows to the end of the ledger in one transaction and records
// the batch.
func (s *Store) Append(source string, raws []records.RawRecord, at time.Time) (Batch, error) {
	var batch Batch
	err := s.db.Update(func(tx *bbolt.Tx) error {
		rb := tx.Bucket([]byte(recordsBucket))
		bb := tx.Bucket([]byte(batchesBucket))

		id, err := bb.NextSequence()
		if err != nil {
			return fmt.Errorf("next batch id: %w", err)
		}
		batch = Batch{ID: id, Source: source, Rows: len(raws), At: at.UTC()}

		for i, raw := range raws {
			seq, err := rb.NextSequence()
			if err != nil {
				return fmt.Errorf("next record sequence: %w", err)
			}
			if i == 0 {
				batch.FirstSeq = seq
			}
			data, err := json.Marshal(raw)
			if err != nil {
				return fmt.Errorf("marshal record: %w", err)
			}
			if err := rb.Put(seqKey(seq), data); err != nil {
				return err
			}
		}

		data, err := json.Marshal(batch)
		if err != nil {
			return fmt.Errorf("marshal batch: %w", err)
		}
		return bb.Put(seqKey(id), data)
	})
	if err != nil {
		return Batch{}, err
	}
	return batch, nil
}

// LoadRaw returns every ledger row in append order.
func (s *Store) LoadRaw(ctx context.Context) ([]records.RawRecord, error) {
	var out []records.RawRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(recordsBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var raw records.RawRecord
			if err := json.Unmarshal(v, &raw); err != nil {
				return fmt.Errorf("unmarshal record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, raw)
		}
		return nil
	})
	return out, err
}

// Count returns the number of ledger rows.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(recordsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

// Batches returns the import history, oldest first.
func (s *Store) Batches() ([]Batch, error) {
	var out []Batch
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(batchesBucket)).ForEach(func(_, v []byte) error {
			var b Batch
			if err := json.Unmarshal(v, &b); err != nil {
				return fmt.Errorf("unmarshal batch: %w", err)
			}
			out = append(out, b)
			return nil
		})
	})
	return out, err
}

// seqKey encodes a sequence number so byte order matches append order.
func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

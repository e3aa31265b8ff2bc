package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var recordsBucket = []byte("records")

// BoltStore keeps records as JSON values keyed by id. The file is opened per
// operation so other processes (the MCP server) can read it between writes.
type BoltStore struct {
	path string
}

// OpenBolt prepares a bbolt-backed store at path.
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	s := &BoltStore{path: path}
	err := s.update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open bolt store %s: %w", path, err)
	}
	return s, nil
}

func (s *BoltStore) open(readOnly bool) (*bolt.DB, error) {
	return bolt.Open(s.path, 0o600, &bolt.Options{Timeout: 2 * time.Second, ReadOnly: readOnly})
}

func (s *BoltStore) update(fn func(tx *bolt.Tx) error) error {
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return db.Update(fn)
}

func (s *BoltStore) view(fn func(tx *bolt.Tx) error) error {
	db, err := s.open(true)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return db.View(fn)
}

// InTx runs fn inside a single read-write transaction on one open of the file.
func (s *BoltStore) InTx(ctx context.Context, fn func(w Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		return fn(boltTx{tx: tx})
	})
}

func (s *BoltStore) Create(ctx context.Context, rec Record) (string, error) {
	var id string
	err := s.update(func(tx *bolt.Tx) error {
		var err error
		id, err = boltTx{tx: tx}.Create(ctx, rec)
		return err
	})
	return id, err
}

func (s *BoltStore) Update(ctx context.Context, id string, patch Patch) error {
	return s.update(func(tx *bolt.Tx) error {
		return boltTx{tx: tx}.Update(ctx, id, patch)
	})
}

func (s *BoltStore) Get(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	var rec Record
	err := s.view(func(tx *bolt.Tx) error {
		raw := tx.Bucket(recordsBucket).Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("get %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(raw, &rec)
	})
	return rec, err
}

func (s *BoltStore) FindBySummary(ctx context.Context, userID, summary string) (Record, bool, error) {
	var (
		rec Record
		ok  bool
	)
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		rec, ok, err = boltTx{tx: tx}.FindBySummary(ctx, userID, summary)
		return err
	})
	return rec, ok, err
}

func (s *BoltStore) ListByLastOpened(ctx context.Context, userID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var recs []Record
	err := s.view(func(tx *bolt.Tx) error {
		recs = scanBucket(tx.Bucket(recordsBucket), func(r Record) bool { return r.UserID == userID })
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].LastOpenedAt.After(recs[j].LastOpenedAt)
	})
	return recs, nil
}

func (s *BoltStore) Close() error { return nil }

// boltTx is a Writer bound to one bolt transaction.
type boltTx struct {
	tx *bolt.Tx
}

func (t boltTx) Create(ctx context.Context, rec Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rec.ID == "" {
		rec.ID = newID()
	}
	enc, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	if err := t.tx.Bucket(recordsBucket).Put([]byte(rec.ID), enc); err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}
	return rec.ID, nil
}

func (t boltTx) Update(ctx context.Context, id string, patch Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := t.tx.Bucket(recordsBucket)
	raw := b.Get([]byte(id))
	if raw == nil {
		return fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("decode record %s: %w", id, err)
	}
	patch.apply(&rec)
	enc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return b.Put([]byte(id), enc)
}

func (t boltTx) FindBySummary(ctx context.Context, userID, summary string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	recs := scanBucket(t.tx.Bucket(recordsBucket), func(r Record) bool {
		return r.UserID == userID && r.Summary == summary
	})
	if len(recs) == 0 {
		return Record{}, false, nil
	}
	// oldest match wins so repeated saves keep hitting the same record
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	return recs[0], true, nil
}

func scanBucket(b *bolt.Bucket, keep func(Record) bool) []Record {
	if b == nil {
		return nil
	}
	var out []Record
	_ = b.ForEach(func(k, v []byte) error {
		var rec Record
		if err := json.Unmarshal(v, &rec); err != nil {
			// Skip malformed entries instead of failing the whole scan
			return nil
		}
		if keep(rec) {
			out = append(out, rec)
		}
		return nil
	})
	return out
}

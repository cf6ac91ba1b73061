package idempotency

import (
	"context"
	"encoding/json"
	"time"

	bolt "github.com/boltdb/bolt"
)

const boltBucket = "idempotency_records"

// BoltStore keeps records in a single embedded file, for single-node deployments.
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Get(_ context.Context, key string) (Record, bool, error) {
	var (
		rec   Record
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(boltBucket)).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return Record{}, false, err
	}
	return rec, found, nil
}

func (s *BoltStore) PutIfAbsent(_ context.Context, rec Record) (Record, bool, error) {
	var (
		result  Record
		created bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if existing := b.Get([]byte(rec.Key)); existing != nil {
			return json.Unmarshal(existing, &result)
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		result = rec
		created = true
		return b.Put([]byte(rec.Key), data)
	})
	if err != nil {
		return Record{}, false, err
	}
	return result, created, nil
}

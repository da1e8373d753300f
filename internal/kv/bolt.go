package kv

import (
	"context"
	"fmt"

	"github.com/dpavlenko/marksync/internal/common"
	bolt "go.etcd.io/bbolt"
)

// BoltStore is a Store backed by one bbolt bucket. Several namespaces can
// share a single database file; each gets its own bucket.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
}

// NewBoltStore opens (or creates) the namespace bucket in db.
func NewBoltStore(db *bolt.DB, namespace string) (*BoltStore, error) {
	if namespace == "" {
		return nil, fmt.Errorf("%w: empty namespace", common.ErrValidation)
	}
	bucket := []byte(namespace)
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating bucket %q: %v", common.ErrStorage, namespace, err)
	}
	return &BoltStore{db: db, bucket: bucket}, nil
}

func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v == nil {
			return common.ErrNotFound
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("%w: put %q: %v", common.ErrStorage, key, err)
	}
	return nil
}

func (s *BoltStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%w: delete %q: %v", common.ErrStorage, key, err)
	}
	return nil
}

func (s *BoltStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(s.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: clear namespace: %v", common.ErrStorage, err)
	}
	return nil
}

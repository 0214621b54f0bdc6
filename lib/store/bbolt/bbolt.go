package bbolt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/inkwell-labs/scribble/lib/store"
	"go.etcd.io/bbolt"
)

// Sentinel error values used for testing and in admin-visible error messages.
var (
	ErrBucketDoesNotExist = errors.New("bbolt: bucket does not exist")
	ErrNotExists          = errors.New("bbolt: value does not exist in store")
)

// Store implements store.Interface backed by bbolt[1].
//
// Every value gets its own bucket with two keys:
//
// 1. data - The raw data, usually in JSON
// 2. expiry - The expiry time formatted as a time.RFC3339Nano timestamp string
//
// This lets the cleanup phase scan expiry times without decoding records.
//
// bbolt is not suitable for environments where multiple instances of scribble
// need to read from and write to the same backend store. For that, use the
// valkey storage backend.
//
// [1]: https://github.com/etcd-io/bbolt
type Store struct {
	bdb *bbolt.DB
}

// Delete a key from the datastore. If the key does not exist, return an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(key)) == nil {
			return fmt.Errorf("%w: %w: %q", store.ErrNotFound, ErrNotExists, key)
		}

		return tx.DeleteBucket([]byte(key))
	})
}

// Get a value from the datastore. Expired values are removed in the
// background and reported as store.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var result []byte
	var expired bool

	if err := s.bdb.View(func(tx *bbolt.Tx) error {
		var err error
		result, expired, err = read(tx, key)
		return err
	}); err != nil {
		if expired {
			go s.Delete(context.Background(), key)
		}
		return nil, err
	}

	return result, nil
}

// GetDelete reads and removes a value inside one read-write transaction.
// bbolt allows a single writer at a time, so concurrent callers serialize here.
func (s *Store) GetDelete(ctx context.Context, key string) ([]byte, error) {
	var result []byte

	if err := s.bdb.Update(func(tx *bbolt.Tx) error {
		data, expired, err := read(tx, key)
		if err != nil && !expired {
			return err
		}

		if derr := tx.DeleteBucket([]byte(key)); derr != nil {
			return fmt.Errorf("[unexpected] can't delete bucket %q: %w", key, derr)
		}

		if expired {
			return err
		}

		result = data
		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func read(tx *bbolt.Tx, key string) ([]byte, bool, error) {
	itemBucket := tx.Bucket([]byte(key))
	if itemBucket == nil {
		return nil, false, fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	expiryStr := itemBucket.Get([]byte("expiry"))
	if expiryStr == nil {
		return nil, false, fmt.Errorf("[unexpected] %w: %q (expiry is nil)", store.ErrNotFound, key)
	}

	expiry, err := time.Parse(time.RFC3339Nano, string(expiryStr))
	if err != nil {
		return nil, false, fmt.Errorf("[unexpected] %w: %w", store.ErrCantDecode, err)
	}

	if time.Now().After(expiry) {
		return nil, true, fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	dataStr := itemBucket.Get([]byte("data"))
	if dataStr == nil {
		return nil, false, fmt.Errorf("[unexpected] %w: %q (data is nil)", store.ErrNotFound, key)
	}

	result := make([]byte, len(dataStr))
	copy(result, dataStr)

	return result, false, nil
}

// Set a value into the store with a given expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	expires := time.Now().Add(expiry)

	return s.bdb.Update(func(tx *bbolt.Tx) error {
		valueBkt, err := tx.CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return fmt.Errorf("%w: %w: %q (create bucket)", store.ErrCantEncode, err, key)
		}

		if err := valueBkt.Put([]byte("expiry"), []byte(expires.Format(time.RFC3339Nano))); err != nil {
			return fmt.Errorf("%w: %q (expiry)", store.ErrCantEncode, key)
		}

		if err := valueBkt.Put([]byte("data"), value); err != nil {
			return fmt.Errorf("%w: %q (data)", store.ErrCantEncode, key)
		}

		return nil
	})
}

func (s *Store) cleanup(ctx context.Context) error {
	now := time.Now()

	return s.bdb.Update(func(tx *bbolt.Tx) error {
		var stale [][]byte

		if err := tx.ForEach(func(key []byte, valueBkt *bbolt.Bucket) error {
			expiryStr := valueBkt.Get([]byte("expiry"))
			if expiryStr == nil {
				slog.Warn("while running cleanup, expiry is not set somehow, file a bug?", "key", string(key))
				return nil
			}

			expiry, err := time.Parse(time.RFC3339Nano, string(expiryStr))
			if err != nil {
				return fmt.Errorf("[unexpected] %w in bucket %q: %w", store.ErrCantDecode, string(key), err)
			}

			if now.After(expiry) {
				stale = append(stale, append([]byte(nil), key...))
			}

			return nil
		}); err != nil {
			return err
		}

		// buckets can't be removed while ForEach is iterating over them
		for _, key := range stale {
			if err := tx.DeleteBucket(key); err != nil {
				return fmt.Errorf("can't delete expired bucket %q: %w", string(key), err)
			}
		}

		return nil
	})
}

func (s *Store) cleanupThread(ctx context.Context) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.bdb.Close(); err != nil {
				slog.Error("can't close bbolt database", "err", err)
			}
			return
		case <-t.C:
			if err := s.cleanup(ctx); err != nil {
				slog.Error("error during bbolt cleanup", "err", err)
			}
		}
	}
}

package valkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inkwell-labs/scribble/lib/store"
	valkey "github.com/redis/go-redis/v9"
)

// Store keeps values in a shared Valkey (or Redis) server so several
// scribble replicas can issue and verify each other's challenges.
type Store struct {
	rdb    *valkey.Client
	prefix string
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

func (s *Store) Delete(ctx context.Context, key string) error {
	n, err := s.rdb.Del(ctx, s.key(key)).Result()
	if err != nil {
		return fmt.Errorf("can't delete from valkey: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %d key(s) deleted", store.ErrNotFound, n)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		return nil, mapErr(key, err)
	}

	return result, nil
}

// GetDelete uses GETDEL, which the server executes atomically. Of several
// replicas racing on the same key only one sees the value.
func (s *Store) GetDelete(ctx context.Context, key string) ([]byte, error) {
	result, err := s.rdb.GetDel(ctx, s.key(key)).Bytes()
	if err != nil {
		return nil, mapErr(key, err)
	}

	return result, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	if err := s.rdb.Set(ctx, s.key(key), value, expiry).Err(); err != nil {
		return fmt.Errorf("can't set %q in valkey: %w", key, err)
	}

	return nil
}

func mapErr(key string, err error) error {
	if errors.Is(err, valkey.Nil) {
		return fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	return fmt.Errorf("can't fetch %q from valkey: %w", key, err)
}

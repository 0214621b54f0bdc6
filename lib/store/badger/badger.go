// Package badger stores values in an embedded Badger database. Expiry is
// delegated to Badger's per-entry TTL and the value log is compacted by a
// background garbage collection loop.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/inkwell-labs/scribble/lib/store"
)

// maxConflictRetries bounds how often GetDelete retries after losing an
// optimistic transaction race.
const maxConflictRetries = 8

type Store struct {
	db  *badger.DB
	cfg Config
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			return mapErr(key, err)
		}

		return txn.Delete([]byte(key))
	})
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte

	if err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return mapErr(key, err)
		}

		value, err = item.ValueCopy(nil)
		return err
	}); err != nil {
		return nil, err
	}

	return value, nil
}

// GetDelete reads and deletes in one transaction. Concurrent callers that
// touch the same key conflict at commit, and the losers retry to observe
// that the key is gone.
func (s *Store) GetDelete(ctx context.Context, key string) ([]byte, error) {
	for range maxConflictRetries {
		var value []byte

		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(key))
			if err != nil {
				return mapErr(key, err)
			}

			if value, err = item.ValueCopy(nil); err != nil {
				return err
			}

			return txn.Delete([]byte(key))
		})

		switch {
		case err == nil:
			return value, nil
		case errors.Is(err, badger.ErrConflict):
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			continue
		default:
			return nil, err
		}
	}

	return nil, fmt.Errorf("badger: %q: %w", key, badger.ErrConflict)
}

func (s *Store) Set(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.SetEntry(badger.NewEntry([]byte(key), value).WithTTL(expiry)); err != nil {
			return fmt.Errorf("%w: %q: %w", store.ErrCantEncode, key, err)
		}
		return nil
	})
}

func mapErr(key string, err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}
	return fmt.Errorf("badger: can't read %q: %w", key, err)
}

func (s *Store) gcLoop(ctx context.Context) {
	t := time.NewTicker(s.cfg.GCInterval.Duration())
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.db.Close(); err != nil {
				slog.Error("can't close badger database", "err", err)
			}
			return
		case <-t.C:
			s.runGC()
		}
	}
}

func (s *Store) runGC() {
	cycles := 0
	for {
		err := s.db.RunValueLogGC(s.cfg.GCDiscardRatio)
		if err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				slog.Error("badger value log gc failed", "err", err)
			}
			break
		}
		cycles++
	}

	if cycles > 0 {
		slog.Debug("badger value log gc", "rewrites", cycles)
	}
}

// badgerLogger routes Badger's internal logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

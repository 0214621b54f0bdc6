// Package storetest is the conformance suite every store backend runs.
package storetest

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/inkwell-labs/scribble/lib/store"
)

func Common(t *testing.T, f store.Factory, config json.RawMessage) {
	if err := f.Valid(config); err != nil {
		t.Fatal(err)
	}

	s, err := f.Build(t.Context(), config)
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		name string
		doer func(t *testing.T, s store.Interface) error
		err  error
	}{
		{
			name: "basic get set delete",
			doer: func(t *testing.T, s store.Interface) error {
				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to not exist in store but it exists anyways", t.Name())
				}

				if err := s.Set(t.Context(), t.Name(), []byte(t.Name()), 5*time.Minute); err != nil {
					return err
				}

				val, err := s.Get(t.Context(), t.Name())
				if errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to exist in store but it does not: %v", t.Name(), err)
				} else if err != nil {
					t.Error(err)
				}

				if !bytes.Equal(val, []byte(t.Name())) {
					t.Logf("want: %q", t.Name())
					t.Logf("got:  %q", string(val))
					t.Error("wrong value returned")
				}

				if err := s.Delete(t.Context(), t.Name()); err != nil {
					return err
				}

				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Error("wanted test to not exist in store but it exists anyways")
				}

				if err := s.Delete(t.Context(), t.Name()); err == nil {
					t.Errorf("key %q does not exist and Delete did not return non-nil", t.Name())
				}

				return nil
			},
		},
		{
			name: "get delete",
			doer: func(t *testing.T, s store.Interface) error {
				if _, err := s.GetDelete(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted GetDelete of missing key to be ErrNotFound, got: %v", err)
				}

				if err := s.Set(t.Context(), t.Name(), []byte("7"), 5*time.Minute); err != nil {
					return err
				}

				val, err := s.GetDelete(t.Context(), t.Name())
				if err != nil {
					return err
				}

				if !bytes.Equal(val, []byte("7")) {
					t.Errorf("wanted %q, got: %q", "7", string(val))
				}

				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Error("GetDelete did not remove the key")
				}

				return nil
			},
		},
		{
			name: "get delete race",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Set(t.Context(), t.Name(), []byte("1"), 5*time.Minute); err != nil {
					return err
				}

				var (
					wg   sync.WaitGroup
					wins atomic.Int32
				)

				for range 16 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, err := s.GetDelete(t.Context(), t.Name())
						switch {
						case err == nil:
							wins.Add(1)
						case errors.Is(err, store.ErrNotFound):
						default:
							t.Errorf("unexpected GetDelete error: %v", err)
						}
					}()
				}
				wg.Wait()

				if got := wins.Load(); got != 1 {
					t.Errorf("wanted exactly one GetDelete to win, got: %d", got)
				}

				return nil
			},
		},
		{
			name: "expires",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Set(t.Context(), t.Name(), []byte(t.Name()), 1*time.Second); err != nil {
					return err
				}

				//nosleep:bypass backends like valkey only honour second-resolution TTLs
				time.Sleep(1100 * time.Millisecond)

				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to not exist in store but it exists anyways", t.Name())
				}

				if _, err := s.GetDelete(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted expired %s to be invisible to GetDelete", t.Name())
				}

				return nil
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.doer(t, s); !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Error("wrong error")
			}
		})
	}
}

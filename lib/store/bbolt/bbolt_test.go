package bbolt

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/inkwell-labs/scribble/lib/store"
	"github.com/inkwell-labs/scribble/lib/store/storetest"
)

func TestImpl(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	t.Log(path)
	data, err := json.Marshal(Config{
		Path: path,
	})
	if err != nil {
		t.Fatal(err)
	}

	storetest.Common(t, Factory{}, json.RawMessage(data))
}

func TestCleanupRemovesExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	data, err := json.Marshal(Config{Path: path})
	if err != nil {
		t.Fatal(err)
	}

	s, err := Factory{}.Build(t.Context(), json.RawMessage(data))
	if err != nil {
		t.Fatal(err)
	}
	bs := s.(*Store)

	if err := bs.Set(t.Context(), "short", []byte("a"), time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := bs.Set(t.Context(), "long", []byte("b"), time.Hour); err != nil {
		t.Fatal(err)
	}

	time.Sleep(5 * time.Millisecond)

	if err := bs.cleanup(t.Context()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	if err := bs.Delete(t.Context(), "short"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expired bucket survived cleanup: %v", err)
	}

	if got, err := bs.Get(t.Context(), "long"); err != nil || string(got) != "b" {
		t.Errorf("live bucket lost in cleanup: %q, %v", got, err)
	}
}

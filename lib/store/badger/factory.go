package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/inkwell-labs/scribble/lib/config/duration"
	"github.com/inkwell-labs/scribble/lib/store"
)

var (
	ErrMissingPath   = errors.New("badger: path is missing from config")
	ErrBadGCInterval = errors.New("badger: gcInterval must be a positive duration")
	ErrBadGCRatio    = errors.New("badger: gcDiscardRatio must be between 0 and 1 (exclusive)")
)

func init() {
	store.Register("badger", Factory{})
}

type Factory struct{}

func (Factory) Build(ctx context.Context, data json.RawMessage) (store.Interface, error) {
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = &badgerLogger{logger: slog.With("store", "badger")}
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("can't open badger database %s: %w", cfg.Path, err)
	}

	result := &Store{
		db:  db,
		cfg: cfg,
	}

	go result.gcLoop(ctx)

	return result, nil
}

func (Factory) Valid(data json.RawMessage) error {
	_, err := parse(data)
	return err
}

func parse(data json.RawMessage) (Config, error) {
	cfg := Config{
		GCInterval:     duration.Duration(10 * time.Minute),
		GCDiscardRatio: 0.5,
	}

	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	if err := cfg.Valid(); err != nil {
		return cfg, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	return cfg, nil
}

// Config is the badger storage backend configuration.
type Config struct {
	// Path is the directory Badger keeps its LSM tree and value log in.
	Path string `json:"path"`

	// SyncWrites fsyncs every commit.
	SyncWrites bool `json:"syncWrites,omitempty"`

	GCInterval     duration.Duration `json:"gcInterval,omitempty"`
	GCDiscardRatio float64           `json:"gcDiscardRatio,omitempty"`
}

func (c Config) Valid() error {
	var errs []error

	if c.Path == "" {
		errs = append(errs, ErrMissingPath)
	}

	if c.GCInterval <= 0 {
		errs = append(errs, ErrBadGCInterval)
	}

	if c.GCDiscardRatio <= 0 || c.GCDiscardRatio >= 1 {
		errs = append(errs, ErrBadGCRatio)
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}

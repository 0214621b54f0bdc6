// Package memory keeps challenges and sessions in process memory. State is
// lost on restart and isn't shared between scribble instances.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/inkwell-labs/scribble/decaymap"
	"github.com/inkwell-labs/scribble/lib/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultCleanupInterval is how often expired entries are swept when the
// config doesn't say.
const DefaultCleanupInterval = 5 * time.Minute

var (
	ErrBadCleanupInterval = errors.New("memory: cleanupInterval must be a positive duration")

	entries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scribble_memory_store_entries",
		Help: "Entries held by the in-memory store after the last sweep",
	})
)

type Config struct {
	CleanupInterval string `json:"cleanupInterval,omitempty"`
}

func (c Config) interval() (time.Duration, error) {
	if c.CleanupInterval == "" {
		return DefaultCleanupInterval, nil
	}

	d, err := time.ParseDuration(c.CleanupInterval)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBadCleanupInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: got %s", ErrBadCleanupInterval, d)
	}

	return d, nil
}

func parse(data json.RawMessage) (time.Duration, error) {
	var c Config
	if len(data) != 0 {
		if err := json.Unmarshal(data, &c); err != nil {
			return 0, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
		}
	}
	return c.interval()
}

type factory struct{}

func (factory) Build(ctx context.Context, data json.RawMessage) (store.Interface, error) {
	interval, err := parse(data)
	if err != nil {
		return nil, err
	}
	return NewWithInterval(ctx, interval), nil
}

func (factory) Valid(data json.RawMessage) error {
	_, err := parse(data)
	return err
}

func init() {
	store.Register("memory", factory{})
}

type impl struct {
	data *decaymap.Impl[string, []byte]
}

func notFound(key string) error {
	return fmt.Errorf("%w: %q", store.ErrNotFound, key)
}

func (i *impl) Delete(_ context.Context, key string) error {
	if !i.data.Delete(key) {
		return notFound(key)
	}
	return nil
}

func (i *impl) Get(_ context.Context, key string) ([]byte, error) {
	if result, ok := i.data.Get(key); ok {
		return result, nil
	}
	return nil, notFound(key)
}

func (i *impl) GetDelete(_ context.Context, key string) ([]byte, error) {
	if result, ok := i.data.GetDelete(key); ok {
		return result, nil
	}
	return nil, notFound(key)
}

func (i *impl) Set(_ context.Context, key string, value []byte, expiry time.Duration) error {
	i.data.Set(key, value, expiry)
	return nil
}

func (i *impl) sweep() {
	i.data.Cleanup()
	entries.Set(float64(i.data.Len()))
}

func (i *impl) cleanupThread(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			i.sweep()
		}
	}
}

// New creates an in-memory store swept every DefaultCleanupInterval until
// ctx is done.
func New(ctx context.Context) store.Interface {
	return NewWithInterval(ctx, DefaultCleanupInterval)
}

func NewWithInterval(ctx context.Context, interval time.Duration) store.Interface {
	result := &impl{
		data: decaymap.New[string, []byte](),
	}

	go result.cleanupThread(ctx, interval)

	return result
}

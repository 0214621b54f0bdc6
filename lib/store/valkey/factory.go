package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/inkwell-labs/scribble/lib/store"
	valkey "github.com/redis/go-redis/v9"
)

var (
	ErrNoURL       = errors.New("valkey.Config: no URL defined")
	ErrBadURL      = errors.New("valkey.Config: URL is invalid")
	ErrBadPoolSize = errors.New("valkey.Config: poolSize must not be negative")
)

func init() {
	store.Register("valkey", Factory{})
}

type Factory struct{}

func (Factory) Build(ctx context.Context, data json.RawMessage) (store.Interface, error) {
	config, err := parse(data)
	if err != nil {
		return nil, err
	}

	opts, err := config.options()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	rdb := valkey.NewClient(opts)

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("can't ping valkey instance: %w", err)
	}

	return &Store{
		rdb:    rdb,
		prefix: config.KeyPrefix,
	}, nil
}

func (Factory) Valid(data json.RawMessage) error {
	_, err := parse(data)
	return err
}

func parse(data json.RawMessage) (Config, error) {
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	if err := config.Valid(); err != nil {
		return config, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	return config, nil
}

// Config is the valkey storage backend configuration.
type Config struct {
	// URL is a redis:// or rediss:// connection string.
	URL string `json:"url"`

	// KeyPrefix namespaces every key, letting several deployments share a server.
	KeyPrefix string `json:"keyPrefix,omitempty"`

	// PoolSize overrides the client's connection pool size when positive.
	PoolSize int `json:"poolSize,omitempty"`
}

func (c Config) options() (*valkey.Options, error) {
	opts, err := valkey.ParseURL(c.URL)
	if err != nil {
		return nil, err
	}

	if c.PoolSize > 0 {
		opts.PoolSize = c.PoolSize
	}

	return opts, nil
}

func (c Config) Valid() error {
	var errs []error

	switch {
	case c.URL == "":
		errs = append(errs, ErrNoURL)
	default:
		if _, err := valkey.ParseURL(c.URL); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrBadURL, err))
		}
	}

	if c.PoolSize < 0 {
		errs = append(errs, ErrBadPoolSize)
	}

	if len(errs) != 0 {
		return fmt.Errorf("valkey.Config: invalid config: %w", errors.Join(errs...))
	}

	return nil
}

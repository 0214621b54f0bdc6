package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var ErrUnknownBackend = errors.New("store: unknown backend")

var (
	registry = map[string]Factory{}
	regLock  sync.RWMutex
)

// Factory builds a store backend from its JSON parameters.
type Factory interface {
	Build(ctx context.Context, config json.RawMessage) (Interface, error)
	Valid(config json.RawMessage) error
}

// Register makes a backend available under name. Backends call it from init.
func Register(name string, impl Factory) {
	regLock.Lock()
	defer regLock.Unlock()

	registry[name] = impl
}

func Get(name string) (Factory, bool) {
	regLock.RLock()
	defer regLock.RUnlock()

	result, ok := registry[name]
	return result, ok
}

// Build validates config and constructs the backend registered as name.
func Build(ctx context.Context, name string, config json.RawMessage) (Interface, error) {
	fac, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownBackend, name, Methods())
	}

	if err := fac.Valid(config); err != nil {
		return nil, fmt.Errorf("store %q: %w", name, err)
	}

	result, err := fac.Build(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("store %q: %w", name, err)
	}

	return result, nil
}

// Methods lists the registered backend names in order.
func Methods() []string {
	regLock.RLock()
	defer regLock.RUnlock()

	result := make([]string, 0, len(registry))
	for method := range registry {
		result = append(result, method)
	}
	slices.Sort(result)
	return result
}

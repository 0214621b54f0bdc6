package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/inkwell-labs/scribble/lib/classifier"
)

var ErrNoPath = errors.New("local.Config: no weights path defined")

func init() {
	classifier.Register("local", Factory{})
}

type Factory struct{}

func (Factory) Build(ctx context.Context, data json.RawMessage) (classifier.Interface, error) {
	config, err := parse(data)
	if err != nil {
		return nil, err
	}

	m, err := Load(config.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", classifier.ErrBadConfig, err)
	}

	return m, nil
}

func (Factory) Valid(data json.RawMessage) error {
	_, err := parse(data)
	return err
}

func parse(data json.RawMessage) (Config, error) {
	var config Config
	if err := json.Unmarshal([]byte(data), &config); err != nil {
		return config, fmt.Errorf("%w: %w", classifier.ErrBadConfig, err)
	}

	if config.Path == "" {
		return config, fmt.Errorf("%w: %w", classifier.ErrBadConfig, ErrNoPath)
	}

	return config, nil
}

// Config points at a weights file.
type Config struct {
	Path string `json:"path"`
}

package grpcmodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/inkwell-labs/scribble/lib/classifier"
	"github.com/inkwell-labs/scribble/lib/config/duration"
)

var (
	ErrNoTarget   = errors.New("grpcmodel.Config: no target defined")
	ErrNoModel    = errors.New("grpcmodel.Config: no model name defined")
	ErrBadTimeout = errors.New("grpcmodel.Config: timeout must be a positive duration")
)

func init() {
	classifier.Register("grpc", Factory{})
}

type Factory struct{}

func (Factory) Build(ctx context.Context, data json.RawMessage) (classifier.Interface, error) {
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}

	return New(ctx, cfg)
}

func (Factory) Valid(data json.RawMessage) error {
	_, err := parse(data)
	return err
}

func parse(data json.RawMessage) (Config, error) {
	var cfg Config
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", classifier.ErrBadConfig, err)
	}

	if err := cfg.Valid(); err != nil {
		return cfg, fmt.Errorf("%w: %w", classifier.ErrBadConfig, err)
	}

	return cfg, nil
}

// Config is the gRPC model server configuration.
type Config struct {
	// Target is a gRPC target such as dns:///models.internal:443.
	Target string `json:"target"`

	Service string `json:"service,omitempty"`
	Model   string `json:"model"`
	Version string `json:"version,omitempty"`

	// Token is sent as a bearer token on every call.
	Token     string            `json:"token,omitempty"`
	Plaintext bool              `json:"plaintext,omitempty"`
	Timeout   duration.Duration `json:"timeout,omitempty"`
}

func (c Config) Valid() error {
	var errs []error

	if c.Target == "" {
		errs = append(errs, ErrNoTarget)
	}

	if c.Model == "" {
		errs = append(errs, ErrNoModel)
	}

	if c.Timeout < 0 {
		errs = append(errs, ErrBadTimeout)
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}

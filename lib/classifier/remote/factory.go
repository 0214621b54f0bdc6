package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/inkwell-labs/scribble/lib/classifier"
)

var (
	ErrNoURL   = errors.New("remote.Config: no URL defined")
	ErrBadURL  = errors.New("remote.Config: URL must be an absolute http(s) URL")
	ErrNoModel = errors.New("remote.Config: no model name defined")
)

func init() {
	classifier.Register("http", Factory{})
}

type Factory struct{}

func (Factory) Build(ctx context.Context, data json.RawMessage) (classifier.Interface, error) {
	config, err := parse(data)
	if err != nil {
		return nil, err
	}

	return NewClient(config.URL, config.Model, config.Version, &http.Client{
		Transport: http.DefaultTransport.(*http.Transport).Clone(),
	})
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

	if err := config.Valid(); err != nil {
		return config, fmt.Errorf("%w: %w", classifier.ErrBadConfig, err)
	}

	return config, nil
}

// Config is the HTTP model server configuration.
type Config struct {
	URL     string `json:"url"`
	Model   string `json:"model"`
	Version string `json:"version,omitempty"`
}

func (c Config) Valid() error {
	var errs []error

	if c.URL == "" {
		errs = append(errs, ErrNoURL)
	} else if u, err := url.Parse(c.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ErrBadURL)
	}

	if c.Model == "" {
		errs = append(errs, ErrNoModel)
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Package config loads the optional YAML configuration of a scribble
// gateway: which store and classifier backends to use and the lifetimes of
// challenges and sessions.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/inkwell-labs/scribble"
	"github.com/inkwell-labs/scribble/lib/config/duration"
	"k8s.io/apimachinery/pkg/util/yaml"
)

var (
	ErrBadChallengeTTL   = errors.New("config.Challenge: ttl must be positive")
	ErrBadSessionTTL     = errors.New("config.Session: ttl must be positive")
	ErrArchiveMissingDir = errors.New("config.Archive: dir must be set when the archive is enabled")
	ErrBadDuration       = duration.ErrInvalid
)

// Duration lives in its own package so backend configs can use it without
// importing config.
type Duration = duration.Duration

type Challenge struct {
	TTL Duration `json:"ttl"`

	// ExposeExpectedDigit puts the expected digit in the issue response so a
	// page can tell the user what to draw.
	ExposeExpectedDigit bool `json:"expose_expected_digit"`
}

func (c Challenge) Valid() error {
	if c.TTL <= 0 {
		return ErrBadChallengeTTL
	}
	return nil
}

type Session struct {
	TTL Duration `json:"ttl"`
}

func (s Session) Valid() error {
	if s.TTL <= 0 {
		return ErrBadSessionTTL
	}
	return nil
}

type Archive struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir"`
}

func (a Archive) Valid() error {
	if a.Enabled && a.Dir == "" {
		return ErrArchiveMissingDir
	}
	return nil
}

type Config struct {
	// Store keeps outstanding challenges.
	Store Store `json:"store"`

	// Sessions keeps session state. When unset, sessions share Store.
	Sessions *Store `json:"sessions,omitempty"`

	Classifier Classifier `json:"classifier"`
	Challenge  Challenge  `json:"challenge"`
	Session    Session    `json:"session"`
	Archive    Archive    `json:"archive"`
}

// Default is the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Store: Store{
			Backend:    "memory",
			Parameters: json.RawMessage(`{}`),
		},
		Classifier: Classifier{
			Backend:    "http",
			Parameters: json.RawMessage(`{"url":"http://localhost:8000","model":"HybridCNN"}`),
			Timeout:    Duration(scribble.DefaultClassifierTimeout),
		},
		Challenge: Challenge{
			TTL:                 Duration(scribble.DefaultChallengeTTL),
			ExposeExpectedDigit: true,
		},
		Session: Session{
			TTL: Duration(scribble.DefaultSessionTTL),
		},
		Archive: Archive{
			Dir: "static/images",
		},
	}
}

func (c *Config) Valid() error {
	var errs []error

	if err := c.Store.Valid(); err != nil {
		errs = append(errs, err)
	}

	if c.Sessions != nil {
		if err := c.Sessions.Valid(); err != nil {
			errs = append(errs, fmt.Errorf("sessions: %w", err))
		}
	}

	for _, v := range []interface{ Valid() error }{c.Classifier, c.Challenge, c.Session, c.Archive} {
		if err := v.Valid(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) != 0 {
		return fmt.Errorf("config is not valid:\n%w", errors.Join(errs...))
	}

	return nil
}

// Load parses a YAML (or JSON) configuration on top of Default.
func Load(fin io.Reader, fname string) (*Config, error) {
	c := Default()

	if err := yaml.NewYAMLToJSONDecoder(fin).Decode(c); err != nil {
		return nil, fmt.Errorf("can't parse config YAML %s: %w", fname, err)
	}

	if err := c.Valid(); err != nil {
		return nil, err
	}

	return c, nil
}

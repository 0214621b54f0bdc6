package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/inkwell-labs/scribble/lib/classifier"
	_ "github.com/inkwell-labs/scribble/lib/classifier/all"
)

var (
	ErrNoClassifierBackend      = errors.New("config.Classifier: no backend defined")
	ErrUnknownClassifierBackend = errors.New("config.Classifier: unknown backend")
	ErrBadClassifierTimeout     = errors.New("config.Classifier: timeout must be positive")
)

type Classifier struct {
	Backend    string          `json:"backend"`
	Parameters json.RawMessage `json:"parameters"`

	// Timeout bounds a single classification, whatever the backend.
	Timeout Duration `json:"timeout"`
}

func (c Classifier) Valid() error {
	var errs []error

	if c.Backend == "" {
		errs = append(errs, ErrNoClassifierBackend)
	} else if fac, ok := classifier.Get(c.Backend); !ok {
		errs = append(errs, fmt.Errorf("%w: %q (known: %v)", ErrUnknownClassifierBackend, c.Backend, classifier.Methods()))
	} else if err := fac.Valid(c.Parameters); err != nil {
		errs = append(errs, err)
	}

	if c.Timeout <= 0 {
		errs = append(errs, ErrBadClassifierTimeout)
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}

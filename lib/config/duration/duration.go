// Package duration holds the string-encoded duration used by every
// configuration block, including backend parameters.
package duration

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrInvalid = errors.New("config: invalid duration")

// Duration is a time.Duration that reads from strings like "5m".
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	*d = Duration(dur)
	return nil
}

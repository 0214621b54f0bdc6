package challengetest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell-labs/scribble/lib/challenge"
	"github.com/inkwell-labs/scribble/lib/store/memory"
)

// New builds a challenge that was never stored, for tests of code that only
// needs the value.
func New(t *testing.T, digit int) *challenge.Challenge {
	t.Helper()

	return &challenge.Challenge{
		ID:            uuid.Must(uuid.NewV7()).String(),
		ExpectedDigit: digit,
		IssuedAt:      time.Now(),
	}
}

// NewStore returns a challenge store over a fresh in-memory backend that
// lives as long as the test.
func NewStore(t *testing.T, ttl time.Duration) *challenge.Store {
	t.Helper()

	return challenge.NewStore(memory.New(t.Context()), ttl)
}

// Package challenge issues and consumes one-time digit challenges.
//
// A challenge lives in the backing store from Issue until the first Consume,
// or until its TTL runs out. Consume is a single atomic GetDelete, so a
// challenge can be verified at most once even with several verifiers racing.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell-labs/scribble/lib/store"
)

// KeyPrefix namespaces challenge records in a shared store.
const KeyPrefix = "challenge:"

// Challenge is the metadata about a single challenge issuance.
type Challenge struct {
	ID            string    `json:"id"`            // UUIDv7 identifying the challenge
	ExpectedDigit int       `json:"expectedDigit"` // The digit the client must draw, 0-9
	IssuedAt      time.Time `json:"issuedAt"`
}

// Store hands out challenges and takes them back exactly once.
type Store struct {
	challenges store.JSON[Challenge]
	ttl        time.Duration
	digit      func() int
}

// NewStore wraps backend. Challenges not consumed within ttl disappear.
func NewStore(backend store.Interface, ttl time.Duration) *Store {
	return &Store{
		challenges: store.JSON[Challenge]{
			Underlying: backend,
			Prefix:     KeyPrefix,
		},
		ttl:   ttl,
		digit: func() int { return rand.IntN(10) },
	}
}

// TTL reports how long an issued challenge stays verifiable.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Issue creates a fresh challenge with a uniformly random digit and records it.
func (s *Store) Issue(ctx context.Context) (*Challenge, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("can't generate challenge id: %w", err)
	}

	chall := Challenge{
		ID:            id.String(),
		ExpectedDigit: s.digit(),
		IssuedAt:      time.Now(),
	}

	if err := s.challenges.Set(ctx, chall.ID, chall, s.ttl); err != nil {
		return nil, fmt.Errorf("can't store challenge %s: %w", chall.ID, err)
	}

	Issued.Inc()

	return &chall, nil
}

// Consume atomically looks up and removes the challenge. It returns
// ErrInvalidID when the id is unknown, expired or already consumed.
func (s *Store) Consume(ctx context.Context, id string) (*Challenge, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidID)
	}

	chall, err := s.challenges.GetDelete(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
		}

		return nil, fmt.Errorf("can't consume challenge %q: %w", id, err)
	}

	if chall.ExpectedDigit < 0 || chall.ExpectedDigit > 9 {
		return nil, fmt.Errorf("%w: challenge %q has expected digit %d", store.ErrCantDecode, id, chall.ExpectedDigit)
	}

	Consumed.Inc()

	return &chall, nil
}

// Package session tracks which client sessions have passed a challenge.
//
// A session is identified by a ULID carried in a signed JWT cookie. The pass
// flag lives in the backing store under the SHA-256 of the session id, so a
// dump of the store can't be turned back into working cookies.
package session

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/inkwell-labs/scribble/internal"
	"github.com/inkwell-labs/scribble/lib/store"
	"github.com/oklog/ulid/v2"
)

// KeyPrefix namespaces session records in a shared store.
const KeyPrefix = "session:"

var (
	ErrInvalidToken = errors.New("session: token is invalid")
	ErrNoStore      = errors.New("session: no store configured")
)

type Access string

const (
	Granted Access = "granted"
	Denied  Access = "denied"
)

// State is what the store keeps per session.
type State struct {
	Passed   bool      `json:"passed"`
	PassedAt time.Time `json:"passedAt"`
}

type Options struct {
	Store             store.Interface
	TTL               time.Duration
	ED25519PrivateKey ed25519.PrivateKey
	HS512Secret       []byte
}

type Manager struct {
	states      store.JSON[State]
	ttl         time.Duration
	ed25519Priv ed25519.PrivateKey
	ed25519Pub  ed25519.PublicKey
	hs512Secret []byte
}

func New(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, ErrNoStore
	}

	if opts.ED25519PrivateKey == nil && opts.HS512Secret == nil {
		slog.Debug("opts.PrivateKey not set, generating a new one")
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("session: can't generate private key: %w", err)
		}
		opts.ED25519PrivateKey = priv
	}

	m := &Manager{
		states: store.JSON[State]{
			Underlying: opts.Store,
			Prefix:     KeyPrefix,
		},
		ttl:         opts.TTL,
		ed25519Priv: opts.ED25519PrivateKey,
		hs512Secret: opts.HS512Secret,
	}

	if m.ed25519Priv != nil {
		m.ed25519Pub = m.ed25519Priv.Public().(ed25519.PublicKey)
	}

	return m, nil
}

// NewID returns a fresh session id.
func NewID() string {
	return ulid.Make().String()
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Sign wraps sid in a token that expires with the session.
func (m *Manager) Sign(sid string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sid": sid,
		"iat": now.Unix(),
		"nbf": now.Add(-1 * time.Minute).Unix(),
		"exp": now.Add(m.ttl).Unix(),
	}

	if len(m.hs512Secret) == 0 {
		return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(m.ed25519Priv)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(m.hs512Secret)
}

// Parse validates token and returns the session id inside it.
func (m *Manager) Parse(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, func(token *jwt.Token) (any, error) {
		if len(m.hs512Secret) == 0 {
			return m.ed25519Pub, nil
		}
		return m.hs512Secret, nil
	}, jwt.WithExpirationRequired(), jwt.WithStrictDecoding(), jwt.WithValidMethods([]string{m.method()}))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: invalid claims type", ErrInvalidToken)
	}

	sid, ok := claims["sid"].(string)
	if !ok || sid == "" {
		return "", fmt.Errorf("%w: sid claim is missing", ErrInvalidToken)
	}

	if _, err := ulid.ParseStrict(sid); err != nil {
		return "", fmt.Errorf("%w: sid claim is not a ULID: %w", ErrInvalidToken, err)
	}

	return sid, nil
}

func (m *Manager) method() string {
	if len(m.hs512Secret) == 0 {
		return jwt.SigningMethodEdDSA.Alg()
	}
	return jwt.SigningMethodHS512.Alg()
}

func key(sid string) string {
	return internal.SHA256sum(sid)
}

// MarkPassed records that sid passed a challenge. Marking an already passed
// session again keeps the original pass time.
func (m *Manager) MarkPassed(ctx context.Context, sid string) error {
	st, err := m.states.Get(ctx, key(sid))
	switch {
	case err == nil && st.Passed:
		return nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("can't read session state: %w", err)
	}

	if err := m.states.Set(ctx, key(sid), State{Passed: true, PassedAt: time.Now()}, m.ttl); err != nil {
		return fmt.Errorf("can't store session state: %w", err)
	}

	return nil
}

// Check reports whether sid has passed a challenge. It never changes state.
func (m *Manager) Check(ctx context.Context, sid string) (Access, error) {
	result, err := m.check(ctx, sid)
	accessChecks.WithLabelValues(string(result)).Inc()
	return result, err
}

func (m *Manager) check(ctx context.Context, sid string) (Access, error) {
	if sid == "" {
		return Denied, nil
	}

	st, err := m.states.Get(ctx, key(sid))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Denied, nil
		}
		return Denied, fmt.Errorf("can't read session state: %w", err)
	}

	if st.Passed {
		return Granted, nil
	}

	return Denied, nil
}

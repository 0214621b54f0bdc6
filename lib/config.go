package lib

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/inkwell-labs/scribble"
	"github.com/inkwell-labs/scribble/internal"
	"github.com/inkwell-labs/scribble/lib/archive"
	"github.com/inkwell-labs/scribble/lib/captcha"
	"github.com/inkwell-labs/scribble/lib/classifier"
	"github.com/inkwell-labs/scribble/lib/config"
	"github.com/inkwell-labs/scribble/lib/session"
	"github.com/inkwell-labs/scribble/lib/store"
)

var (
	ErrNoEngine   = errors.New("lib: no verification engine configured")
	ErrNoSessions = errors.New("lib: no session manager configured")
)

type Options struct {
	Engine   *captcha.Engine
	Sessions *session.Manager

	// Archive serves the image export. When nil, the export is an empty zip.
	Archive *archive.Archive

	ExposeExpectedDigit bool
	CookieDynamicDomain bool
	CookieDomain        string
	CookieName          string
	CookiePartitioned   bool
	CookieSecure        bool
	BasePrefix          string
	MaxBodySize         int64
}

// LoadConfigOrDefault reads the gateway configuration at fname, or returns
// the defaults when fname is empty.
func LoadConfigOrDefault(fname string) (*config.Config, error) {
	if fname == "" {
		return config.Default(), nil
	}

	fin, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", fname, err)
	}

	defer func(fin io.ReadCloser) {
		if err := fin.Close(); err != nil {
			slog.Error("failed to close config file", "file", fname, "err", err)
		}
	}(fin)

	return config.Load(fin, fname)
}

// BuildStore constructs the store backend described by cfg.
func BuildStore(ctx context.Context, cfg config.Store) (store.Interface, error) {
	st, err := store.Build(ctx, cfg.Backend, cfg.Parameters)
	if err != nil {
		return nil, fmt.Errorf("can't build store backend: %w", err)
	}

	return st, nil
}

// BuildClassifier constructs the classifier backend described by cfg and
// wraps it in a Gateway.
func BuildClassifier(ctx context.Context, cfg config.Classifier) (*classifier.Gateway, error) {
	fac, ok := classifier.Get(cfg.Backend)
	if !ok {
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownClassifierBackend, cfg.Backend)
	}

	impl, err := fac.Build(ctx, cfg.Parameters)
	if err != nil {
		return nil, fmt.Errorf("can't build classifier backend %q: %w", cfg.Backend, err)
	}

	timeout := cfg.Timeout.Duration()
	if timeout == 0 {
		timeout = scribble.DefaultClassifierTimeout
	}

	return classifier.NewGateway(cfg.Backend, impl, timeout), nil
}

func New(opts Options) (*Server, error) {
	var errs []error
	if opts.Engine == nil {
		errs = append(errs, ErrNoEngine)
	}
	if opts.Sessions == nil {
		errs = append(errs, ErrNoSessions)
	}
	if len(errs) != 0 {
		return nil, errors.Join(errs...)
	}

	if opts.CookieName == "" {
		opts.CookieName = scribble.CookieName
	}
	if opts.MaxBodySize == 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}

	scribble.BasePrefix = opts.BasePrefix

	result := &Server{
		engine:   opts.Engine,
		sessions: opts.Sessions,
		archive:  opts.Archive,
		opts:     opts,
	}

	mux := http.NewServeMux()

	// Helper to add global prefix
	registerWithPrefix := func(pattern string, handler http.Handler, method string) {
		if method != "" {
			method = method + " " // methods must end with a space to register with them
		}

		// Ensure there's no double slash when concatenating BasePrefix and pattern
		basePrefix := strings.TrimSuffix(scribble.BasePrefix, "/")
		prefix := method + basePrefix

		if !strings.HasPrefix(pattern, "/") {
			pattern = "/" + pattern
		}

		mux.Handle(prefix+pattern, handler)
	}

	api := func(h http.HandlerFunc) http.Handler {
		return internal.NoStoreCache(internal.GzipMiddleware(1, h))
	}

	registerWithPrefix("/captcha", api(result.IssueChallenge), "GET")
	registerWithPrefix("/predict", api(result.VerifyChallenge), "POST")
	registerWithPrefix("/check", api(result.CheckAccess), "GET")
	registerWithPrefix("/images", internal.NoStoreCache(http.HandlerFunc(result.ExportImages)), "GET")
	registerWithPrefix("/health", http.HandlerFunc(result.Health), "GET")

	result.mux = mux

	return result, nil
}

// cookieExpiry is used when a cookie is set without an explicit lifetime.
func (s *Server) cookieExpiry() time.Duration {
	if ttl := s.sessions.TTL(); ttl > 0 {
		return ttl
	}
	return scribble.DefaultSessionTTL
}

package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/facebookgo/flagenv"
	"github.com/inkwell-labs/scribble"
	"github.com/inkwell-labs/scribble/internal"
	libscribble "github.com/inkwell-labs/scribble/lib"
	"github.com/inkwell-labs/scribble/lib/archive"
	"github.com/inkwell-labs/scribble/lib/captcha"
	"github.com/inkwell-labs/scribble/lib/challenge"
	"github.com/inkwell-labs/scribble/lib/classifier/remote"
	"github.com/inkwell-labs/scribble/lib/config"
	"github.com/inkwell-labs/scribble/lib/session"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	archiveDir               = flag.String("archive-dir", "", "if set, save every submitted drawing with its expected digit to this folder")
	basePrefix               = flag.String("base-prefix", "", "base prefix (root URL) the application is served under e.g. /captcha-api")
	bind                     = flag.String("bind", ":8923", "network address to bind HTTP to")
	bindNetwork              = flag.String("bind-network", "tcp", "network family to bind HTTP to, e.g. unix, tcp")
	challengeTTL             = flag.Duration("challenge-ttl", scribble.DefaultChallengeTTL, "how long an issued challenge can be verified")
	classifierModel          = flag.String("classifier-model", "", "if set, model name the HTTP classifier backend asks for")
	classifierTimeout        = flag.Duration("classifier-timeout", scribble.DefaultClassifierTimeout, "upper bound on a single classification call")
	classifierURL            = flag.String("classifier-url", "", "if set, base URL of the HTTP model server")
	classifierVersion        = flag.String("classifier-version", "", "if set, model version the HTTP classifier backend asks for")
	configFname              = flag.String("config-fname", "", "full path to a scribble config file (defaults to in-memory storage and a local model server)")
	cookieDomain             = flag.String("cookie-domain", "", "if set, the top-level domain that the session cookie will be valid for")
	cookieDynamicDomain      = flag.Bool("cookie-dynamic-domain", false, "if set, automatically set the cookie Domain value based on the request domain")
	cookiePartitioned        = flag.Bool("cookie-partitioned", false, "if true, sets the partitioned flag on session cookies, enabling CHIPS support")
	cookiePrefix             = flag.String("cookie-prefix", "inkwell-scribble", "prefix for browser cookies created by scribble")
	cookieSecure             = flag.Bool("cookie-secure", true, "if true, sets the secure flag on session cookies")
	ed25519PrivateKeyHex     = flag.String("ed25519-private-key-hex", "", "private key used to sign session tokens, if not set a random one will be assigned")
	ed25519PrivateKeyHexFile = flag.String("ed25519-private-key-hex-file", "", "file name containing value for ed25519-private-key-hex")
	exposeExpectedDigit      = flag.Bool("expose-expected-digit", true, "if true, the issue response tells the client which digit to draw")
	forcedLanguage           = flag.String("forced-language", "", "if set, this language is being used instead of the one from the request's Accept-Language header")
	healthcheck              = flag.Bool("healthcheck", false, "run a health check against scribble")
	hs512Secret              = flag.String("hs512-secret", "", "secret used to sign session tokens, uses ed25519 if not set")
	metricsBind              = flag.String("metrics-bind", ":9090", "network address to bind metrics to")
	metricsBindNetwork       = flag.String("metrics-bind-network", "tcp", "network family for the metrics server to bind to")
	sessionTTL               = flag.Duration("session-ttl", scribble.DefaultSessionTTL, "how long a session (and its pass) lasts")
	slogFormat               = flag.String("slog-format", "json", "log output format, json or text")
	slogLevel                = flag.String("slog-level", "INFO", "logging level (see https://pkg.go.dev/log/slog#hdr-Levels)")
	socketMode               = flag.String("socket-mode", "0770", "socket mode (permissions) for unix domain sockets.")
	useRemoteAddress         = flag.Bool("use-remote-address", false, "read the client's IP address from the network request, useful for debugging and running scribble on bare metal")
	versionFlag              = flag.Bool("version", false, "print scribble version")
)

func keyFromHex(value string) (ed25519.PrivateKey, error) {
	keyBytes, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("supplied key is not hex-encoded: %w", err)
	}

	if len(keyBytes) != ed25519.SeedSize {
		return nil, fmt.Errorf("supplied key is not %d bytes long, got %d bytes", ed25519.SeedSize, len(keyBytes))
	}

	return ed25519.NewKeyFromSeed(keyBytes), nil
}

func doHealthCheck() error {
	network, address := *bindNetwork, *bind
	if network == "unix" {
		return fmt.Errorf("health checks over unix sockets are not supported, check %s instead", *metricsBind)
	}
	if strings.HasPrefix(address, ":") {
		address = "localhost" + address
	}

	resp, err := http.Get("http://" + address + scribble.BasePrefix + "/health")
	if err != nil {
		return fmt.Errorf("failed to fetch health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

// parseBindNetFromAddr determine bind network and address based on the given network and address.
func parseBindNetFromAddr(address string) (string, string) {
	defaultScheme := "http://"
	if !strings.Contains(address, "://") {
		if strings.HasPrefix(address, ":") {
			address = defaultScheme + "localhost" + address
		} else {
			address = defaultScheme + address
		}
	}

	bindUri, err := url.Parse(address)
	if err != nil {
		log.Fatal(fmt.Errorf("failed to parse bind URL: %w", err))
	}

	switch bindUri.Scheme {
	case "unix":
		return "unix", bindUri.Path
	case "tcp", "http", "https":
		return "tcp", bindUri.Host
	default:
		log.Fatal(fmt.Errorf("unsupported network scheme %s in address %s", bindUri.Scheme, address))
	}
	return "", address
}

func setupListener(network string, address string) (net.Listener, string) {
	formattedAddress := ""

	if network == "" {
		network, address = parseBindNetFromAddr(address)
	}

	switch network {
	case "unix":
		formattedAddress = "unix:" + address
	case "tcp":
		if strings.HasPrefix(address, ":") { // assume it's just a port e.g. :4259
			formattedAddress = "http://localhost" + address
		} else {
			formattedAddress = "http://" + address
		}
	default:
		formattedAddress = fmt.Sprintf(`(%s) %s`, network, address)
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		log.Fatal(fmt.Errorf("failed to bind to %s: %w", formattedAddress, err))
	}

	// additional permission handling for unix sockets
	if network == "unix" {
		mode, err := strconv.ParseUint(*socketMode, 8, 0)
		if err != nil {
			listener.Close()
			log.Fatal(fmt.Errorf("could not parse socket mode %s: %w", *socketMode, err))
		}

		err = os.Chmod(address, os.FileMode(mode))
		if err != nil {
			err := listener.Close()
			if err != nil {
				log.Printf("failed to close listener: %v", err)
			}
			log.Fatal(fmt.Errorf("could not change socket mode: %w", err))
		}
	}

	return listener, formattedAddress
}

// applyFlags lets explicitly set flags (or their environment variables)
// override the config file.
func applyFlags(cfg *config.Config) error {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["challenge-ttl"] {
		cfg.Challenge.TTL = config.Duration(*challengeTTL)
	}
	if set["session-ttl"] {
		cfg.Session.TTL = config.Duration(*sessionTTL)
	}
	if set["expose-expected-digit"] {
		cfg.Challenge.ExposeExpectedDigit = *exposeExpectedDigit
	}
	if set["classifier-timeout"] {
		cfg.Classifier.Timeout = config.Duration(*classifierTimeout)
	}
	if *archiveDir != "" {
		cfg.Archive.Enabled = true
		cfg.Archive.Dir = *archiveDir
	}

	if *classifierURL != "" || *classifierModel != "" || *classifierVersion != "" {
		if cfg.Classifier.Backend != "http" {
			return fmt.Errorf("classifier-url, classifier-model and classifier-version only apply to the http backend, config uses %q", cfg.Classifier.Backend)
		}

		var rc remote.Config
		if err := json.Unmarshal(cfg.Classifier.Parameters, &rc); err != nil {
			return fmt.Errorf("can't read http classifier parameters: %w", err)
		}
		if *classifierURL != "" {
			rc.URL = *classifierURL
		}
		if *classifierModel != "" {
			rc.Model = *classifierModel
		}
		if *classifierVersion != "" {
			rc.Version = *classifierVersion
		}

		params, err := json.Marshal(rc)
		if err != nil {
			return err
		}
		cfg.Classifier.Parameters = params
	}

	return cfg.Valid()
}

func main() {
	flagenv.Parse()
	flag.Parse()

	if *versionFlag {
		fmt.Println("scribble", scribble.Version)
		return
	}

	internal.InitSlog(*slogLevel, *slogFormat)

	if *basePrefix != "" && !strings.HasPrefix(*basePrefix, "/") {
		log.Fatalf("[misconfiguration] base-prefix must start with a slash, eg: /%s", *basePrefix)
	} else if strings.HasSuffix(*basePrefix, "/") {
		log.Fatalf("[misconfiguration] base-prefix must not end with a slash")
	}
	scribble.BasePrefix = *basePrefix

	if *healthcheck {
		if err := doHealthCheck(); err != nil {
			log.Fatal(err)
		}
		return
	}

	if *cookieDomain != "" && *cookieDynamicDomain {
		log.Fatalf("you can't set COOKIE_DOMAIN and COOKIE_DYNAMIC_DOMAIN at the same time")
	}

	cfg, err := libscribble.LoadConfigOrDefault(*configFname)
	if err != nil {
		log.Fatalf("can't load config file: %v", err)
	}

	if err := applyFlags(cfg); err != nil {
		log.Fatalf("can't apply flags to config: %v", err)
	}

	var ed25519Priv ed25519.PrivateKey
	if *hs512Secret != "" && (*ed25519PrivateKeyHex != "" || *ed25519PrivateKeyHexFile != "") {
		log.Fatal("do not specify both HS512 and ED25519 secrets")
	} else if *hs512Secret != "" {
		slog.Debug("signing session tokens with HS512")
	} else if *ed25519PrivateKeyHex != "" && *ed25519PrivateKeyHexFile != "" {
		log.Fatal("do not specify both ED25519_PRIVATE_KEY_HEX and ED25519_PRIVATE_KEY_HEX_FILE")
	} else if *ed25519PrivateKeyHex != "" {
		ed25519Priv, err = keyFromHex(*ed25519PrivateKeyHex)
		if err != nil {
			log.Fatalf("failed to parse and validate ED25519_PRIVATE_KEY_HEX: %v", err)
		}
	} else if *ed25519PrivateKeyHexFile != "" {
		hexFile, err := os.ReadFile(*ed25519PrivateKeyHexFile)
		if err != nil {
			log.Fatalf("failed to read ED25519_PRIVATE_KEY_HEX_FILE %s: %v", *ed25519PrivateKeyHexFile, err)
		}

		ed25519Priv, err = keyFromHex(string(bytes.TrimSpace(hexFile)))
		if err != nil {
			log.Fatalf("failed to parse and validate content of ED25519_PRIVATE_KEY_HEX_FILE: %v", err)
		}
	} else {
		_, ed25519Priv, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			log.Fatalf("failed to generate ed25519 key: %v", err)
		}

		slog.Warn("generating random key, session cookies will not survive a restart or work across multiple instances behind one load balancer")
	}

	scribble.CookieName = *cookiePrefix + "-session"
	scribble.ForcedLanguage = *forcedLanguage

	// install signal handler
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	challengeBackend, err := libscribble.BuildStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("can't build challenge store: %v", err)
	}

	sessionBackend := challengeBackend
	if cfg.Sessions != nil {
		sessionBackend, err = libscribble.BuildStore(ctx, *cfg.Sessions)
		if err != nil {
			log.Fatalf("can't build session store: %v", err)
		}
	}

	var hs512 []byte
	if *hs512Secret != "" {
		hs512 = []byte(*hs512Secret)
	}

	sessions, err := session.New(session.Options{
		Store:             sessionBackend,
		TTL:               cfg.Session.TTL.Duration(),
		ED25519PrivateKey: ed25519Priv,
		HS512Secret:       hs512,
	})
	if err != nil {
		log.Fatalf("can't construct session manager: %v", err)
	}

	gw, err := libscribble.BuildClassifier(ctx, cfg.Classifier)
	if err != nil {
		log.Fatalf("can't build classifier: %v", err)
	}
	defer func() {
		if err := gw.Close(); err != nil {
			slog.Error("can't close classifier", "err", err)
		}
	}()

	arch := archive.New(cfg.Archive.Dir)

	engineOpts := captcha.Options{
		Challenges: challenge.NewStore(challengeBackend, cfg.Challenge.TTL.Duration()),
		Classifier: gw,
		Sessions:   sessions,
	}
	if cfg.Archive.Enabled {
		engineOpts.Archive = arch
	}

	engine, err := captcha.New(engineOpts)
	if err != nil {
		log.Fatalf("can't construct verification engine: %v", err)
	}

	s, err := libscribble.New(libscribble.Options{
		Engine:              engine,
		Sessions:            sessions,
		Archive:             arch,
		ExposeExpectedDigit: cfg.Challenge.ExposeExpectedDigit,
		CookieDomain:        *cookieDomain,
		CookieDynamicDomain: *cookieDynamicDomain,
		CookieName:          scribble.CookieName,
		CookiePartitioned:   *cookiePartitioned,
		CookieSecure:        *cookieSecure,
		BasePrefix:          *basePrefix,
	})
	if err != nil {
		log.Fatalf("can't construct libscribble.Server: %v", err)
	}

	wg := new(sync.WaitGroup)

	if *metricsBind != "" {
		wg.Add(1)
		go metricsServer(ctx, wg.Done)
	}

	var h http.Handler
	h = s
	h = internal.WithRequestID(h)
	h = internal.RemoteXRealIP(*useRemoteAddress, h)
	h = internal.XForwardedForToXRealIP(h)

	srv := http.Server{Handler: h, ErrorLog: internal.GetFilteredHTTPLogger()}
	listener, listenerUrl := setupListener(*bindNetwork, *bind)
	slog.Info(
		"listening",
		"url", listenerUrl,
		"version", scribble.Version,
		"store", cfg.Store.Backend,
		"classifier", gw.Name(),
		"challenge-ttl", cfg.Challenge.TTL.Duration(),
		"session-ttl", cfg.Session.TTL.Duration(),
		"expose-expected-digit", cfg.Challenge.ExposeExpectedDigit,
		"archive", cfg.Archive.Enabled,
		"use-remote-address", *useRemoteAddress,
		"base-prefix", *basePrefix,
	)

	if err := serve(ctx, &srv, listener, 5*time.Second); err != nil {
		log.Fatal(err)
	}

	// handlers have drained, no more archive writes can start
	arch.Wait()
	wg.Wait()
}

func metricsServer(ctx context.Context, done func()) {
	defer done()

	mux := http.NewServeMux()
	mux.Handle(scribble.BasePrefix+"/metrics", promhttp.Handler())

	srv := http.Server{Handler: mux, ErrorLog: internal.GetFilteredHTTPLogger()}
	listener, metricsUrl := setupListener(*metricsBindNetwork, *metricsBind)
	slog.Debug("listening for metrics", "url", metricsUrl)

	if err := serve(ctx, &srv, listener, 5*time.Second); err != nil {
		log.Fatal(err)
	}
}

// serve runs srv on listener until ctx is done, then shuts it down. It only
// returns once Shutdown has finished waiting for in-flight requests.
func serve(ctx context.Context, srv *http.Server, listener net.Listener, grace time.Duration) error {
	shutdownDone := make(chan struct{})

	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-shutdownDone
	return nil
}

package config_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/inkwell-labs/scribble/lib/classifier/remote"
	"github.com/inkwell-labs/scribble/lib/config"
	"github.com/inkwell-labs/scribble/lib/store/bbolt"
	"github.com/inkwell-labs/scribble/lib/store/valkey"
)

func TestDefaultIsValid(t *testing.T) {
	if err := config.Default().Valid(); err != nil {
		t.Fatal(err)
	}
}

func loadFile(t *testing.T, fname string) (*config.Config, error) {
	t.Helper()

	fin, err := os.Open(fname)
	if err != nil {
		t.Fatal(err)
	}
	defer fin.Close()

	return config.Load(fin, fname)
}

func TestGoodConfigs(t *testing.T) {
	finfos, err := os.ReadDir("testdata/good")
	if err != nil {
		t.Fatal(err)
	}

	for _, st := range finfos {
		t.Run(st.Name(), func(t *testing.T) {
			if _, err := loadFile(t, filepath.Join("testdata", "good", st.Name())); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestBadConfigs(t *testing.T) {
	finfos, err := os.ReadDir("testdata/bad")
	if err != nil {
		t.Fatal(err)
	}

	for _, st := range finfos {
		t.Run(st.Name(), func(t *testing.T) {
			if _, err := loadFile(t, filepath.Join("testdata", "bad", st.Name())); err == nil {
				t.Fatal("config loaded successfully but should have failed")
			} else {
				t.Log(err)
			}
		})
	}
}

func TestLoadFull(t *testing.T) {
	c, err := loadFile(t, "testdata/good/full.yaml")
	if err != nil {
		t.Fatal(err)
	}

	if c.Store.Backend != "valkey" {
		t.Errorf("store backend = %q", c.Store.Backend)
	}
	if c.Sessions == nil || c.Sessions.Backend != "badger" {
		t.Errorf("sessions = %+v", c.Sessions)
	}
	if c.Challenge.TTL.Duration() != 2*time.Minute {
		t.Errorf("challenge ttl = %v", c.Challenge.TTL.Duration())
	}
	if c.Challenge.ExposeExpectedDigit {
		t.Error("expose_expected_digit should be false")
	}
	if c.Session.TTL.Duration() != 30*time.Minute {
		t.Errorf("session ttl = %v", c.Session.TTL.Duration())
	}
	if c.Classifier.Timeout.Duration() != 2*time.Second {
		t.Errorf("classifier timeout = %v", c.Classifier.Timeout.Duration())
	}
	if !c.Archive.Enabled || c.Archive.Dir != "/var/lib/scribble/images" {
		t.Errorf("archive = %+v", c.Archive)
	}

	var params remote.Config
	if err := json.Unmarshal(c.Classifier.Parameters, &params); err != nil {
		t.Fatal(err)
	}
	if params.Version != "3" {
		t.Errorf("classifier version = %q", params.Version)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	c, err := loadFile(t, "testdata/good/empty.yaml")
	if err != nil {
		t.Fatal(err)
	}

	def := config.Default()
	if c.Challenge != def.Challenge || c.Session != def.Session || c.Archive != def.Archive {
		t.Errorf("defaults were not kept: %+v", c)
	}
	if c.Sessions != nil {
		t.Error("sessions store should default to sharing the challenge store")
	}
}

func TestStoreValid(t *testing.T) {
	for _, tt := range []struct {
		name  string
		input config.Store
		err   error
	}{
		{
			name:  "no backend",
			input: config.Store{},
			err:   config.ErrNoStoreBackend,
		},
		{
			name: "in-memory backend",
			input: config.Store{
				Backend: "memory",
			},
		},
		{
			name: "bbolt backend",
			input: config.Store{
				Backend:    "bbolt",
				Parameters: json.RawMessage(`{"path": "` + filepath.Join(t.TempDir(), "scribble.bdb") + `"}`),
			},
		},
		{
			name: "badger backend",
			input: config.Store{
				Backend:    "badger",
				Parameters: json.RawMessage(`{"path": "/var/lib/scribble"}`),
			},
		},
		{
			name: "valkey backend",
			input: config.Store{
				Backend:    "valkey",
				Parameters: json.RawMessage(`{"url": "redis://valkey:6379/0"}`),
			},
		},
		{
			name: "valkey backend no URL",
			input: config.Store{
				Backend:    "valkey",
				Parameters: json.RawMessage(`{}`),
			},
			err: valkey.ErrNoURL,
		},
		{
			name: "valkey backend bad URL",
			input: config.Store{
				Backend:    "valkey",
				Parameters: json.RawMessage(`{"url": "http://scribble.example"}`),
			},
			err: valkey.ErrBadURL,
		},
		{
			name: "bbolt backend no path",
			input: config.Store{
				Backend:    "bbolt",
				Parameters: json.RawMessage(`{"path": ""}`),
			},
			err: bbolt.ErrMissingPath,
		},
		{
			name: "unknown backend",
			input: config.Store{
				Backend: "taco salad",
			},
			err: config.ErrUnknownStoreBackend,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.input.Valid(); !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Error("invalid error returned")
			}
		})
	}
}

func TestClassifierValid(t *testing.T) {
	for _, tt := range []struct {
		name  string
		input config.Classifier
		err   error
	}{
		{
			name:  "no backend",
			input: config.Classifier{Timeout: config.Duration(time.Second)},
			err:   config.ErrNoClassifierBackend,
		},
		{
			name:  "unknown backend",
			input: config.Classifier{Backend: "ouija", Timeout: config.Duration(time.Second)},
			err:   config.ErrUnknownClassifierBackend,
		},
		{
			name: "no timeout",
			input: config.Classifier{
				Backend:    "http",
				Parameters: json.RawMessage(`{"url":"http://localhost:8000","model":"HybridCNN"}`),
			},
			err: config.ErrBadClassifierTimeout,
		},
		{
			name: "http without model",
			input: config.Classifier{
				Backend:    "http",
				Parameters: json.RawMessage(`{"url":"http://localhost:8000"}`),
				Timeout:    config.Duration(time.Second),
			},
			err: remote.ErrNoModel,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.input.Valid(); !errors.Is(err, tt.err) {
				t.Errorf("wanted %v, got: %v", tt.err, err)
			}
		})
	}
}

func TestDuration(t *testing.T) {
	data, err := json.Marshal(config.Duration(90 * time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"1m30s"` {
		t.Errorf("wrong encoding: %s", data)
	}

	var d config.Duration
	if err := json.Unmarshal([]byte(`"250ms"`), &d); err != nil {
		t.Fatal(err)
	}
	if d.Duration() != 250*time.Millisecond {
		t.Errorf("wrong decoding: %s", d.Duration())
	}

	for _, input := range []string{`"whenever"`, `30`} {
		if err := json.Unmarshal([]byte(input), &d); !errors.Is(err, config.ErrBadDuration) {
			t.Errorf("%s: wanted config.ErrBadDuration, got: %v", input, err)
		}
	}
}

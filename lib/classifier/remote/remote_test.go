package remote

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/inkwell-labs/scribble/lib/classifier"
	"github.com/inkwell-labs/scribble/lib/imaging"
)

func TestClassify(t *testing.T) {
	for _, tt := range []struct {
		name    string
		version string
		path    string
		status  int
		body    string
		delay   time.Duration
		want    int
		err     error
	}{
		{
			name:   "scores",
			path:   "/models/predict/HybridCNN/",
			status: http.StatusOK,
			body:   `{"predictions":[[0.1,0.0,0.0,0.0,0.0,0.0,0.0,0.0,0.9,0.0]]}`,
			want:   8,
		},
		{
			name:    "digit with version",
			version: "3",
			path:    "/models/predict/HybridCNN/3/",
			status:  http.StatusOK,
			body:    `{"predictions":[2]}`,
			want:    2,
		},
		{
			name:   "server error",
			path:   "/models/predict/HybridCNN/",
			status: http.StatusInternalServerError,
			body:   `{"detail":"Prediction failed"}`,
			err:    classifier.ErrBackendUnavailable,
		},
		{
			name:   "not found",
			path:   "/models/predict/HybridCNN/",
			status: http.StatusNotFound,
			body:   `{}`,
			err:    classifier.ErrBackendUnavailable,
		},
		{
			name:   "garbage body",
			path:   "/models/predict/HybridCNN/",
			status: http.StatusOK,
			body:   `<html>oops</html>`,
			err:    classifier.ErrBackendProtocol,
		},
		{
			name:   "wrong shape",
			path:   "/models/predict/HybridCNN/",
			status: http.StatusOK,
			body:   `{"predictions":[[1,2,3]]}`,
			err:    classifier.ErrBackendProtocol,
		},
		{
			name:   "slow",
			path:   "/models/predict/HybridCNN/",
			status: http.StatusOK,
			body:   `{"predictions":[1]}`,
			delay:  500 * time.Millisecond,
			err:    classifier.ErrBackendUnavailable,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				if r.URL.Path != tt.path {
					t.Errorf("path = %s, want %s", r.URL.Path, tt.path)
				}

				var req predictRequest
				data, _ := io.ReadAll(r.Body)
				if err := json.Unmarshal(data, &req); err != nil {
					t.Errorf("can't decode request: %v", err)
				} else if len(req.Inputs) != 1 || len(req.Inputs[0]) != imaging.Side*imaging.Side {
					t.Errorf("request has wrong input shape")
				}

				if tt.delay > 0 {
					select {
					case <-time.After(tt.delay):
					case <-r.Context().Done():
						return
					}
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			cli, err := NewClient(srv.URL, "HybridCNN", tt.version, srv.Client())
			if err != nil {
				t.Fatal(err)
			}

			gw := classifier.NewGateway("http", cli, 100*time.Millisecond)
			got, err := gw.Classify(t.Context(), &imaging.Tensor{})
			if !errors.Is(err, tt.err) {
				t.Fatalf("wanted error %v, got: %v", tt.err, err)
			}
			if tt.err == nil && got != tt.want {
				t.Errorf("digit = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStalledBody(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"predictions": [[`))
		w.(http.Flusher).Flush()

		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cli, err := NewClient(srv.URL, "HybridCNN", "", srv.Client())
	if err != nil {
		t.Fatal(err)
	}

	gw := classifier.NewGateway("http", cli, 100*time.Millisecond)
	_, err = gw.Classify(t.Context(), &imaging.Tensor{})
	if !errors.Is(err, classifier.ErrBackendUnavailable) {
		t.Fatalf("wanted ErrBackendUnavailable, got: %v", err)
	}
	if errors.Is(err, classifier.ErrBackendProtocol) {
		t.Errorf("a timeout must not be reported as a protocol error: %v", err)
	}
}

func TestConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	cli, err := NewClient(addr, "HybridCNN", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := cli.Classify(t.Context(), &imaging.Tensor{}); !errors.Is(err, classifier.ErrBackendUnavailable) {
		t.Errorf("wanted ErrBackendUnavailable, got: %v", err)
	}
}

func TestConfigValid(t *testing.T) {
	for _, tt := range []struct {
		name string
		data string
		err  error
	}{
		{name: "ok", data: `{"url":"http://localhost:8000","model":"HybridCNN"}`},
		{name: "ok with version", data: `{"url":"https://models.internal","model":"HybridCNN","version":"2"}`},
		{name: "bad json", data: `{`, err: classifier.ErrBadConfig},
		{name: "no url", data: `{"model":"HybridCNN"}`, err: ErrNoURL},
		{name: "relative url", data: `{"url":"/models","model":"HybridCNN"}`, err: ErrBadURL},
		{name: "no model", data: `{"url":"http://localhost:8000"}`, err: ErrNoModel},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := Factory{}.Valid(json.RawMessage(tt.data))
			if tt.err == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("wanted %v, got: %v", tt.err, err)
			}
		})
	}
}

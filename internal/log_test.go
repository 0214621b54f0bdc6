package internal

import (
	"bytes"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestErrorLogFilter(t *testing.T) {
	var buf bytes.Buffer
	destLogger := log.New(&buf, "", 0)
	errorFilterWriter := &ErrorLogFilter{Unwrap: destLogger}
	testErrorLogger := log.New(errorFilterWriter, "", 0)

	// Test Case 1: Suppressed message
	suppressedMessage := "http: proxy error: context canceled"
	testErrorLogger.Println(suppressedMessage)

	if buf.Len() != 0 {
		t.Errorf("Suppressed message was written to output. Output: %q", buf.String())
	}
	buf.Reset()

	// Test Case 2: Allowed message
	allowedMessage := "http: another error occurred"
	testErrorLogger.Println(allowedMessage)

	output := buf.String()
	if !strings.Contains(output, allowedMessage) {
		t.Errorf("Allowed message was not written to output. Output: %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Errorf("Allowed message output is missing newline. Output: %q", output)
	}
	buf.Reset()

	// Test Case 3: Partially matching message (should be suppressed)
	partiallyMatchingMessage := "Some other log before http: proxy error: context canceled and after"
	testErrorLogger.Println(partiallyMatchingMessage)

	if buf.Len() != 0 {
		t.Errorf("Partially matching message was written to output. Output: %q", buf.String())
	}
	buf.Reset()
}

func TestXForwardedForToXRealIP(t *testing.T) {
	for _, tt := range []struct {
		name     string
		xff      string
		preset   string
		wantReal string
	}{
		{name: "public address", xff: "8.8.8.8", wantReal: "8.8.8.8"},
		{name: "skips private hops", xff: "10.0.0.1, 1.1.1.1", wantReal: "1.1.1.1"},
		{name: "keeps existing X-Real-Ip", xff: "8.8.8.8", preset: "9.9.9.9", wantReal: "9.9.9.9"},
		{name: "no header", wantReal: ""},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := XForwardedForToXRealIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("X-Real-Ip")
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.preset != "" {
				req.Header.Set("X-Real-Ip", tt.preset)
			}

			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.wantReal {
				t.Errorf("X-Real-Ip = %q, want %q", got, tt.wantReal)
			}
		})
	}
}

func TestRemoteXRealIP(t *testing.T) {
	var got string
	h := RemoteXRealIP(true, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Real-Ip")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != "203.0.113.7" {
		t.Errorf("X-Real-Ip = %q, want 203.0.113.7", got)
	}
}

func TestWithRequestID(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r)
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if seen == "" {
			t.Fatal("no request id assigned")
		}
		if rec.Header().Get(RequestIDHeader) != seen {
			t.Errorf("response header %q does not match request id %q", rec.Header().Get(RequestIDHeader), seen)
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "upstream-123")
		h.ServeHTTP(httptest.NewRecorder(), req)

		if seen != "upstream-123" {
			t.Errorf("request id = %q, want upstream-123", seen)
		}
	})
}

func TestGzipMiddleware(t *testing.T) {
	h := GzipMiddleware(1, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("scribble ", 100)))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("missing gzip encoding, headers: %v", rec.Header())
	}

	gz, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(gz)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(string(body), "scribble scribble") {
		t.Errorf("unexpected body: %q", body[:min(len(body), 32)])
	}
}

func TestNewSlogHandler(t *testing.T) {
	for _, tt := range []struct {
		name      string
		level     string
		format    string
		wantJSON  bool
		wantDebug bool
	}{
		{name: "json info", level: "INFO", format: "json", wantJSON: true},
		{name: "text debug", level: "DEBUG", format: "text", wantDebug: true},
		{name: "bad level falls back to info", level: "LOUD", format: "", wantJSON: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			lg := slog.New(NewSlogHandler(&buf, tt.level, tt.format))

			lg.Debug("debug line")
			lg.Info("info line", "digit", 7)

			out := buf.String()
			if got := strings.HasPrefix(out, "{"); got != tt.wantJSON {
				t.Errorf("json output: wanted %v, got %q", tt.wantJSON, out)
			}
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Errorf("debug line present: wanted %v, got %v", tt.wantDebug, got)
			}
			if !strings.Contains(out, "info line") {
				t.Errorf("info line missing from %q", out)
			}
		})
	}
}

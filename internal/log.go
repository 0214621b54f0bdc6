package internal

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

// InitSlog installs the process-wide logger writing to stderr.
func InitSlog(level, format string) {
	slog.SetDefault(slog.New(NewSlogHandler(os.Stderr, level, format)))
}

// NewSlogHandler builds a JSON handler, or a text handler when format is
// "text". Unknown levels fall back to info.
func NewSlogHandler(w io.Writer, level, format string) slog.Handler {
	var programLevel slog.Level
	if err := (&programLevel).UnmarshalText([]byte(level)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v, using info\n", level, err)
		programLevel = slog.LevelInfo
	}

	leveler := &slog.LevelVar{}
	leveler.Set(programLevel)

	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     leveler,
	}

	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// GetRequestLogger returns a logger annotated with the request id, client
// address and the headers that help when triaging a verification report.
func GetRequestLogger(r *http.Request) *slog.Logger {
	return slog.With(
		"request_id", RequestID(r),
		"method", r.Method,
		"path", r.URL.Path,
		"client_ip", r.Header.Get("X-Real-Ip"),
		"user_agent", r.UserAgent(),
		"accept_language", r.Header.Get("Accept-Language"),
	)
}

// ErrorLogFilter is used to suppress "context canceled" logs from the http server when a request is canceled (e.g., when a client disconnects).
type ErrorLogFilter struct {
	Unwrap *log.Logger
}

func (elf *ErrorLogFilter) Write(p []byte) (n int, err error) {
	logMessage := string(p)
	if strings.Contains(logMessage, "context canceled") {
		return len(p), nil
	}
	if elf.Unwrap != nil {
		return elf.Unwrap.Writer().Write(p)
	}
	return len(p), nil
}

func GetFilteredHTTPLogger() *log.Logger {
	stdErrLogger := log.New(os.Stderr, "", log.LstdFlags)
	return log.New(&ErrorLogFilter{Unwrap: stdErrLogger}, "", 0)
}

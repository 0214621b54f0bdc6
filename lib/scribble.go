package lib

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/inkwell-labs/scribble/internal"
	"github.com/inkwell-labs/scribble/lib/archive"
	"github.com/inkwell-labs/scribble/lib/captcha"
	"github.com/inkwell-labs/scribble/lib/localization"
	"github.com/inkwell-labs/scribble/lib/session"
)

// ArchiveFileName is what browsers save the image export as.
const ArchiveFileName = "captcha_images.zip"

// DefaultMaxBodySize caps a verification request. A 280x280 canvas PNG is
// well under this.
const DefaultMaxBodySize = 4 << 20

var (
	requestsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribble_requests_total",
		Help: "The total number of API requests served, by route and status code",
	}, []string{"route", "code"})

	exportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scribble_image_api_request_duration_seconds",
		Help:    "Time spent building the image archive export",
		Buckets: prometheus.DefBuckets,
	})
)

type Server struct {
	mux      *http.ServeMux
	engine   *captcha.Engine
	sessions *session.Manager
	archive  *archive.Archive
	opts     Options
}

type issueResponse struct {
	ID            string `json:"id"`
	ExpectedDigit *int   `json:"expected_digit,omitempty"`
}

type verifyRequest struct {
	ID    string `json:"id"`
	Image string `json:"image"`
}

type verifyResponse struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

type checkResponse struct {
	Access session.Access `json:"access"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// IssueChallenge hands out a fresh challenge and makes sure the client has a
// session cookie to verify it under.
func (s *Server) IssueChallenge(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)
	localizer := localization.GetLocalizer(r)

	if _, err := s.ensureSession(w, r); err != nil {
		lg.Error("can't start session", "err", err)
		s.respondWithStatus(w, r, errorResponse{Detail: localizer.T("internal_error")}, http.StatusInternalServerError)
		return
	}

	chall, err := s.engine.Issue(r.Context())
	if err != nil {
		lg.Error("can't issue challenge", "err", err)
		s.respondWithStatus(w, r, errorResponse{Detail: localizer.T("internal_error")}, http.StatusInternalServerError)
		return
	}

	resp := issueResponse{ID: chall.ID}
	if s.opts.ExposeExpectedDigit {
		digit := chall.ExpectedDigit
		resp.ExpectedDigit = &digit
	}

	lg.Debug("issued challenge", "challenge_id", chall.ID)
	s.respondWithStatus(w, r, resp, http.StatusOK)
}

// VerifyChallenge classifies the submitted drawing against its challenge.
func (s *Server) VerifyChallenge(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)
	localizer := localization.GetLocalizer(r)

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodySize)

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" || req.Image == "" {
		lg.Debug("can't decode verification request", "err", err)
		s.respondWithStatus(w, r, verifyResponse{Message: localizer.T("invalid_request")}, http.StatusBadRequest)
		return
	}

	sid, err := s.ensureSession(w, r)
	if err != nil {
		lg.Error("can't start session", "err", err)
		s.respondWithStatus(w, r, verifyResponse{Message: localizer.T("internal_error")}, http.StatusInternalServerError)
		return
	}

	att := s.engine.Verify(r.Context(), lg, sid, req.ID, req.Image)

	var msg string
	switch att.Outcome {
	case captcha.Passed:
		lg.Info("challenge passed", "attempt", att)
		msg = localizer.T(att.Outcome.MessageID())
	case captcha.Failed:
		lg.Info("challenge failed", "attempt", att)
		msg = localizer.TData(att.Outcome.MessageID(), map[string]any{"Digit": att.PredictedDigit})
	case captcha.InvalidID:
		lg.Debug("unknown challenge", "attempt", att, "err", att.Err)
		msg = localizer.T(att.Err.PublicReason)
	default:
		lg.Error("verification failed", "attempt", att, "err", att.Err)
		msg = localizer.T(att.Err.PublicReason)
	}

	s.respondWithStatus(w, r, verifyResponse{
		Passed:  att.Outcome == captcha.Passed,
		Message: msg,
	}, att.Outcome.StatusCode())
}

// CheckAccess reports whether the caller's session has passed a challenge.
// Clients without a usable session are denied.
func (s *Server) CheckAccess(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	sid, err := s.sessionFromRequest(r)
	if err != nil {
		lg.Debug("no usable session", "err", err)
		if errors.Is(err, session.ErrInvalidToken) {
			s.ClearCookie(w, CookieOpts{Host: r.Host})
		}
		s.respondWithStatus(w, r, checkResponse{Access: session.Denied}, http.StatusOK)
		return
	}

	access, err := s.engine.Check(r.Context(), sid)
	if err != nil {
		lg.Error("can't check session, denying", "err", err)
		access = session.Denied
	}

	s.respondWithStatus(w, r, checkResponse{Access: access}, http.StatusOK)
}

// ExportImages streams a zip of every archived drawing.
func (s *Server) ExportImages(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)
	localizer := localization.GetLocalizer(r)
	start := time.Now()
	defer func() { exportDuration.Observe(time.Since(start).Seconds()) }()

	var buf bytes.Buffer
	if _, err := s.archive.Export(&buf); err != nil {
		lg.Error("can't export image archive", "err", err)
		s.respondWithStatus(w, r, errorResponse{Detail: localizer.T("archive_error")}, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename="+ArchiveFileName)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	requestsServed.WithLabelValues("images", strconv.Itoa(http.StatusOK)).Inc()
	if _, err := buf.WriteTo(w); err != nil {
		lg.Debug("client went away during export", "err", err)
	}
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	s.respondWithStatus(w, r, map[string]string{"status": "ok"}, http.StatusOK)
}

// sessionFromRequest returns the session id in the request cookie.
func (s *Server) sessionFromRequest(r *http.Request) (string, error) {
	ckie, err := r.Cookie(s.opts.CookieName)
	if err != nil {
		return "", err
	}
	return s.sessions.Parse(ckie.Value)
}

// ensureSession returns the caller's session id, starting a new session and
// setting its cookie when the request has none or a bad one.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) (string, error) {
	sid, err := s.sessionFromRequest(r)
	if err == nil {
		return sid, nil
	}

	if errors.Is(err, session.ErrInvalidToken) {
		internal.GetRequestLogger(r).Debug("replacing invalid session cookie", "err", err)
	}

	sid = session.NewID()
	token, err := s.sessions.Sign(sid)
	if err != nil {
		return "", err
	}

	s.SetCookie(w, CookieOpts{
		Value:  token,
		Host:   r.Host,
		Expiry: s.sessions.TTL(),
	})

	return sid, nil
}

func (s *Server) respondWithStatus(w http.ResponseWriter, r *http.Request, body any, status int) {
	requestsServed.WithLabelValues(routeName(r), strconv.Itoa(status)).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("can't write response", "err", err)
	}
}

func routeName(r *http.Request) string {
	if r.Pattern == "" {
		return "unknown"
	}
	return r.Pattern
}

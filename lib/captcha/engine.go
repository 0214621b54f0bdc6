// Package captcha verifies a drawn digit against an outstanding challenge.
//
// A verification runs consume, normalize, classify, compare and then marks
// the session on a pass. The challenge is consumed first, so every attempt
// burns it whatever the outcome.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inkwell-labs/scribble/lib/archive"
	"github.com/inkwell-labs/scribble/lib/challenge"
	"github.com/inkwell-labs/scribble/lib/classifier"
	"github.com/inkwell-labs/scribble/lib/imaging"
	"github.com/inkwell-labs/scribble/lib/session"
)

var ErrMissingDependency = errors.New("captcha: engine is missing a dependency")

type Options struct {
	Challenges *challenge.Store
	Classifier classifier.Interface
	Sessions   *session.Manager

	// Archive is optional. When set, the centered image of every attempt
	// that gets past normalization is saved with its expected digit.
	Archive *archive.Archive
}

type Engine struct {
	challenges *challenge.Store
	classifier classifier.Interface
	sessions   *session.Manager
	archive    *archive.Archive
}

func New(opts Options) (*Engine, error) {
	var errs []error
	if opts.Challenges == nil {
		errs = append(errs, fmt.Errorf("%w: challenge store", ErrMissingDependency))
	}
	if opts.Classifier == nil {
		errs = append(errs, fmt.Errorf("%w: classifier", ErrMissingDependency))
	}
	if opts.Sessions == nil {
		errs = append(errs, fmt.Errorf("%w: session manager", ErrMissingDependency))
	}
	if len(errs) != 0 {
		return nil, errors.Join(errs...)
	}

	return &Engine{
		challenges: opts.Challenges,
		classifier: opts.Classifier,
		sessions:   opts.Sessions,
		archive:    opts.Archive,
	}, nil
}

// Attempt is the record of one verification.
type Attempt struct {
	ChallengeID    string
	SessionID      string
	ExpectedDigit  int
	PredictedDigit int
	Outcome        Outcome
	Fingerprint    string

	// Err is set for every outcome other than Passed and Failed.
	Err *Error
}

func (a Attempt) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("challenge_id", a.ChallengeID),
		slog.String("outcome", a.Outcome.String()),
	}
	if a.Outcome == Passed || a.Outcome == Failed {
		attrs = append(attrs,
			slog.Int("expected", a.ExpectedDigit),
			slog.Int("predicted", a.PredictedDigit),
			slog.String("tensor", a.Fingerprint),
		)
	}
	return slog.GroupValue(attrs...)
}

// Issue hands out a new challenge.
func (e *Engine) Issue(ctx context.Context) (*challenge.Challenge, error) {
	return e.challenges.Issue(ctx)
}

// Check reports whether sid has passed a challenge.
func (e *Engine) Check(ctx context.Context, sid string) (session.Access, error) {
	return e.sessions.Check(ctx, sid)
}

// Verify runs one verification attempt for sessionID. It always returns a
// terminal outcome.
func (e *Engine) Verify(ctx context.Context, lg *slog.Logger, sessionID, id, rawImage string) Attempt {
	att := Attempt{
		ChallengeID: id,
		SessionID:   sessionID,
	}

	chall, err := e.challenges.Consume(ctx, id)
	if err != nil {
		if errors.Is(err, challenge.ErrInvalidID) {
			return e.fail(att, InvalidID, err)
		}
		return e.fail(att, ProcessingError, err)
	}
	att.ExpectedDigit = chall.ExpectedDigit

	norm, err := imaging.FromDataURI(rawImage)
	if err != nil {
		return e.fail(att, ProcessingError, err)
	}
	att.Fingerprint = norm.Tensor.Fingerprint()

	if e.archive != nil {
		e.archive.SaveAsync(norm.Centered, chall.ID, chall.ExpectedDigit, lg)
	}

	predicted, err := e.classifier.Classify(ctx, norm.Tensor)
	if err != nil {
		switch {
		case errors.Is(err, classifier.ErrBackendProtocol):
			return e.fail(att, BackendProtocolError, err)
		case errors.Is(err, classifier.ErrBackendUnavailable):
			return e.fail(att, BackendUnavailable, err)
		default:
			return e.fail(att, ProcessingError, err)
		}
	}
	att.PredictedDigit = predicted

	if predicted != chall.ExpectedDigit {
		att.Outcome = Failed
		failedValidations.WithLabelValues(Failed.String()).Inc()
		return att
	}

	if err := e.sessions.MarkPassed(ctx, sessionID); err != nil {
		return e.fail(att, ProcessingError, fmt.Errorf("can't record pass: %w", err))
	}

	att.Outcome = Passed
	challengesValidated.Inc()

	return att
}

func (e *Engine) fail(att Attempt, outcome Outcome, err error) Attempt {
	att.Outcome = outcome
	att.Err = NewError("verify", outcome, err)
	failedValidations.WithLabelValues(outcome.String()).Inc()
	return att
}

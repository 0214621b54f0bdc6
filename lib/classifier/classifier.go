// Package classifier asks a digit classifier for its best guess about a
// normalized image.
//
// Backends register a Factory under a name and are picked by configuration.
// Every backend is wrapped in a Gateway that enforces the call timeout and
// sorts failures into ErrBackendUnavailable and ErrBackendProtocol.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/inkwell-labs/scribble/lib/imaging"
)

//go:generate go tool mockgen -destination=classifiermock/classifiermock.go -package=classifiermock . Interface

// Classes is the number of digits a classifier chooses between.
const Classes = 10

var (
	// ErrBackendUnavailable covers timeouts, transport failures and non-2xx answers.
	ErrBackendUnavailable = errors.New("classifier: backend unavailable")

	// ErrBackendProtocol means the backend answered with something that isn't a digit.
	ErrBackendProtocol = errors.New("classifier: backend returned a malformed response")

	ErrBadConfig = errors.New("classifier: configuration is invalid")
)

// Interface is a digit classifier. Implementations return a digit in [0, 9].
type Interface interface {
	Classify(ctx context.Context, t *imaging.Tensor) (int, error)
}

type Factory interface {
	Build(ctx context.Context, config json.RawMessage) (Interface, error)
	Valid(config json.RawMessage) error
}

var (
	registry map[string]Factory = map[string]Factory{}
	regLock  sync.RWMutex
)

func Register(name string, impl Factory) {
	regLock.Lock()
	defer regLock.Unlock()

	registry[name] = impl
}

func Get(name string) (Factory, bool) {
	regLock.RLock()
	defer regLock.RUnlock()
	result, ok := registry[name]
	return result, ok
}

func Methods() []string {
	regLock.RLock()
	defer regLock.RUnlock()
	var result []string
	for method := range registry {
		result = append(result, method)
	}
	sort.Strings(result)
	return result
}

// Argmax returns the index of the highest score. Ties go to the lower index.
func Argmax(scores []float64) (int, error) {
	if len(scores) != Classes {
		return 0, fmt.Errorf("%w: wanted %d scores, got %d", ErrBackendProtocol, Classes, len(scores))
	}

	best := 0
	for i, s := range scores {
		if math.IsNaN(s) {
			return 0, fmt.Errorf("%w: score %d is NaN", ErrBackendProtocol, i)
		}
		if s > scores[best] {
			best = i
		}
	}

	return best, nil
}

// DigitFromPredictions reads the predictions field of a model server
// response. It accepts a batch of score vectors ([[s0..s9]]) or a batch of
// digits ([d]) and uses the first element of the batch.
func DigitFromPredictions(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: no predictions", ErrBackendProtocol)
	}

	var scores [][]float64
	if err := json.Unmarshal(raw, &scores); err == nil {
		if len(scores) == 0 {
			return 0, fmt.Errorf("%w: empty prediction batch", ErrBackendProtocol)
		}
		return Argmax(scores[0])
	}

	var digits []float64
	if err := json.Unmarshal(raw, &digits); err != nil {
		return 0, fmt.Errorf("%w: predictions are neither scores nor digits: %w", ErrBackendProtocol, err)
	}

	if len(digits) == 0 {
		return 0, fmt.Errorf("%w: empty prediction batch", ErrBackendProtocol)
	}

	d := digits[0]
	if d != math.Trunc(d) {
		return 0, fmt.Errorf("%w: prediction %v is not an integer", ErrBackendProtocol, d)
	}

	return CheckDigit(int(d))
}

// CheckDigit rejects answers outside [0, 9].
func CheckDigit(d int) (int, error) {
	if d < 0 || d >= Classes {
		return 0, fmt.Errorf("%w: digit %d out of range", ErrBackendProtocol, d)
	}
	return d, nil
}

// Gateway wraps a backend with a timeout, result checks and metrics.
type Gateway struct {
	name    string
	impl    Interface
	timeout time.Duration
}

// NewGateway wraps impl. A zero timeout leaves the caller's deadline alone.
func NewGateway(name string, impl Interface, timeout time.Duration) *Gateway {
	return &Gateway{
		name:    name,
		impl:    impl,
		timeout: timeout,
	}
}

func (g *Gateway) Name() string {
	return g.name
}

// Close releases the backend if it holds a connection.
func (g *Gateway) Close() error {
	if c, ok := g.impl.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (g *Gateway) Classify(ctx context.Context, t *imaging.Tensor) (int, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	digit, err := g.impl.Classify(ctx, t)
	classificationDuration.WithLabelValues(g.name).Observe(time.Since(start).Seconds())

	if err == nil {
		digit, err = CheckDigit(digit)
	}

	if err != nil {
		err = categorize(ctx, err)
		classificationErrors.WithLabelValues(g.name, errorKind(err)).Inc()
		return 0, err
	}

	return digit, nil
}

// categorize reports a blown deadline as unavailable even when the backend
// tagged the failure as a protocol error.
func categorize(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		if errors.Is(err, ErrBackendUnavailable) {
			return err
		}
		return fmt.Errorf("%w: timed out: %v", ErrBackendUnavailable, err)
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, ErrBackendProtocol):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: timed out: %w", ErrBackendUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
}

func errorKind(err error) string {
	if errors.Is(err, ErrBackendProtocol) {
		return "protocol"
	}
	return "unavailable"
}

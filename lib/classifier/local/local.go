// Package local runs a small fully connected network in process.
//
// Weights are read from a JSON file exported from the training pipeline:
//
//	{"layers": [{"weights": [[...], ...], "bias": [...], "activation": "relu"}, ...]}
//
// weights is laid out [out][in]. The first layer takes the 784 normalized
// pixels and the last layer produces 10 scores.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/inkwell-labs/scribble/lib/classifier"
	"github.com/inkwell-labs/scribble/lib/imaging"
)

var (
	ErrNoLayers      = errors.New("local: weights file has no layers")
	ErrShapeMismatch = errors.New("local: layer shapes don't line up")
	ErrActivation    = errors.New("local: unknown activation")
)

const inputSize = imaging.Side * imaging.Side

type Layer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation,omitempty"`
}

type Model struct {
	Layers []Layer `json:"layers"`
}

// Load reads and validates a weights file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read weights %s: %w", path, err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("can't parse weights %s: %w", path, err)
	}

	if err := m.Valid(); err != nil {
		return nil, fmt.Errorf("weights %s: %w", path, err)
	}

	return &m, nil
}

func (m *Model) Valid() error {
	if len(m.Layers) == 0 {
		return ErrNoLayers
	}

	in := inputSize
	for i, l := range m.Layers {
		if len(l.Weights) == 0 || len(l.Weights) != len(l.Bias) {
			return fmt.Errorf("%w: layer %d has %d weight rows and %d biases", ErrShapeMismatch, i, len(l.Weights), len(l.Bias))
		}

		for j, row := range l.Weights {
			if len(row) != in {
				return fmt.Errorf("%w: layer %d row %d has %d inputs, want %d", ErrShapeMismatch, i, j, len(row), in)
			}
		}

		switch l.Activation {
		case "", "linear", "relu", "sigmoid", "tanh", "softmax":
		default:
			return fmt.Errorf("%w: layer %d: %q", ErrActivation, i, l.Activation)
		}

		in = len(l.Weights)
	}

	if in != classifier.Classes {
		return fmt.Errorf("%w: network produces %d outputs, want %d", ErrShapeMismatch, in, classifier.Classes)
	}

	return nil
}

// Forward computes the output scores for t.
func (m *Model) Forward(t *imaging.Tensor) []float64 {
	flat := t.Flat()
	x := make([]float64, len(flat))
	for i, v := range flat {
		x[i] = float64(v)
	}

	for _, l := range m.Layers {
		out := make([]float64, len(l.Weights))
		for j, row := range l.Weights {
			sum := l.Bias[j]
			for k, w := range row {
				sum += w * x[k]
			}
			out[j] = sum
		}
		activate(l.Activation, out)
		x = out
	}

	return x
}

func activate(name string, v []float64) {
	switch name {
	case "relu":
		for i := range v {
			v[i] = max(v[i], 0)
		}
	case "sigmoid":
		for i := range v {
			v[i] = 1 / (1 + math.Exp(-v[i]))
		}
	case "tanh":
		for i := range v {
			v[i] = math.Tanh(v[i])
		}
	case "softmax":
		peak := v[0]
		for _, x := range v {
			peak = max(peak, x)
		}
		var sum float64
		for i := range v {
			v[i] = math.Exp(v[i] - peak)
			sum += v[i]
		}
		for i := range v {
			v[i] /= sum
		}
	}
}

func (m *Model) Classify(ctx context.Context, t *imaging.Tensor) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return classifier.Argmax(m.Forward(t))
}

package local

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/inkwell-labs/scribble/lib/classifier"
	"github.com/inkwell-labs/scribble/lib/imaging"
)

func zeros(rows, cols int) [][]float64 {
	result := make([][]float64, rows)
	for i := range result {
		result[i] = make([]float64, cols)
	}
	return result
}

func writeModel(t *testing.T, m Model) string {
	t.Helper()

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "weights.json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestBiasOnly(t *testing.T) {
	bias := make([]float64, 10)
	bias[3] = 1

	path := writeModel(t, Model{Layers: []Layer{{Weights: zeros(10, 784), Bias: bias, Activation: "softmax"}}})

	cl, err := Factory{}.Build(t.Context(), json.RawMessage(`{"path":"`+path+`"}`))
	if err != nil {
		t.Fatal(err)
	}

	got, err := cl.Classify(t.Context(), &imaging.Tensor{})
	if err != nil {
		t.Fatal(err)
	}

	if got != 3 {
		t.Errorf("digit = %d, want 3", got)
	}
}

func TestHiddenLayer(t *testing.T) {
	// one hidden unit watches the top-left pixel, digit 8 follows it
	hidden := zeros(4, 784)
	hidden[0][0] = 1
	out := zeros(10, 4)
	out[8][0] = 1

	m := Model{Layers: []Layer{
		{Weights: hidden, Bias: make([]float64, 4), Activation: "relu"},
		{Weights: out, Bias: []float64{0.5, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
	}}
	if err := m.Valid(); err != nil {
		t.Fatal(err)
	}

	var dark, bright imaging.Tensor
	dark[0][0][0][0] = -0.42
	bright[0][0][0][0] = 2.8

	for _, tt := range []struct {
		name   string
		tensor *imaging.Tensor
		want   int
	}{
		{name: "relu clips, bias wins", tensor: &dark, want: 0},
		{name: "pixel drives digit", tensor: &bright, want: 8},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Classify(t.Context(), tt.tensor)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("digit = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValid(t *testing.T) {
	for _, tt := range []struct {
		name string
		m    Model
		err  error
	}{
		{name: "empty", m: Model{}, err: ErrNoLayers},
		{name: "wrong input", m: Model{Layers: []Layer{{Weights: zeros(10, 100), Bias: make([]float64, 10)}}}, err: ErrShapeMismatch},
		{name: "wrong output", m: Model{Layers: []Layer{{Weights: zeros(5, 784), Bias: make([]float64, 5)}}}, err: ErrShapeMismatch},
		{name: "bias mismatch", m: Model{Layers: []Layer{{Weights: zeros(10, 784), Bias: make([]float64, 9)}}}, err: ErrShapeMismatch},
		{name: "bad activation", m: Model{Layers: []Layer{{Weights: zeros(10, 784), Bias: make([]float64, 10), Activation: "gelu"}}}, err: ErrActivation},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.m.Valid(); !errors.Is(err, tt.err) {
				t.Errorf("wanted %v, got: %v", tt.err, err)
			}
		})
	}
}

func TestFactoryErrors(t *testing.T) {
	if err := (Factory{}).Valid(json.RawMessage(`{}`)); !errors.Is(err, ErrNoPath) {
		t.Errorf("wanted ErrNoPath, got: %v", err)
	}

	_, err := Factory{}.Build(t.Context(), json.RawMessage(`{"path":"/does/not/exist.json"}`))
	if !errors.Is(err, classifier.ErrBadConfig) {
		t.Errorf("wanted ErrBadConfig, got: %v", err)
	}
}

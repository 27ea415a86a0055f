// Package linear provides an inference-only logistic model for scoring
// feature batches. Training happens in an external toolchain; this package
// only loads coefficients and predicts.
package linear

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// Model is a logistic classifier: p = sigmoid(w·x + b).
type Model struct {
	weights []float64
	bias    float64
}

// New creates a model from trained coefficients.
func New(weights []float64, bias float64) (*Model, error) {
	if len(weights) == 0 {
		return nil, errors.New("linear: model needs at least one weight")
	}
	w := make([]float64, len(weights))
	copy(w, weights)
	return &Model{weights: w, bias: bias}, nil
}

// Features returns the number of features the model expects.
func (m *Model) Features() int { return len(m.weights) }

// PredictProba returns the positive-class probability for each row of batch.
func (m *Model) PredictProba(batch [][]float64) ([]float64, error) {
	probs := make([]float64, len(batch))
	for i, row := range batch {
		if len(row) != len(m.weights) {
			return nil, fmt.Errorf("linear: instance %d has %d features, model expects %d",
				i, len(row), len(m.weights))
		}
		z := m.bias
		for j, w := range m.weights {
			z += w * row[j]
		}
		probs[i] = sigmoid(z)
	}
	return probs, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

type coefficients struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// Save serializes the model coefficients to JSON.
func (m *Model) Save() ([]byte, error) {
	return json.Marshal(coefficients{Weights: m.weights, Bias: m.bias})
}

// Load deserializes a model from JSON coefficients.
func Load(data []byte) (*Model, error) {
	var c coefficients
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("linear: decode coefficients: %w", err)
	}
	return New(c.Weights, c.Bias)
}

// LoadFile reads model coefficients from a JSON file.
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("linear: read model: %w", err)
	}
	return Load(data)
}

// Package drift provides the shared contracts for label-free drift detection:
// the classifier capability, the drift report shape, and the error taxonomy.
package drift

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Classifier is the single capability a detector needs from the model under
// watch: score a batch and return, per instance, the probability of the
// positive class in [0, 1]. The detector never mutates or retrains it.
type Classifier interface {
	// PredictProba returns one probability per row of batch, in order.
	PredictProba(batch [][]float64) ([]float64, error)
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(batch [][]float64) ([]float64, error)

// PredictProba calls f.
func (f ClassifierFunc) PredictProba(batch [][]float64) ([]float64, error) {
	return f(batch)
}

// State describes a detector's calibration capability.
type State int

const (
	// StateUncalibrated means no density range is set: the detector can
	// score batches but Predict cannot assess drift.
	StateUncalibrated State = iota
	// StateCalibrated means a density range is set and Predict renders
	// drift verdicts against it.
	StateCalibrated
)

// String returns the state name.
func (s State) String() string {
	if s == StateCalibrated {
		return "calibrated"
	}
	return "uncalibrated"
}

// Direction indicates which side of the acceptable range a margin density
// violated.
type Direction string

const (
	DirectionBelow Direction = "below"
	DirectionAbove Direction = "above"
)

// Range is the acceptable band for margin density. It marshals to a
// two-element JSON array [low, high].
type Range struct {
	Low  float64
	High float64
}

// Contains reports whether v falls inside the range, bounds included.
func (r Range) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// MarshalJSON encodes the range as [low, high].
func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{r.Low, r.High})
}

// UnmarshalJSON decodes a [low, high] array.
func (r *Range) UnmarshalJSON(data []byte) error {
	var bounds [2]float64
	if err := json.Unmarshal(data, &bounds); err != nil {
		return fmt.Errorf("density range must be a [low, high] array: %w", err)
	}
	r.Low, r.High = bounds[0], bounds[1]
	return nil
}

// Result is a drift report. Meta carries the detector's caller-supplied
// metadata; Data carries the verdict fields.
type Result struct {
	Meta map[string]any `json:"meta"`
	Data ResultData     `json:"data"`
}

// ResultData holds the verdict fields of a drift report.
type ResultData struct {
	// IsDrift is 1 when the margin density violates the density range,
	// 0 otherwise. An uncalibrated detector always reports 0, which is a
	// non-assertion, not a claim of "no drift".
	IsDrift int `json:"is_drift"`
	// Margin is the detector's configured margin half-width.
	Margin float64 `json:"margin"`
	// MarginDensity is the fraction of the batch inside the margin.
	MarginDensity float64 `json:"margin_density"`
	// DensityRange is the acceptable band, nil when uncalibrated.
	DensityRange *Range `json:"density_range"`
	// Direction is the side the range was violated on, nil when the
	// density is in range or no range is set.
	Direction *Direction `json:"direction"`
}

// ErrEmptyBatch is returned when a zero-instance batch is scored. Margin
// density is undefined for an empty batch; this is a caller bug, never a
// drift signal.
var ErrEmptyBatch = errors.New("drift: empty batch")

// ConfigError reports an invalid detector parameter at construction or load.
type ConfigError struct {
	Param  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("drift: invalid %s: %s", e.Param, e.Reason)
}

// ClassifierError wraps a failure or malformed output from the external
// classifier.
type ClassifierError struct {
	Err error
}

// Error implements the error interface.
func (e *ClassifierError) Error() string {
	return fmt.Sprintf("drift: classifier: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *ClassifierError) Unwrap() error { return e.Err }

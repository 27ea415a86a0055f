// Package margindensity implements the margin density drift detector: it
// flags distributional change in a stream by watching the fraction of
// predictions a binary classifier places near its decision boundary, without
// ground-truth labels.
package margindensity

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marginwatch/driftmd/pkg/drift"
)

// Detector scores batches for margin density and compares the score against
// a calibrated acceptable range. Score and Predict are pure and safe for
// concurrent use; only metadata is mutable.
type Detector struct {
	classifier drift.Classifier
	margin     float64
	rng        *drift.Range

	mu   sync.RWMutex
	meta map[string]any
}

// Option configures a Detector.
type Option func(*settings)

type settings struct {
	rng    *drift.Range
	meta   map[string]any
	logger zerolog.Logger
}

// WithDensityRange sets the acceptable margin density band [low, high].
// Margin densities outside it are reported as drift.
func WithDensityRange(low, high float64) Option {
	return func(s *settings) {
		s.rng = &drift.Range{Low: low, High: high}
	}
}

// WithMetadata sets free-form descriptive tags carried into every report.
// The tags are opaque to the scoring logic.
func WithMetadata(meta map[string]any) Option {
	return func(s *settings) {
		s.meta = meta
	}
}

// WithLogger sets the logger used for the uncalibrated-constructor warning.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// New creates a detector around an externally owned classifier. margin is
// the half-width of the band around probability 0.5 that counts as
// "in-margin" and must lie in (0, 0.5]. Without WithDensityRange the
// detector is uncalibrated: it can still score batches, but Predict cannot
// assess drift and a warning is logged.
func New(classifier drift.Classifier, margin float64, opts ...Option) (*Detector, error) {
	if classifier == nil {
		return nil, &drift.ConfigError{Param: "classifier", Reason: "must not be nil"}
	}
	if math.IsNaN(margin) || math.IsInf(margin, 0) {
		return nil, &drift.ConfigError{Param: "margin", Reason: "must be a finite number"}
	}
	if margin <= 0 || margin > 0.5 {
		return nil, &drift.ConfigError{
			Param:  "margin",
			Reason: fmt.Sprintf("must be in (0, 0.5], got %v", margin),
		}
	}

	s := settings{logger: log.Logger}
	for _, opt := range opts {
		opt(&s)
	}

	if s.rng != nil {
		if err := validateRange(*s.rng); err != nil {
			return nil, err
		}
	} else {
		s.logger.Warn().Msg("density_range not set; predict cannot assess drift")
	}

	meta := make(map[string]any, len(s.meta))
	for k, v := range s.meta {
		meta[k] = v
	}

	return &Detector{
		classifier: classifier,
		margin:     margin,
		rng:        s.rng,
		meta:       meta,
	}, nil
}

func validateRange(r drift.Range) error {
	for _, bound := range []struct {
		name string
		v    float64
	}{{"low", r.Low}, {"high", r.High}} {
		if math.IsNaN(bound.v) || bound.v < 0 || bound.v > 1 {
			return &drift.ConfigError{
				Param:  "density_range",
				Reason: fmt.Sprintf("%s bound must be in [0, 1], got %v", bound.name, bound.v),
			}
		}
	}
	if r.Low > r.High {
		return &drift.ConfigError{
			Param:  "density_range",
			Reason: fmt.Sprintf("low %v exceeds high %v", r.Low, r.High),
		}
	}
	return nil
}

// Margin returns the configured margin half-width.
func (d *Detector) Margin() float64 { return d.margin }

// DensityRange returns the acceptable band and whether one is set.
func (d *Detector) DensityRange() (drift.Range, bool) {
	if d.rng == nil {
		return drift.Range{}, false
	}
	return *d.rng, true
}

// State reports whether the detector is calibrated.
func (d *Detector) State() drift.State {
	if d.rng == nil {
		return drift.StateUncalibrated
	}
	return drift.StateCalibrated
}

// Metadata returns a copy of the detector's descriptive tags.
func (d *Detector) Metadata() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copyMeta(d.meta)
}

// SetMeta sets one descriptive tag. Metadata is the only mutable part of a
// detector; margin and density range are fixed at construction.
func (d *Detector) SetMeta(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.meta[key] = value
}

// Score computes the margin density of batch: the fraction of instances
// whose positive-class probability p satisfies 0 < |p - 0.5| < margin.
// Instances exactly at margin distance or exactly at the decision threshold
// are not in-margin. Returns drift.ErrEmptyBatch for an empty batch and a
// drift.ClassifierError when the classifier fails or returns malformed
// output.
func (d *Detector) Score(batch [][]float64) (float64, error) {
	if len(batch) == 0 {
		return 0, drift.ErrEmptyBatch
	}

	probs, err := d.classifier.PredictProba(batch)
	if err != nil {
		return 0, &drift.ClassifierError{Err: err}
	}
	if len(probs) != len(batch) {
		return 0, &drift.ClassifierError{
			Err: fmt.Errorf("got %d probabilities for %d instances", len(probs), len(batch)),
		}
	}

	inMargin := 0
	for i, p := range probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return 0, &drift.ClassifierError{
				Err: fmt.Errorf("probability %v at index %d outside [0, 1]", p, i),
			}
		}
		if dist := math.Abs(p - 0.5); dist > 0 && dist < d.margin {
			inMargin++
		}
	}

	return float64(inMargin) / float64(len(batch)), nil
}

// Predict scores batch and renders a drift verdict against the density
// range. Densities equal to either bound are in range. When the detector is
// uncalibrated the report carries is_drift = 0 and a nil direction; that is
// an explicit non-assertion, not a claim that no drift occurred.
func (d *Detector) Predict(batch [][]float64) (drift.Result, error) {
	density, err := d.Score(batch)
	if err != nil {
		return drift.Result{}, err
	}

	data := drift.ResultData{
		Margin:        d.margin,
		MarginDensity: density,
	}
	if d.rng != nil {
		rng := *d.rng
		data.DensityRange = &rng
		switch {
		case density < d.rng.Low:
			dir := drift.DirectionBelow
			data.Direction = &dir
			data.IsDrift = 1
		case density > d.rng.High:
			dir := drift.DirectionAbove
			data.Direction = &dir
			data.IsDrift = 1
		}
	}

	return drift.Result{Meta: d.Metadata(), Data: data}, nil
}

// state is the detector's persistable configuration. The classifier is
// persisted by its own serialization collaborator and reattached on load.
type state struct {
	Margin       float64        `json:"margin"`
	DensityRange *drift.Range   `json:"density_range"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Save serializes the detector's configuration: margin, density range and
// metadata. The classifier is not included.
func (d *Detector) Save() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return json.Marshal(state{
		Margin:       d.margin,
		DensityRange: d.rng,
		Metadata:     d.meta,
	})
}

// Load reconstructs a detector from configuration bytes produced by Save,
// reattaching the caller's classifier. The constructor's validation rules
// apply, so a detector that could not be built directly cannot be loaded.
func Load(data []byte, classifier drift.Classifier, opts ...Option) (*Detector, error) {
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode detector state: %w", err)
	}

	restored := make([]Option, 0, len(opts)+2)
	if st.DensityRange != nil {
		restored = append(restored, WithDensityRange(st.DensityRange.Low, st.DensityRange.High))
	}
	if st.Metadata != nil {
		restored = append(restored, WithMetadata(st.Metadata))
	}
	restored = append(restored, opts...)

	return New(classifier, st.Margin, restored...)
}

// SaveFile writes the detector's configuration to path.
func (d *Detector) SaveFile(path string) error {
	data, err := d.Save()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write detector state: %w", err)
	}
	return nil
}

// LoadFile reconstructs a detector from a file written by SaveFile.
func LoadFile(path string, classifier drift.Classifier, opts ...Option) (*Detector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read detector state: %w", err)
	}
	return Load(data, classifier, opts...)
}

func copyMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

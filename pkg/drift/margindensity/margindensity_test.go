package margindensity

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marginwatch/driftmd/pkg/drift"
)

// probClassifier treats each single-column row as the probability itself.
var probClassifier = drift.ClassifierFunc(func(batch [][]float64) ([]float64, error) {
	probs := make([]float64, len(batch))
	for i, row := range batch {
		probs[i] = row[0]
	}
	return probs, nil
})

func rows(probs ...float64) [][]float64 {
	batch := make([][]float64, len(probs))
	for i, p := range probs {
		batch[i] = []float64{p}
	}
	return batch
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		margin    float64
		opts      []Option
		wantErr   bool
		wantParam string
	}{
		{
			name:   "valid margin only",
			margin: 0.1,
		},
		{
			name:   "margin at upper bound",
			margin: 0.5,
		},
		{
			name:   "valid with range",
			margin: 0.1,
			opts:   []Option{WithDensityRange(0.063, 0.114)},
		},
		{
			name:      "zero margin",
			margin:    0,
			wantErr:   true,
			wantParam: "margin",
		},
		{
			name:      "negative margin",
			margin:    -0.1,
			wantErr:   true,
			wantParam: "margin",
		},
		{
			name:      "margin above half",
			margin:    0.6,
			wantErr:   true,
			wantParam: "margin",
		},
		{
			name:      "NaN margin",
			margin:    math.NaN(),
			wantErr:   true,
			wantParam: "margin",
		},
		{
			name:      "infinite margin",
			margin:    math.Inf(1),
			wantErr:   true,
			wantParam: "margin",
		},
		{
			name:      "inverted range",
			margin:    0.1,
			opts:      []Option{WithDensityRange(0.5, 0.2)},
			wantErr:   true,
			wantParam: "density_range",
		},
		{
			name:      "range bound below zero",
			margin:    0.1,
			opts:      []Option{WithDensityRange(-0.1, 0.2)},
			wantErr:   true,
			wantParam: "density_range",
		},
		{
			name:      "range bound above one",
			margin:    0.1,
			opts:      []Option{WithDensityRange(0.2, 1.5)},
			wantErr:   true,
			wantParam: "density_range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithLogger(zerolog.Nop())}, tt.opts...)
			d, err := New(probClassifier, tt.margin, opts...)

			if tt.wantErr {
				require.Error(t, err)
				var cfgErr *drift.ConfigError
				require.ErrorAs(t, err, &cfgErr)
				assert.Equal(t, tt.wantParam, cfgErr.Param)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.margin, d.Margin())
		})
	}
}

func TestNewNilClassifier(t *testing.T) {
	_, err := New(nil, 0.1)
	var cfgErr *drift.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "classifier", cfgErr.Param)
}

func TestState(t *testing.T) {
	uncal, err := New(probClassifier, 0.1, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	assert.Equal(t, drift.StateUncalibrated, uncal.State())
	_, ok := uncal.DensityRange()
	assert.False(t, ok)

	cal, err := New(probClassifier, 0.1, WithDensityRange(0.1, 0.3))
	require.NoError(t, err)
	assert.Equal(t, drift.StateCalibrated, cal.State())
	rng, ok := cal.DensityRange()
	require.True(t, ok)
	assert.Equal(t, drift.Range{Low: 0.1, High: 0.3}, rng)
}

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		margin float64
		probs  []float64
		want   float64
	}{
		{
			name:   "reference batch",
			margin: 0.1,
			probs:  []float64{0.52, 0.48, 0.9, 0.1, 0.5},
			want:   0.4,
		},
		{
			name:   "no instances in margin",
			margin: 0.05,
			probs:  []float64{0.9, 0.1, 0.8},
			want:   0,
		},
		{
			name:   "all instances in margin",
			margin: 0.5,
			probs:  []float64{0.3, 0.45, 0.7},
			want:   1,
		},
		{
			// 0.25 and 0.75 are exactly representable, so the strict
			// comparison really sees dist == margin here.
			name:   "exactly at margin distance is not in-margin",
			margin: 0.25,
			probs:  []float64{0.75, 0.25},
			want:   0,
		},
		{
			name:   "just inside margin distance",
			margin: 0.1,
			probs:  []float64{0.59, 0.41},
			want:   1,
		},
		{
			name:   "exactly at decision threshold is not in-margin",
			margin: 0.1,
			probs:  []float64{0.5, 0.52},
			want:   0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(probClassifier, tt.margin, WithLogger(zerolog.Nop()))
			require.NoError(t, err)

			got, err := d.Score(rows(tt.probs...))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)

			// Idempotent for a fixed batch and classifier.
			again, err := d.Score(rows(tt.probs...))
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestScoreEmptyBatch(t *testing.T) {
	d, err := New(probClassifier, 0.1, WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	_, err = d.Score(nil)
	assert.ErrorIs(t, err, drift.ErrEmptyBatch)

	_, err = d.Score([][]float64{})
	assert.ErrorIs(t, err, drift.ErrEmptyBatch)
}

func TestScoreClassifierErrors(t *testing.T) {
	tests := []struct {
		name       string
		classifier drift.Classifier
	}{
		{
			name: "classifier failure",
			classifier: drift.ClassifierFunc(func([][]float64) ([]float64, error) {
				return nil, errors.New("model unavailable")
			}),
		},
		{
			name: "wrong output length",
			classifier: drift.ClassifierFunc(func(batch [][]float64) ([]float64, error) {
				return make([]float64, len(batch)+1), nil
			}),
		},
		{
			name: "probability above one",
			classifier: drift.ClassifierFunc(func(batch [][]float64) ([]float64, error) {
				return []float64{1.5}, nil
			}),
		},
		{
			name: "negative probability",
			classifier: drift.ClassifierFunc(func(batch [][]float64) ([]float64, error) {
				return []float64{-0.2}, nil
			}),
		},
		{
			name: "NaN probability",
			classifier: drift.ClassifierFunc(func(batch [][]float64) ([]float64, error) {
				return []float64{math.NaN()}, nil
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.classifier, 0.1, WithLogger(zerolog.Nop()))
			require.NoError(t, err)

			_, err = d.Score([][]float64{{1}})
			var clfErr *drift.ClassifierError
			assert.ErrorAs(t, err, &clfErr)
		})
	}
}

func TestPredict(t *testing.T) {
	tests := []struct {
		name          string
		probs         []float64
		wantDensity   float64
		wantDrift     int
		wantDirection *drift.Direction
	}{
		{
			// 2 of 23 instances in margin: 0.0869... sits inside (0.063, 0.114).
			name:          "density within range",
			probs:         append([]float64{0.51, 0.49}, repeat(0.9, 21)...),
			wantDensity:   2.0 / 23.0,
			wantDrift:     0,
			wantDirection: nil,
		},
		{
			name:          "density below range",
			probs:         append([]float64{0.51}, repeat(0.9, 82)...),
			wantDensity:   1.0 / 83.0, // 0.01204..., below 0.063
			wantDrift:     1,
			wantDirection: directionPtr(drift.DirectionBelow),
		},
		{
			name:          "density above range",
			probs:         []float64{0.51, 0.49, 0.9, 0.9},
			wantDensity:   0.5,
			wantDrift:     1,
			wantDirection: directionPtr(drift.DirectionAbove),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(probClassifier, 0.1,
				WithDensityRange(0.063, 0.114),
				WithMetadata(map[string]any{"data_type": "batch"}),
			)
			require.NoError(t, err)

			res, err := d.Predict(rows(tt.probs...))
			require.NoError(t, err)

			assert.Equal(t, tt.wantDrift, res.Data.IsDrift)
			assert.InDelta(t, tt.wantDensity, res.Data.MarginDensity, 1e-12)
			assert.Equal(t, 0.1, res.Data.Margin)
			require.NotNil(t, res.Data.DensityRange)
			assert.Equal(t, drift.Range{Low: 0.063, High: 0.114}, *res.Data.DensityRange)
			assert.Equal(t, tt.wantDirection, res.Data.Direction)
			assert.Equal(t, "batch", res.Meta["data_type"])
		})
	}
}

func TestPredictBoundariesInclusive(t *testing.T) {
	// Densities exactly at either bound are in range.
	tests := []struct {
		name  string
		low   float64
		high  float64
		probs []float64
	}{
		{
			name: "density equals low bound",
			low:  0.25, high: 0.75,
			probs: []float64{0.51, 0.9, 0.9, 0.9},
		},
		{
			name: "density equals high bound",
			low:  0.25, high: 0.75,
			probs: []float64{0.51, 0.49, 0.52, 0.9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(probClassifier, 0.1, WithDensityRange(tt.low, tt.high))
			require.NoError(t, err)

			res, err := d.Predict(rows(tt.probs...))
			require.NoError(t, err)
			assert.Equal(t, 0, res.Data.IsDrift)
			assert.Nil(t, res.Data.Direction)
		})
	}
}

func TestPredictUncalibrated(t *testing.T) {
	d, err := New(probClassifier, 0.1,
		WithMetadata(map[string]any{"source": "stream"}),
		WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)

	res, err := d.Predict(rows(0.51, 0.49, 0.9))
	require.NoError(t, err)

	assert.Equal(t, 0, res.Data.IsDrift)
	assert.Nil(t, res.Data.Direction)
	assert.Nil(t, res.Data.DensityRange)
	assert.InDelta(t, 2.0/3.0, res.Data.MarginDensity, 1e-12)
	assert.Equal(t, "stream", res.Meta["source"])
}

func TestPredictPropagatesScoreErrors(t *testing.T) {
	d, err := New(probClassifier, 0.1, WithDensityRange(0.1, 0.3))
	require.NoError(t, err)

	_, err = d.Predict(nil)
	assert.ErrorIs(t, err, drift.ErrEmptyBatch)
}

func TestSaveLoad(t *testing.T) {
	original, err := New(probClassifier, 0.15,
		WithDensityRange(0.063, 0.114),
		WithMetadata(map[string]any{"data_type": "tabular", "pipeline": "checkout"}),
	)
	require.NoError(t, err)

	data, err := original.Save()
	require.NoError(t, err)

	loaded, err := Load(data, probClassifier)
	require.NoError(t, err)

	assert.Equal(t, original.Margin(), loaded.Margin())
	origRange, _ := original.DensityRange()
	loadedRange, ok := loaded.DensityRange()
	require.True(t, ok)
	assert.Equal(t, origRange, loadedRange)
	assert.Equal(t, original.Metadata(), loaded.Metadata())
	assert.Equal(t, drift.StateCalibrated, loaded.State())
}

func TestSaveLoadUncalibrated(t *testing.T) {
	original, err := New(probClassifier, 0.2, WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	data, err := original.Save()
	require.NoError(t, err)

	loaded, err := Load(data, probClassifier, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	assert.Equal(t, drift.StateUncalibrated, loaded.State())
}

func TestLoadRejectsInvalidState(t *testing.T) {
	_, err := Load([]byte(`{"margin": 0.7}`), probClassifier)
	var cfgErr *drift.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "margin", cfgErr.Param)

	_, err = Load([]byte(`{"margin": 0.1, "density_range": [0.9, 0.1]}`), probClassifier)
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "density_range", cfgErr.Param)
}

func TestSaveLoadFile(t *testing.T) {
	path := t.TempDir() + "/detector.json"

	original, err := New(probClassifier, 0.1, WithDensityRange(0.2, 0.4))
	require.NoError(t, err)
	require.NoError(t, original.SaveFile(path))

	loaded, err := LoadFile(path, probClassifier)
	require.NoError(t, err)
	assert.Equal(t, original.Margin(), loaded.Margin())
}

func TestSetMeta(t *testing.T) {
	d, err := New(probClassifier, 0.1, WithDensityRange(0, 1))
	require.NoError(t, err)

	d.SetMeta("data_type", "image")
	res, err := d.Predict(rows(0.5))
	require.NoError(t, err)
	assert.Equal(t, "image", res.Meta["data_type"])

	// Mutating a returned copy does not touch detector state.
	res.Meta["data_type"] = "other"
	assert.Equal(t, "image", d.Metadata()["data_type"])
}

func repeat(p float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = p
	}
	return out
}

func directionPtr(d drift.Direction) *drift.Direction { return &d }

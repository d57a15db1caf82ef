// Package ml trains, evaluates, persists and serves the catch-count
// regression models. Two model families are available behind the Regressor
// interface; the Manager owns the active model and its artifacts on disk.
//
// When no artifact can be loaded the Manager falls back to a small forest
// trained on embedded reference samples and reports itself as degraded.
package ml

import (
	"errors"
	"fmt"
)

var (
	// ErrNotTrained is returned when predicting before a model is fitted or loaded.
	ErrNotTrained = errors.New("model not trained")
	// ErrSchemaMismatch is returned when input columns do not match the model schema.
	ErrSchemaMismatch = errors.New("feature schema mismatch")
	// ErrNoArtifacts is returned when no persisted model of the active kind exists.
	ErrNoArtifacts = errors.New("no model artifacts")
)

// Regressor is a trainable numeric predictor.
type Regressor interface {
	// Kind identifies the model family.
	Kind() Kind

	// Fit trains on rows x with targets y, replacing any previous state.
	Fit(x [][]float64, y []float64) error

	// Predict returns one raw prediction per row. Outputs are not clipped.
	Predict(x [][]float64) ([]float64, error)
}

// ModelLoadError wraps any failure to read or validate a persisted artifact.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load model: %v", e.Err)
	}
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

func checkTrainingData(x [][]float64, y []float64) (int, error) {
	if len(x) == 0 {
		return 0, fmt.Errorf("empty training set")
	}
	if len(x) != len(y) {
		return 0, fmt.Errorf("feature rows (%d) and targets (%d) differ", len(x), len(y))
	}
	width := len(x[0])
	if width == 0 {
		return 0, fmt.Errorf("training rows have no features")
	}
	if err := checkWidth(x, width); err != nil {
		return 0, err
	}
	return width, nil
}

func checkWidth(x [][]float64, width int) error {
	for i, row := range x {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrSchemaMismatch, i, len(row), width)
		}
	}
	return nil
}

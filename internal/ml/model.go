// Package ml turns preprocessed wallet features into risk predictions. It
// holds the classifier contract and its boosted-tree implementation, paired
// artifact persistence, the inference and training pipelines, holdout
// evaluation, the HTTP serving boundary and the training run registry.
package ml

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrArtifactMismatch marks a model and preprocessor that were not
	// produced by the same training run.
	ErrArtifactMismatch = errors.New("model and preprocessor artifacts do not match")
	// ErrModelNotTrained is returned when predicting with an empty model.
	ErrModelNotTrained = errors.New("model not trained")
)

// Model is a fitted binary classifier over fixed-width feature vectors.
// Implementations must be safe for concurrent reads.
type Model interface {
	Predict(x [][]float64) ([]int, error)
	PredictProba(x [][]float64) ([]float64, error)
	// FeatureNames is the column order the model was trained on.
	FeatureNames() []string
	// PreprocessorFingerprint identifies the preprocessor that built the
	// training matrix.
	PreprocessorFingerprint() string
	Version() string
}

// PersistentModel is a Model that can write itself as an artifact.
type PersistentModel interface {
	Model
	Save(w io.Writer) error
}

// Trainer fits a Model. eval may be empty, in which case no early stopping
// takes place.
type Trainer interface {
	Fit(ctx context.Context, train, eval Dataset) (Model, error)
}

// Dataset is a labeled feature matrix.
type Dataset struct {
	Names []string
	X     [][]float64
	Y     []int
	// Fingerprint identifies the preprocessor that produced X.
	Fingerprint string
}

// Len returns the number of rows.
func (d Dataset) Len() int { return len(d.X) }

// Validate checks shape and labels.
func (d Dataset) Validate() error {
	if len(d.X) != len(d.Y) {
		return fmt.Errorf("dataset has %d rows but %d labels", len(d.X), len(d.Y))
	}
	for i, row := range d.X {
		if len(row) != len(d.Names) {
			return fmt.Errorf("dataset row %d has %d values, want %d", i, len(row), len(d.Names))
		}
	}
	for i, y := range d.Y {
		if y != 0 && y != 1 {
			return fmt.Errorf("dataset row %d has label %d, want 0 or 1", i, y)
		}
	}
	return nil
}

func checkWidth(x [][]float64, width int) error {
	for i, row := range x {
		if len(row) != width {
			return fmt.Errorf("row %d has %d features, model expects %d", i, len(row), width)
		}
	}
	return nil
}

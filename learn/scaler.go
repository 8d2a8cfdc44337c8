// Package learn implements the trainable models behind the engine: a
// standard-scaling transform, a Gaussian naive Bayes classifier, and an
// isolation forest. All fitted state lives in exported fields so artifacts
// round-trip through encoding/gob unchanged.
package learn

import (
	"errors"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each feature column to zero mean and unit variance.
// Fit once, then Transform any batch; a fitted scaler is never mutated by
// Transform.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

// Fit computes per-column mean and population standard deviation. Columns
// with zero spread get scale 1 so Transform leaves them centered at 0.
func (s *StandardScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return errors.New("scaler: cannot fit on empty matrix")
	}

	width := len(X[0])
	s.Mean = make([]float64, width)
	s.Scale = make([]float64, width)

	col := make([]float64, len(X))
	for j := 0; j < width; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		s.Mean[j] = stat.Mean(col, nil)
		s.Scale[j] = stat.PopStdDev(col, nil)
		if s.Scale[j] == 0 {
			s.Scale[j] = 1
		}
	}

	return nil
}

// Transform returns a new matrix; the input is not modified.
func (s *StandardScaler) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = scaled
	}
	return out
}

// FitTransform fits on X and returns the scaled X.
func (s *StandardScaler) FitTransform(X [][]float64) ([][]float64, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X), nil
}

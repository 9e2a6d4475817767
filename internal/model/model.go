package model

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrEmptyTrainingSet is returned by trainers given no samples.
var ErrEmptyTrainingSet = errors.New("empty training set")

// Predictor scores feature vectors.
type Predictor interface {
	// Kind names the trainer that produced the predictor.
	Kind() string
	Predict(ctx context.Context, xs []FeatureVector) ([]float64, error)
}

// Trainer fits a Predictor to samples.
type Trainer interface {
	Name() string
	Fit(ctx context.Context, xs []FeatureVector, ys []float64) (Predictor, error)
}

func checkSamples(xs []FeatureVector, ys []float64) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("%d feature vectors but %d targets", len(xs), len(ys))
	}
	if len(xs) == 0 {
		return ErrEmptyTrainingSet
	}
	return nil
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// RMSE is the root mean squared error of pred against actual.
func RMSE(actual, pred []float64) float64 {
	if len(actual) == 0 {
		return math.NaN()
	}
	d := residuals(actual, pred)
	return math.Sqrt(floats.Dot(d, d) / float64(len(d)))
}

// MeanError is the mean signed error pred - actual.
func MeanError(actual, pred []float64) float64 {
	if len(actual) == 0 {
		return math.NaN()
	}
	return stat.Mean(residuals(actual, pred), nil)
}

// MAE is the mean absolute error of pred against actual.
func MAE(actual, pred []float64) float64 {
	if len(actual) == 0 {
		return math.NaN()
	}
	return floats.Norm(residuals(actual, pred), 1) / float64(len(actual))
}

// Mean is the arithmetic mean of xs, or NaN when empty.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}

func residuals(actual, pred []float64) []float64 {
	return floats.SubTo(make([]float64, len(actual)), pred, actual)
}

package model

import (
	"context"
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"
)

// Candidate is one trainer's result on the validation set.
type Candidate struct {
	Trainer   string
	RMSE      float64
	Predictor Predictor
	Err       error
}

// Selection is the outcome of Select.
type Selection struct {
	Best       Candidate
	Candidates []Candidate
}

// DefaultTrainers returns the built-in trainers in evaluation order.
func DefaultTrainers() []Trainer {
	return []Trainer{GroupMean{}, Ridge{}}
}

// Select fits every trainer on the training samples, scores each on the
// validation samples by RMSE and returns the lowest. Ties go to the
// earlier trainer. A failing trainer is recorded and skipped; Select fails
// only when none succeeds.
func Select(ctx context.Context, trainers []Trainer, trainX []FeatureVector, trainY []float64, valX []FeatureVector, valY []float64) (*Selection, error) {
	if len(valY) == 0 {
		return nil, fmt.Errorf("select: %w (validation)", ErrEmptyTrainingSet)
	}
	sel := &Selection{}
	var errs *multierror.Error
	bestIdx := -1
	for _, t := range trainers {
		c := Candidate{Trainer: t.Name(), RMSE: math.Inf(1)}
		p, err := t.Fit(ctx, trainX, trainY)
		if err == nil {
			var pred []float64
			pred, err = p.Predict(ctx, valX)
			if err == nil {
				c.Predictor = p
				c.RMSE = RMSE(valY, pred)
			}
		}
		if err != nil {
			c.Err = err
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
		sel.Candidates = append(sel.Candidates, c)
		if c.Err == nil && (bestIdx < 0 || c.RMSE < sel.Candidates[bestIdx].RMSE) {
			bestIdx = len(sel.Candidates) - 1
		}
	}
	if bestIdx < 0 {
		if errs == nil {
			return nil, fmt.Errorf("select: no trainers")
		}
		return nil, fmt.Errorf("select: every trainer failed: %w", errs.ErrorOrNil())
	}
	sel.Best = sel.Candidates[bestIdx]
	return sel, nil
}

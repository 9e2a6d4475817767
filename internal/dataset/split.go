package dataset

import (
	"context"
	"fmt"
	"time"

	"milkcast/internal/domain"
	"milkcast/internal/model"
	"milkcast/internal/store"
)

const trainingMonths = 12

// Windows returns the training months (oldest first) and the validation
// month for a training run in reference month (year, month): training
// covers months M-13 through M-2 and validation is M-1.
func Windows(year int, month time.Month) (train []time.Time, validation time.Time) {
	ref := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	for i := trainingMonths + 1; i >= 2; i-- {
		train = append(train, ref.AddDate(0, -i, 0))
	}
	return train, ref.AddDate(0, -1, 0)
}

// Split holds vectorizable training and validation samples.
type Split struct {
	TrainMonths     []time.Time
	ValidationMonth time.Time

	TrainX      []model.FeatureVector
	TrainY      []float64
	ValidationX []model.FeatureVector
	ValidationY []float64
}

// Splitter reads monthly partitions into a Split.
type Splitter struct {
	store *store.PartitionStore
}

// NewSplitter creates a Splitter over the given partition store.
func NewSplitter(ps *store.PartitionStore) *Splitter {
	return &Splitter{store: ps}
}

// Split loads the twelve training months and the validation month for the
// reference month. Unpriced records are dropped. A missing monthly
// partition fails the whole split with *domain.PartitionNotFoundError.
func (s *Splitter) Split(ctx context.Context, year int, month time.Month) (*Split, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("invalid month %d", month)
	}
	train, val := Windows(year, month)
	out := &Split{TrainMonths: train, ValidationMonth: val}

	for _, m := range train {
		xs, ys, err := s.load(ctx, m)
		if err != nil {
			return nil, err
		}
		out.TrainX = append(out.TrainX, xs...)
		out.TrainY = append(out.TrainY, ys...)
	}
	xs, ys, err := s.load(ctx, val)
	if err != nil {
		return nil, err
	}
	out.ValidationX, out.ValidationY = xs, ys
	return out, nil
}

func (s *Splitter) load(ctx context.Context, month time.Time) ([]model.FeatureVector, []float64, error) {
	recs, err := s.store.Read(ctx, domain.Monthly, month)
	if err != nil {
		return nil, nil, err
	}
	var (
		xs []model.FeatureVector
		ys []float64
	)
	for _, r := range recs {
		if r.Price == nil {
			continue
		}
		xs = append(xs, model.CategoricalVector(r))
		ys = append(ys, *r.Price)
	}
	return xs, ys, nil
}

package model

import (
	"context"
	"strings"

	"milkcast/internal/domain"
)

// GroupMean predicts the mean training target of the sample's categorical
// combination, backing off to the global mean for unseen combinations.
type GroupMean struct {
	// Columns are the categorical features forming the group; empty means
	// the entity columns.
	Columns []string
}

// Name implements Trainer.
func (GroupMean) Name() string { return "group-mean" }

// Fit implements Trainer.
func (g GroupMean) Fit(_ context.Context, xs []FeatureVector, ys []float64) (Predictor, error) {
	if err := checkSamples(xs, ys); err != nil {
		return nil, err
	}
	cols := g.Columns
	if len(cols) == 0 {
		cols = domain.GroupColumns
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	var total float64
	for i, x := range xs {
		k := groupOf(x, cols)
		sums[k] += ys[i]
		counts[k]++
		total += ys[i]
	}

	m := &GroupMeanModel{
		Columns: append([]string(nil), cols...),
		Global:  total / float64(len(ys)),
		Means:   make(map[string]float64, len(sums)),
	}
	for k, s := range sums {
		m.Means[k] = s / float64(counts[k])
	}
	return m, nil
}

// GroupMeanModel is the fitted form of GroupMean.
type GroupMeanModel struct {
	Columns []string           `json:"columns"`
	Global  float64            `json:"global"`
	Means   map[string]float64 `json:"means"`
}

// Kind implements Predictor.
func (*GroupMeanModel) Kind() string { return GroupMean{}.Name() }

// Predict implements Predictor.
func (m *GroupMeanModel) Predict(_ context.Context, xs []FeatureVector) ([]float64, error) {
	out := make([]float64, len(xs))
	for i, x := range xs {
		if v, ok := m.Means[groupOf(x, m.Columns)]; ok {
			out[i] = v
			continue
		}
		out[i] = m.Global
	}
	return out, nil
}

func groupOf(x FeatureVector, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = x.Categorical[c]
	}
	return strings.Join(parts, "|")
}

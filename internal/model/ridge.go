package model

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Ridge fits an L2-regularized linear model over the vectorized features.
// Columns are standardized with training statistics and the normal
// equations are solved by Cholesky factorization.
type Ridge struct {
	// Lambda is the penalty weight; zero means 1.
	Lambda float64
}

// Name implements Trainer.
func (Ridge) Name() string { return "ridge" }

// Fit implements Trainer.
func (r Ridge) Fit(ctx context.Context, xs []FeatureVector, ys []float64) (Predictor, error) {
	if err := checkSamples(xs, ys); err != nil {
		return nil, err
	}
	lambda := r.Lambda
	if lambda <= 0 {
		lambda = 1
	}

	m := &RidgeModel{}
	m.Vectorizer.Fit(xs)
	rows := m.Vectorizer.Transform(xs)
	n, p := len(rows), m.Vectorizer.Len()
	m.Intercept = stat.Mean(ys, nil)
	if p == 0 {
		return m, nil
	}

	// Z holds the standardized design matrix.
	Z := mat.NewDense(n, p, nil)
	for i, row := range rows {
		Z.SetRow(i, row)
	}
	m.Center = make([]float64, p)
	m.Scale = make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, Z)
		mu, sd := stat.PopMeanStdDev(col, nil)
		if sd == 0 {
			sd = 1
		}
		m.Center[j], m.Scale[j] = mu, sd
		floats.AddConst(-mu, col)
		floats.Scale(1/sd, col)
		Z.SetCol(j, col)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// (ZᵀZ + λI) w = Zᵀ(y - ȳ)
	var A mat.SymDense
	A.SymOuterK(1, Z.T())
	for j := 0; j < p; j++ {
		A.SetSym(j, j, A.At(j, j)+lambda)
	}
	dy := make([]float64, n)
	for i, y := range ys {
		dy[i] = y - m.Intercept
	}
	var b mat.VecDense
	b.MulVec(Z.T(), mat.NewVecDense(n, dy))

	var chol mat.Cholesky
	if ok := chol.Factorize(&A); !ok {
		return nil, fmt.Errorf("ridge: normal equations not positive definite")
	}
	var w mat.VecDense
	// A Condition error still carries a usable solution.
	if err := chol.SolveVecTo(&w, &b); err != nil && !errors.As(err, new(mat.Condition)) {
		return nil, fmt.Errorf("ridge: %w", err)
	}
	m.Weights = mat.Col(nil, 0, &w)
	return m, nil
}

// RidgeModel is the fitted form of Ridge.
type RidgeModel struct {
	Vectorizer DictVectorizer `json:"vectorizer"`
	Center     []float64      `json:"center"`
	Scale      []float64      `json:"scale"`
	Weights    []float64      `json:"weights"`
	Intercept  float64        `json:"intercept"`
}

// Kind implements Predictor.
func (*RidgeModel) Kind() string { return Ridge{}.Name() }

// Predict implements Predictor.
func (m *RidgeModel) Predict(_ context.Context, xs []FeatureVector) ([]float64, error) {
	if len(m.Weights) != m.Vectorizer.Len() {
		return nil, fmt.Errorf("ridge: %d weights for %d columns", len(m.Weights), m.Vectorizer.Len())
	}
	X := m.Vectorizer.Transform(xs)
	out := make([]float64, len(X))
	for i, row := range X {
		y := m.Intercept
		for j, v := range row {
			y += m.Weights[j] * (v - m.Center[j]) / m.Scale[j]
		}
		out[i] = y
	}
	return out, nil
}

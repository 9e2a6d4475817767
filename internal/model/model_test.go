package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"milkcast/internal/store"
)

func cat(city, channel string) FeatureVector {
	return FeatureVector{Categorical: map[string]string{
		"state": "Jalisco", "city": city, "milk_type": "pasteurized", "channel": channel,
	}}
}

func TestDictVectorizer(t *testing.T) {
	var v DictVectorizer
	v.Fit([]FeatureVector{
		{Categorical: map[string]string{"city": "Colima"}, Numeric: map[string]float64{"price_lag1": 1}},
		{Categorical: map[string]string{"city": "Armería"}},
	})
	want := []string{"city=Armería", "city=Colima", "price_lag1"}
	if len(v.Vocabulary) != len(want) {
		t.Fatalf("Vocabulary = %v, want %v", v.Vocabulary, want)
	}
	for i := range want {
		if v.Vocabulary[i] != want[i] {
			t.Errorf("Vocabulary[%d] = %q, want %q", i, v.Vocabulary[i], want[i])
		}
	}

	rows := v.Transform([]FeatureVector{
		{Categorical: map[string]string{"city": "Colima", "unseen": "x"}, Numeric: map[string]float64{"price_lag1": 27.5}},
	})
	got := rows[0]
	if got[0] != 0 || got[1] != 1 || got[2] != 27.5 {
		t.Errorf("Transform = %v, want [0 1 27.5]", got)
	}

	var decoded DictVectorizer
	if err := json.Unmarshal([]byte(`{"vocabulary":["city=Armería","city=Colima","price_lag1"]}`), &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(decoded.index) != 3 || decoded.index["price_lag1"] != 2 {
		t.Errorf("decoded index = %v, want built from the vocabulary", decoded.index)
	}
}

func TestGroupMean(t *testing.T) {
	ctx := context.Background()
	xs := []FeatureVector{cat("Guadalajara", "store"), cat("Guadalajara", "store"), cat("Zapopan", "store")}
	ys := []float64{20, 22, 30}

	p, err := GroupMean{}.Fit(ctx, xs, ys)
	if err != nil {
		t.Fatal(err)
	}
	pred, err := p.Predict(ctx, []FeatureVector{cat("Guadalajara", "store"), cat("Tepic", "store")})
	if err != nil {
		t.Fatal(err)
	}
	if pred[0] != 21 {
		t.Errorf("group prediction = %v, want 21", pred[0])
	}
	if pred[1] != 24 {
		t.Errorf("unseen group prediction = %v, want global mean 24", pred[1])
	}
}

func TestRidgeFitsLinearSignal(t *testing.T) {
	ctx := context.Background()
	var (
		xs []FeatureVector
		ys []float64
	)
	for i := 0; i < 50; i++ {
		lag := 20 + float64(i)*0.1
		xs = append(xs, FeatureVector{Numeric: map[string]float64{"price_lag1": lag}})
		ys = append(ys, 2*lag+1)
	}
	p, err := Ridge{Lambda: 1e-6}.Fit(ctx, xs, ys)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	pred, err := p.Predict(ctx, []FeatureVector{{Numeric: map[string]float64{"price_lag1": 22}}})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(pred[0]-45) > 1e-3 {
		t.Errorf("prediction = %v, want 45", pred[0])
	}
}

func TestTrainersRejectEmptySets(t *testing.T) {
	for _, tr := range DefaultTrainers() {
		if _, err := tr.Fit(context.Background(), nil, nil); !errors.Is(err, ErrEmptyTrainingSet) {
			t.Errorf("%s.Fit(empty) error = %v", tr.Name(), err)
		}
	}
}

type failingTrainer struct{}

func (failingTrainer) Name() string { return "broken" }
func (failingTrainer) Fit(context.Context, []FeatureVector, []float64) (Predictor, error) {
	return nil, errors.New("boom")
}

func TestSelectPicksLowestRMSE(t *testing.T) {
	ctx := context.Background()
	trainX := []FeatureVector{cat("Guadalajara", "store"), cat("Zapopan", "store")}
	trainY := []float64{20, 30}
	valX := []FeatureVector{cat("Guadalajara", "store"), cat("Zapopan", "store")}
	valY := []float64{20, 30}

	sel, err := Select(ctx, []Trainer{failingTrainer{}, GroupMean{}}, trainX, trainY, valX, valY)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.Best.Trainer != "group-mean" || sel.Best.RMSE != 0 {
		t.Errorf("Best = %+v, want group-mean with RMSE 0", sel.Best)
	}
	if len(sel.Candidates) != 2 || sel.Candidates[0].Err == nil {
		t.Errorf("Candidates = %+v", sel.Candidates)
	}

	if _, err := Select(ctx, []Trainer{failingTrainer{}}, trainX, trainY, valX, valY); err == nil {
		t.Error("Select succeeded with only failing trainers")
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(store.NewLocalBackend(t.TempDir()))

	if _, _, err := reg.Load(ctx); !errors.Is(err, ErrNoPromotedModel) {
		t.Fatalf("Load(empty) error = %v", err)
	}

	xs := []FeatureVector{cat("Guadalajara", "store"), cat("Zapopan", "store")}
	ys := []float64{20, 30}
	for _, tr := range DefaultTrainers() {
		p, err := tr.Fit(ctx, xs, ys)
		if err != nil {
			t.Fatal(err)
		}
		want, _ := p.Predict(ctx, xs)

		if err := reg.Promote(ctx, Metadata{RunID: "r1", ReferenceMonth: "2025-07", RMSE: 0.5}, p); err != nil {
			t.Fatalf("Promote(%s): %v", tr.Name(), err)
		}
		meta, loaded, err := reg.Load(ctx)
		if err != nil {
			t.Fatalf("Load(%s): %v", tr.Name(), err)
		}
		if meta.Trainer != tr.Name() || meta.RunID != "r1" || meta.PromotedAt.IsZero() {
			t.Errorf("metadata = %+v", meta)
		}
		got, err := loaded.Predict(ctx, xs)
		if err != nil {
			t.Fatal(err)
		}
		for i := range want {
			if math.Abs(got[i]-want[i]) > 1e-9 {
				t.Errorf("%s: loaded prediction %d = %v, want %v", tr.Name(), i, got[i], want[i])
			}
		}
	}
}

func TestLoadedRidgePredictsConcurrently(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(store.NewLocalBackend(t.TempDir()))
	xs := []FeatureVector{cat("Guadalajara", "store"), cat("Zapopan", "store"), cat("Tepic", "self-service")}
	p, err := Ridge{}.Fit(ctx, xs, []float64{20, 30, 25})
	if err != nil {
		t.Fatal(err)
	}
	want, _ := p.Predict(ctx, xs)
	if err := reg.Promote(ctx, Metadata{RunID: "r1"}, p); err != nil {
		t.Fatal(err)
	}
	_, loaded, err := reg.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := loaded.Predict(ctx, xs)
			if err != nil {
				errs <- err
				return
			}
			for j := range want {
				if math.Abs(got[j]-want[j]) > 1e-9 {
					errs <- fmt.Errorf("prediction %d = %v, want %v", j, got[j], want[j])
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestInputVectorAndDecode(t *testing.T) {
	ins, err := DecodeInputs([]byte(`{"state":"Jalisco","city":"Guadalajara","milk_type":"pasteurized",
		"channel":"store","day":31,"month":7,"year":2025,"weekday":"3","price_lag1":26.5,"price_mean7":26.1}`))
	if err != nil {
		t.Fatalf("DecodeInputs(object): %v", err)
	}
	if len(ins) != 1 || ins[0].Weekday != 3 {
		t.Fatalf("inputs = %+v", ins)
	}
	v := ins[0].Vector()
	if v.Categorical["weekday"] != "3" || v.Numeric["price_lag1"] != 26.5 || v.Numeric["year"] != 2025 {
		t.Errorf("Vector = %+v", v)
	}

	ins, err = DecodeInputs([]byte(`[{"weekday":0},{"weekday":6}]`))
	if err != nil || len(ins) != 2 {
		t.Fatalf("DecodeInputs(list) = %v, %v", ins, err)
	}
	if _, err := DecodeInputs([]byte(`{"weekday":9}`)); err == nil {
		t.Error("accepted weekday 9")
	}
}

func TestMetrics(t *testing.T) {
	actual := []float64{1, 2, 3}
	pred := []float64{2, 2, 5}
	if got := MeanError(actual, pred); got != 1 {
		t.Errorf("MeanError = %v, want 1", got)
	}
	if got := MAE(actual, pred); got != 1 {
		t.Errorf("MAE = %v, want 1", got)
	}
	if got := RMSE(actual, pred); math.Abs(got-math.Sqrt(5.0/3)) > 1e-12 {
		t.Errorf("RMSE = %v", got)
	}
	if !math.IsNaN(Mean(nil)) {
		t.Error("Mean(nil) is not NaN")
	}
}

// Package model is the training and serving boundary: feature vectors, a
// dictionary vectorizer, the Trainer/Predictor contract, built-in baseline
// trainers, model selection, and the promoted-model registry.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"milkcast/internal/domain"
)

// Feature names shared by training rows and serving requests.
const (
	FeatureWeekday    = "weekday"
	FeatureDay        = "day"
	FeatureMonth      = "month"
	FeatureYear       = "year"
	FeaturePriceLag1  = "price_lag1"
	FeaturePriceMean7 = "price_mean7"
)

// FeatureVector is one sample as named categorical and numeric values.
type FeatureVector struct {
	Categorical map[string]string
	Numeric     map[string]float64
}

// Weekday is 0 for Monday through 6 for Sunday. It decodes from either a
// JSON number or a numeric string.
type Weekday int

// UnmarshalJSON implements json.Unmarshaler.
func (w *Weekday) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 || n > 6 {
		return fmt.Errorf("weekday %s: want 0..6", b)
	}
	*w = Weekday(n)
	return nil
}

// Input is the serving contract for one prediction.
type Input struct {
	State      string  `json:"state"`
	City       string  `json:"city"`
	MilkType   string  `json:"milk_type"`
	Channel    string  `json:"channel"`
	Day        int     `json:"day"`
	Month      int     `json:"month"`
	Year       int     `json:"year"`
	Weekday    Weekday `json:"weekday"`
	PriceLag1  float64 `json:"price_lag1"`
	PriceMean7 float64 `json:"price_mean7"`
}

// Vector converts the input to the feature layout used in training.
func (in Input) Vector() FeatureVector {
	return FeatureVector{
		Categorical: map[string]string{
			domain.ColState:    in.State,
			domain.ColCity:     in.City,
			domain.ColMilkType: in.MilkType,
			domain.ColChannel:  in.Channel,
			FeatureWeekday:     strconv.Itoa(int(in.Weekday)),
		},
		Numeric: map[string]float64{
			FeaturePriceLag1:  in.PriceLag1,
			FeaturePriceMean7: in.PriceMean7,
			FeatureDay:        float64(in.Day),
			FeatureMonth:      float64(in.Month),
			FeatureYear:       float64(in.Year),
		},
	}
}

// DecodeInputs accepts either one JSON object or an array of them.
func DecodeInputs(data []byte) ([]Input, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []Input
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var one Input
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []Input{one}, nil
}

// CategoricalVector builds a vector from a record's entity columns only.
func CategoricalVector(r domain.PriceRecord) FeatureVector {
	return FeatureVector{
		Categorical: map[string]string{
			domain.ColState:    r.State,
			domain.ColCity:     r.City,
			domain.ColMilkType: string(r.MilkType),
			domain.ColChannel:  r.Channel,
		},
	}
}

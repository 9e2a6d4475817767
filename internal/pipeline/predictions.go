package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"milkcast/internal/domain"
	"milkcast/internal/model"
	"milkcast/internal/store"
)

// PredictionsKey is where predictions for target are written.
func PredictionsKey(target time.Time) string {
	d := target.Format(domain.DateLayout)
	return fmt.Sprintf("predictions/%s/predictions_%s.csv", d, d)
}

var predictionHeader = []string{
	"date", "state", "city", "milk_type", "channel",
	"weekday", "price_lag1", "price_mean7", "predicted_price",
}

// WritePredictions stores one CSV row per input and returns the key.
func WritePredictions(ctx context.Context, b store.Backend, target time.Time, inputs []model.Input, preds []float64) (string, error) {
	if len(inputs) != len(preds) {
		return "", fmt.Errorf("%d inputs but %d predictions", len(inputs), len(preds))
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(predictionHeader); err != nil {
		return "", err
	}
	day := target.Format(domain.DateLayout)
	for i, in := range inputs {
		err := w.Write([]string{
			day, in.State, in.City, in.MilkType, in.Channel,
			strconv.Itoa(int(in.Weekday)),
			formatPrice(in.PriceLag1),
			formatPrice(in.PriceMean7),
			formatPrice(preds[i]),
		})
		if err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	key := PredictionsKey(target)
	if err := b.Put(ctx, key, buf.Bytes()); err != nil {
		return "", fmt.Errorf("writing %s: %w", key, err)
	}
	return key, nil
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Writes next-day price predictions with the promoted model.
//
// Usage:
//
//	go run ./cmd/milk-predict [-date 2025-07-30]
//
// Predictions are for the day after -date, from the materialized dataset
// when present, otherwise from a freshly assembled one.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"milkcast/internal/app"
	"milkcast/internal/dataset"
	"milkcast/internal/domain"
	"milkcast/internal/util"
)

func main() {
	dateFlag := flag.String("date", "", "last observed day YYYY-MM-DD (default: yesterday in Mexico City)")
	flag.Parse()

	date, err := util.ParseDay(*dateFlag, util.PreviousDay(time.Now()))
	if err != nil {
		log.Fatalf("invalid -date: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Load(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	ds, err := dataset.ReadDataset(ctx, a.Backend)
	if errors.Is(err, domain.ErrInsufficientData) {
		start, end := dataset.Window(date, a.Config.Pipeline.LookbackDays)
		ds, err = dataset.NewAssembler(a.Partitions, a.Log).Assemble(ctx, start, end, a.Config.Pipeline.GroupCols)
	}
	if err != nil {
		a.Fatalf("loading dataset: %v", err)
	}

	key, n, err := a.Runner().PredictNextDay(ctx, ds, date)
	if err != nil {
		a.Fatalf("predicting: %v", err)
	}
	a.Log.Info("predictions written", "key", key, "rows", n)
}

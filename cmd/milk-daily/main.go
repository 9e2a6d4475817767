// Runs the daily pipeline: availability check, ingestion, data drift,
// dataset rebuild and next-day predictions.
//
// Usage:
//
//	go run ./cmd/milk-daily [-date 2025-07-30]
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"milkcast/internal/app"
	"milkcast/internal/domain"
	"milkcast/internal/util"
)

func main() {
	dateFlag := flag.String("date", "", "report day YYYY-MM-DD (default: yesterday in Mexico City)")
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

	res, err := a.Runner().RunDaily(ctx, date)
	if err != nil {
		a.Fatalf("daily run %s: %v", date.Format(domain.DateLayout), err)
	}
	a.Log.Info("daily run complete",
		"date", date.Format(domain.DateLayout),
		"ingested", res.Ingested,
		"dataset_rows", res.DatasetRows,
		"predictions", res.Predictions,
	)
}

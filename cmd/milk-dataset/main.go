// Assembles the feature dataset from the daily datalake and materializes it.
//
// Usage:
//
//	go run ./cmd/milk-dataset [-date 2025-07-30] [-lookback 548]
package main

import (
	"context"
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
	dateFlag := flag.String("date", "", "last day of the window YYYY-MM-DD (default: yesterday in Mexico City)")
	lookback := flag.Int("lookback", 0, "window length in days (default: pipeline.lookback_days)")
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

	days := *lookback
	if days <= 0 {
		days = a.Config.Pipeline.LookbackDays
	}
	start, end := dataset.Window(date, days)
	ds, err := dataset.NewAssembler(a.Partitions, a.Log).Assemble(ctx, start, end, a.Config.Pipeline.GroupCols)
	if err != nil {
		a.Fatalf("assembling dataset: %v", err)
	}
	if err := dataset.WriteDataset(ctx, a.Backend, ds); err != nil {
		a.Fatalf("writing dataset: %v", err)
	}
	a.Log.Info("dataset written",
		"key", dataset.DatasetKey,
		"start", start.Format(domain.DateLayout),
		"end", end.Format(domain.DateLayout),
		"rows", len(ds.Rows),
	)
}

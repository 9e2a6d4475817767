// Backfills the daily datalake over a date range, skipping days that are
// stored already or were never published.
//
// Usage:
//
//	go run ./cmd/milk-backfill -from 2025-01-01 [-to 2025-07-30]
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"milkcast/internal/app"
	"milkcast/internal/gather"
	"milkcast/internal/util"
)

func main() {
	from := flag.String("from", "", "first day YYYY-MM-DD (required)")
	to := flag.String("to", "", "last day YYYY-MM-DD (default: yesterday in Mexico City)")
	flag.Parse()

	if *from == "" {
		log.Fatal("-from is required")
	}
	start, err := util.ParseDay(*from, time.Time{})
	if err != nil {
		log.Fatalf("invalid -from: %v", err)
	}
	end, err := util.ParseDay(*to, util.PreviousDay(time.Now()))
	if err != nil {
		log.Fatalf("invalid -to: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Load(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	rep, err := a.Ingester.Backfill(ctx, gather.DateRange{Start: start, End: end}, a.Gate, a.Limiter())
	if rep != nil {
		a.Log.Info("backfill finished",
			"ingested", len(rep.Ingested),
			"skipped", len(rep.Skipped),
			"failed", len(rep.Failed),
		)
	}
	if err != nil {
		a.Fatalf("backfill: %v", err)
	}
}

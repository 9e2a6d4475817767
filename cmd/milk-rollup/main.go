// Builds a monthly partition from the month's daily partitions.
//
// Usage:
//
//	go run ./cmd/milk-rollup [-year 2025 -month 7]
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"milkcast/internal/app"
	"milkcast/internal/util"
)

func main() {
	prev := util.PreviousMonth(time.Now())
	year := flag.Int("year", prev.Year(), "year of the month to roll up")
	month := flag.Int("month", int(prev.Month()), "month to roll up, 1-12 (default: previous month)")
	flag.Parse()

	if *month < 1 || *month > 12 {
		log.Fatalf("invalid -month %d", *month)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Load(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	info, err := a.Ingester.Rollup(ctx, *year, time.Month(*month))
	if err != nil {
		a.Fatalf("rollup: %v", err)
	}
	a.Log.Info("rollup complete", "key", info.Key, "rows", info.Rows)
}

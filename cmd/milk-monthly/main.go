// Runs the monthly pipeline: rollup of the previous month, training,
// model drift and promotion.
//
// Usage:
//
//	go run ./cmd/milk-monthly [-year 2025 -month 8]
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
	cur := util.CurrentMonth(time.Now())
	year := flag.Int("year", cur.Year(), "reference year")
	month := flag.Int("month", int(cur.Month()), "reference month, 1-12; the month before it is rolled up and validated")
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

	res, err := a.Runner().RunMonthly(ctx, *year, time.Month(*month))
	if err != nil {
		a.Fatalf("monthly run: %v", err)
	}
	a.Log.Info("monthly run complete",
		"run_id", res.RunID,
		"best", res.Selection.Best.Trainer,
		"rmse", res.Selection.Best.RMSE,
		"promoted", res.Promoted,
	)
}

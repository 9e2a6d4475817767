// Trains the built-in models on the monthly datalake and promotes the best
// one when it beats the dummy baselines.
//
// Usage:
//
//	go run ./cmd/milk-train [-year 2025 -month 8]
//
// The reference month defaults to the current one: training covers the
// thirteen to two months before it and validation the month before.
package main

import (
	"context"
	"flag"
	"fmt"
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
	month := flag.Int("month", int(cur.Month()), "reference month, 1-12")
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

	res, err := a.Runner().Train(ctx, *year, time.Month(*month))
	if err != nil {
		a.Fatalf("training: %v", err)
	}
	for _, c := range res.Selection.Candidates {
		if c.Err != nil {
			fmt.Printf("%-12s failed: %v\n", c.Trainer, c.Err)
			continue
		}
		fmt.Printf("%-12s rmse=%.4f\n", c.Trainer, c.RMSE)
	}
	fmt.Printf("best=%s promoted=%t run_id=%s\n", res.Selection.Best.Trainer, res.Promoted, res.RunID)
}

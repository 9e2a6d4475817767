// Compares the last 30 days of the daily datalake with the 180 days before
// and stores a data drift report.
//
// Usage:
//
//	go run ./cmd/milk-drift [-date 2025-07-30]
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
	dateFlag := flag.String("date", "", "last day of the current window YYYY-MM-DD (default: yesterday in Mexico City)")
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

	check, err := a.Monitor.DataDrift(ctx, date)
	if err != nil {
		a.Fatalf("data drift: %v", err)
	}
	for _, c := range check.Columns {
		fmt.Printf("%-10s %-4s %.4f drifted=%t\n", c.Column, c.Kind, c.Score, c.Drifted)
	}
	fmt.Printf("drifted_share=%.2f dataset_drift=%t\n", check.DriftedShare, check.Drifted)
}

// Reports whether the SNIIM milk report for a day should be ingested.
//
// Usage:
//
//	go run ./cmd/milk-check [-date 2025-07-30]
//
// Exits 0 when the report should be ingested, 1 when it is already stored
// or not published, 2 on error.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"milkcast/internal/app"
	"milkcast/internal/domain"
	"milkcast/internal/util"
)

const (
	exitIngest = 0
	exitSkip   = 1
	exitError  = 2
)

func main() {
	os.Exit(run())
}

// run returns the exit code after the App is closed.
func run() int {
	dateFlag := flag.String("date", "", "report day YYYY-MM-DD (default: yesterday in Mexico City)")
	flag.Parse()

	date, err := util.ParseDay(*dateFlag, util.PreviousDay(time.Now()))
	if err != nil {
		log.Printf("invalid -date: %v", err)
		return exitError
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Load(ctx)
	if err != nil {
		log.Printf("%v", err)
		return exitError
	}
	defer a.Close()

	return check(ctx, a, date, os.Stdout)
}

func check(ctx context.Context, a *app.App, date time.Time, out io.Writer) int {
	ok, err := a.Gate.ShouldIngest(ctx, date)
	if err != nil {
		a.Log.Error("availability check failed", "date", date.Format(domain.DateLayout), "error", err)
		return exitError
	}
	fmt.Fprintf(out, "%s should_ingest=%t\n", date.Format(domain.DateLayout), ok)
	if !ok {
		return exitSkip
	}
	return exitIngest
}

// Ingests one day's SNIIM milk report into the daily datalake, or a
// historical workbook into daily or monthly partitions.
//
// Usage:
//
//	go run ./cmd/milk-ingest [-date 2025-07-30]
//	go run ./cmd/milk-ingest -workbook Leche_2006_2024.xlsx [-granularity monthly]
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"milkcast/internal/app"
	"milkcast/internal/domain"
	"milkcast/internal/util"
)

func main() {
	dateFlag := flag.String("date", "", "report day YYYY-MM-DD (default: yesterday in Mexico City)")
	workbook := flag.String("workbook", "", "ingest a local historical workbook instead of downloading")
	granularity := flag.String("granularity", "monthly", "partition granularity for -workbook: daily or monthly")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Load(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	if *workbook != "" {
		g, err := domain.ParseGranularity(*granularity)
		if err != nil {
			a.Fatalf("invalid -granularity: %v", err)
		}
		f, err := os.Open(*workbook)
		if err != nil {
			a.Fatalf("opening workbook: %v", err)
		}
		defer f.Close()

		infos, err := a.Ingester.IngestWorkbook(ctx, f, g)
		if err != nil {
			a.Fatalf("ingesting workbook: %v", err)
		}
		rows := 0
		for _, info := range infos {
			rows += info.Rows
		}
		a.Log.Info("workbook ingested", "file", *workbook, "partitions", len(infos), "rows", rows)
		return
	}

	date, err := util.ParseDay(*dateFlag, util.PreviousDay(time.Now()))
	if err != nil {
		a.Fatalf("invalid -date: %v", err)
	}
	res, err := a.Ingester.IngestDay(ctx, date)
	if err != nil {
		a.Fatalf("ingesting %s: %v", date.Format(domain.DateLayout), err)
	}
	a.Log.Info("ingest complete", "key", res.Key, "rows", res.Rows, "checksum", res.Checksum)
}

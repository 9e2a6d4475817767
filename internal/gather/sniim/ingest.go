package sniim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/time/rate"

	"milkcast/internal/domain"
	"milkcast/internal/gather"
	"milkcast/internal/metrics"
	"milkcast/internal/sheet"
	"milkcast/internal/store"
)

// RawKey is where the downloaded workbook for date is kept.
func RawKey(date time.Time) string {
	return "raw/" + FileName(date)
}

// IngestResult describes one ingested day.
type IngestResult struct {
	Date     time.Time
	Key      string
	Rows     int
	Skipped  int
	Checksum string
}

// Ingester turns published reports into partitions.
type Ingester struct {
	client  *Client
	store   *store.PartitionStore
	ledger  *store.Ledger
	metrics *metrics.Recorder
	log     *slog.Logger
}

// NewIngester creates an Ingester. ledger and rec may be nil.
func NewIngester(client *Client, ps *store.PartitionStore, ledger *store.Ledger, rec *metrics.Recorder, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{client: client, store: ps, ledger: ledger, metrics: rec, log: logger}
}

// IngestDay downloads date's report, keeps the raw workbook, extracts it and
// writes the records dated date as the daily partition. It returns
// domain.ErrNoRowsForDate when the report holds no table for date.
func (in *Ingester) IngestDay(ctx context.Context, date time.Time) (*IngestResult, error) {
	date = domain.Day(date)
	log := in.log.With("date", date.Format(domain.DateLayout))

	data, err := in.client.Download(ctx, date)
	if err != nil {
		return nil, err
	}
	if err := in.store.Backend().Put(ctx, RawKey(date), data); err != nil {
		return nil, fmt.Errorf("keeping raw report: %w", err)
	}

	res, err := sheet.ExtractFile(bytes.NewReader(data))
	in.metrics.Extracted(len(res.Records), len(res.Skipped))
	for _, skipped := range res.Skipped {
		log.Warn("block skipped", "error", skipped)
	}
	if err != nil {
		return nil, err
	}

	var today []domain.PriceRecord
	for _, r := range res.Records {
		if r.Date.Equal(date) {
			today = append(today, r)
		}
	}
	if len(today) == 0 {
		return nil, fmt.Errorf("%w: %s has %d records for other dates",
			domain.ErrNoRowsForDate, FileName(date), len(res.Records))
	}

	info, err := in.store.Write(ctx, domain.Daily, date, today)
	if err != nil {
		return nil, err
	}
	in.metrics.PartitionWritten(string(domain.Daily))
	in.record(ctx, domain.Daily, date, info, len(res.Skipped))

	log.Info("daily partition written", "key", info.Key, "rows", info.Rows, "skipped_blocks", len(res.Skipped))
	return &IngestResult{Date: date, Key: info.Key, Rows: info.Rows, Skipped: len(res.Skipped), Checksum: info.Checksum}, nil
}

// Stage wraps IngestDay for date as a gather.Stage.
func (in *Ingester) Stage(date time.Time) gather.Stage {
	return gather.StageFunc{
		StageName: "ingest-" + date.Format(domain.DateLayout),
		Fn: func(ctx context.Context) error {
			_, err := in.IngestDay(ctx, date)
			return err
		},
	}
}

// IngestWorkbook loads a historical publication holding many dated tables
// and writes one partition per day or month present, grouping records by
// their own dates.
func (in *Ingester) IngestWorkbook(ctx context.Context, r io.Reader, g domain.Granularity) ([]store.WriteInfo, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("%w %q", domain.ErrUnknownGranularity, g)
	}
	res, err := sheet.ExtractFile(r)
	in.metrics.Extracted(len(res.Records), len(res.Skipped))
	for _, skipped := range res.Skipped {
		in.log.Warn("block skipped", "error", skipped)
	}
	if err != nil {
		return nil, err
	}

	groups := make(map[time.Time][]domain.PriceRecord)
	for _, rec := range res.Records {
		k := domain.Day(rec.Date)
		if g == domain.Monthly {
			k = domain.MonthStart(rec.Date)
		}
		groups[k] = append(groups[k], rec)
	}
	periods := make([]time.Time, 0, len(groups))
	for p := range groups {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })

	out := make([]store.WriteInfo, 0, len(periods))
	for _, p := range periods {
		info, err := in.store.Write(ctx, g, p, groups[p])
		if err != nil {
			return out, err
		}
		in.metrics.PartitionWritten(string(g))
		in.record(ctx, g, p, info, len(res.Skipped))
		in.log.Info("partition written", "granularity", g, "key", info.Key, "rows", info.Rows)
		out = append(out, info)
	}
	return out, nil
}

// Rollup writes the monthly partition for (year, month) from that month's
// daily partitions. It returns domain.ErrInsufficientData when the month
// has no daily partition.
func (in *Ingester) Rollup(ctx context.Context, year int, month time.Month) (store.WriteInfo, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	refs, err := in.store.List(ctx, domain.Daily)
	if err != nil {
		return store.WriteInfo{}, err
	}

	var (
		records []domain.PriceRecord
		days    int
	)
	for _, ref := range refs {
		if !domain.MonthStart(ref.Date).Equal(start) {
			continue
		}
		recs, err := in.store.Read(ctx, domain.Daily, ref.Date)
		if err != nil {
			return store.WriteInfo{}, err
		}
		records = append(records, recs...)
		days++
	}
	if days == 0 {
		return store.WriteInfo{}, &domain.InsufficientDataError{
			Start:  start,
			End:    start.AddDate(0, 1, -1),
			Reason: "no daily partitions for the month",
		}
	}

	info, err := in.store.Write(ctx, domain.Monthly, start, records)
	if err != nil {
		return store.WriteInfo{}, err
	}
	in.metrics.PartitionWritten(string(domain.Monthly))
	in.record(ctx, domain.Monthly, start, info, 0)
	in.log.Info("monthly rollup written", "key", info.Key, "days", days, "rows", info.Rows)
	return info, nil
}

// BackfillReport summarizes a Backfill run.
type BackfillReport struct {
	Ingested []time.Time
	Skipped  []time.Time // stored already or not published
	Failed   []time.Time
}

// Backfill runs the gate and, when it allows, IngestDay for every day in r,
// oldest first. Upstream calls are paced by limiter (nil means unlimited).
// A failing day does not stop the run; all failures are returned together.
func (in *Ingester) Backfill(ctx context.Context, r gather.DateRange, gate *Gate, limiter *rate.Limiter) (*BackfillReport, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	rep := &BackfillReport{}
	var errs *multierror.Error
	for _, d := range r.Days() {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return rep, err
			}
		}
		ok, err := gate.ShouldIngest(ctx, d)
		if err == nil && ok {
			_, err = in.IngestDay(ctx, d)
			if err == nil {
				rep.Ingested = append(rep.Ingested, d)
				continue
			}
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return rep, err
			}
			in.log.Warn("backfill day failed", "date", d.Format(domain.DateLayout), "error", err)
			rep.Failed = append(rep.Failed, d)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", d.Format(domain.DateLayout), err))
			continue
		}
		rep.Skipped = append(rep.Skipped, d)
	}
	return rep, errs.ErrorOrNil()
}

func (in *Ingester) record(ctx context.Context, g domain.Granularity, date time.Time, info store.WriteInfo, skipped int) {
	if in.ledger == nil {
		return
	}
	err := in.ledger.RecordIngestion(ctx, store.Ingestion{
		Key:           info.Key,
		Granularity:   g,
		Date:          date,
		Rows:          info.Rows,
		SkippedBlocks: skipped,
		Checksum:      info.Checksum,
	})
	if err != nil {
		in.log.Warn("ledger update failed", "key", info.Key, "error", err)
	}
}

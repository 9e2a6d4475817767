package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"milkcast/internal/dataset"
	"milkcast/internal/domain"
	"milkcast/internal/drift"
	"milkcast/internal/gather/sniim"
	"milkcast/internal/model"
	"milkcast/internal/notify"
	"milkcast/internal/util"
)

// DailyResult summarizes a daily run.
type DailyResult struct {
	Date     time.Time
	Ingested bool
	Ingest   *sniim.IngestResult
	Drift    *drift.DataCheck

	DatasetRows int

	// PredictionsKey is empty when no model is promoted yet.
	PredictionsKey string
	Predictions    int
}

// RunDaily ingests date's report when the gate allows it, then checks data
// drift, rebuilds the materialized dataset and writes next-day predictions
// with the promoted model. A gate refusal ends the run without error.
// Missing drift history and a missing promoted model are logged and
// skipped.
func (r *Runner) RunDaily(ctx context.Context, date time.Time) (*DailyResult, error) {
	date = domain.Day(date)
	day := date.Format(domain.DateLayout)
	res := &DailyResult{Date: date}

	var should bool
	err := r.run(ctx, stage("gate", func(ctx context.Context) error {
		return util.RetryFixed(ctx, r.attempts(), r.opts.RetryDelay, func() error {
			var err error
			should, err = r.deps.Gate.ShouldIngest(ctx, date)
			return err
		})
	}))
	if err != nil {
		r.notify(ctx, fmt.Sprintf("<b>milkcast daily %s</b>\navailability check failed: %s", day, notify.EscapeHTML(err.Error())))
		return nil, err
	}
	if !should {
		r.log.Info("nothing to ingest", "date", day)
		return res, nil
	}

	err = r.run(ctx, stage("ingest", func(ctx context.Context) error {
		return util.RetryFixed(ctx, r.attempts(), r.opts.RetryDelay, func() error {
			in, err := r.deps.Ingester.IngestDay(ctx, date)
			if errors.Is(err, domain.ErrNoRowsForDate) || errors.Is(err, domain.ErrExtraction) {
				return util.Permanent(err)
			}
			res.Ingest = in
			return err
		})
	}))
	if err != nil {
		r.notify(ctx, fmt.Sprintf("<b>milkcast daily %s</b>\ningestion failed: %s", day, notify.EscapeHTML(err.Error())))
		return nil, err
	}
	res.Ingested = true

	err = r.run(ctx, stage("data-drift", func(ctx context.Context) error {
		check, err := r.deps.Monitor.DataDrift(ctx, date)
		if errors.Is(err, domain.ErrInsufficientData) {
			r.log.Warn("data drift skipped", "date", day, "error", err)
			return nil
		}
		if err != nil {
			return err
		}
		res.Drift = check
		r.deps.Metrics.DataDrift(check.DriftedShare)
		return nil
	}))
	if err != nil {
		return nil, err
	}

	var ds *dataset.Dataset
	err = r.run(ctx, stage("dataset", func(ctx context.Context) error {
		start, end := dataset.Window(date, r.opts.LookbackDays)
		var err error
		ds, err = r.assembler.Assemble(ctx, start, end, r.opts.GroupCols)
		if err != nil {
			return err
		}
		res.DatasetRows = len(ds.Rows)
		return dataset.WriteDataset(ctx, r.deps.Store.Backend(), ds)
	}))
	if err != nil {
		return nil, err
	}

	err = r.run(ctx, stage("predict", func(ctx context.Context) error {
		key, n, err := r.PredictNextDay(ctx, ds, date)
		if errors.Is(err, model.ErrNoPromotedModel) {
			r.log.Warn("predictions skipped", "date", day, "error", err)
			return nil
		}
		res.PredictionsKey, res.Predictions = key, n
		return err
	}))
	if err != nil {
		return nil, err
	}

	r.notify(ctx, dailySummary(res))
	return res, nil
}

// PredictNextDay writes predictions for the day after date from the
// promoted model and returns the object key and row count.
func (r *Runner) PredictNextDay(ctx context.Context, ds *dataset.Dataset, date time.Time) (string, int, error) {
	target := domain.Day(date).AddDate(0, 0, 1)
	_, predictor, err := r.deps.Registry.Load(ctx)
	if err != nil {
		return "", 0, err
	}
	inputs := dataset.NextDayFeatures(ds, target)
	if len(inputs) == 0 {
		return "", 0, &domain.InsufficientDataError{Start: ds.Start, End: ds.End, Reason: "no history before " + target.Format(domain.DateLayout)}
	}
	xs := make([]model.FeatureVector, len(inputs))
	for i, in := range inputs {
		xs[i] = in.Vector()
	}
	preds, err := predictor.Predict(ctx, xs)
	if err != nil {
		return "", 0, err
	}
	key, err := WritePredictions(ctx, r.deps.Store.Backend(), target, inputs, preds)
	if err != nil {
		return "", 0, err
	}
	r.deps.Metrics.Predicted(len(preds))
	r.log.Info("predictions written", "key", key, "rows", len(preds))
	return key, len(preds), nil
}

func dailySummary(res *DailyResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>milkcast daily %s</b>\n", res.Date.Format(domain.DateLayout))
	if res.Ingest != nil {
		fmt.Fprintf(&b, "ingested %d rows (%d blocks skipped)\n", res.Ingest.Rows, res.Ingest.Skipped)
	}
	if res.Drift != nil {
		fmt.Fprintf(&b, "data drift: %.0f%% of columns", 100*res.Drift.DriftedShare)
		if cols := res.Drift.DriftedColumns(); len(cols) > 0 {
			fmt.Fprintf(&b, " (%s)", notify.EscapeHTML(strings.Join(cols, ", ")))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "dataset rows: %d\n", res.DatasetRows)
	if res.PredictionsKey != "" {
		fmt.Fprintf(&b, "predictions: %d at <code>%s</code>", res.Predictions, notify.EscapeHTML(res.PredictionsKey))
	} else {
		b.WriteString("predictions: no promoted model")
	}
	return b.String()
}

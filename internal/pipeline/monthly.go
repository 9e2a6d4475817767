package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"milkcast/internal/dataset"
	"milkcast/internal/drift"
	"milkcast/internal/model"
	"milkcast/internal/notify"
	"milkcast/internal/store"
)

// MonthlyResult summarizes a monthly run.
type MonthlyResult struct {
	RunID          string
	ReferenceMonth time.Time
	Rollup         store.WriteInfo
	Selection      *model.Selection
	ModelDrift     *drift.ModelCheck
	Promoted       bool
}

// RunMonthly rolls up the month before the reference month, then trains
// and promotes as Train does.
func (r *Runner) RunMonthly(ctx context.Context, year int, month time.Month) (*MonthlyResult, error) {
	ref := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	prev := ref.AddDate(0, -1, 0)
	title := fmt.Sprintf("<b>milkcast monthly %s</b>\n", ref.Format("2006-01"))

	var rollup store.WriteInfo
	err := r.run(ctx, stage("rollup", func(ctx context.Context) error {
		var err error
		rollup, err = r.deps.Ingester.Rollup(ctx, prev.Year(), prev.Month())
		return err
	}))
	if err != nil {
		r.notify(ctx, title+"rollup failed: "+notify.EscapeHTML(err.Error()))
		return nil, err
	}

	res, err := r.Train(ctx, year, month)
	if err != nil {
		r.notify(ctx, title+"training failed: "+notify.EscapeHTML(err.Error()))
		return nil, err
	}
	res.Rollup = rollup
	r.notify(ctx, title+monthlySummary(res))
	return res, nil
}

// Train fits every configured trainer on the reference month's windows,
// checks the winner against the dummy baselines on the validation month
// and promotes it when it beats them. Every successful candidate is
// recorded in the ledger.
func (r *Runner) Train(ctx context.Context, year int, month time.Month) (*MonthlyResult, error) {
	ref := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	res := &MonthlyResult{RunID: store.NewRunID(), ReferenceMonth: ref}

	var split *dataset.Split
	err := r.run(ctx, stage("split", func(ctx context.Context) error {
		var err error
		split, err = r.splitter.Split(ctx, year, month)
		return err
	}))
	if err != nil {
		return nil, err
	}

	err = r.run(ctx, stage("train", func(ctx context.Context) error {
		var err error
		res.Selection, err = model.Select(ctx, r.opts.Trainers, split.TrainX, split.TrainY, split.ValidationX, split.ValidationY)
		return err
	}))
	if err != nil {
		return nil, err
	}
	best := res.Selection.Best

	err = r.run(ctx, stage("model-drift", func(ctx context.Context) error {
		pred, err := best.Predictor.Predict(ctx, split.ValidationX)
		if err != nil {
			return err
		}
		res.ModelDrift, err = r.deps.Monitor.ModelDrift(ctx, split.ValidationMonth, best.Trainer, split.ValidationY, pred)
		return err
	}))
	if err != nil {
		return nil, err
	}

	if res.ModelDrift.BeatsDummy() {
		err = r.run(ctx, stage("promote", func(ctx context.Context) error {
			return r.deps.Registry.Promote(ctx, model.Metadata{
				RunID:          res.RunID,
				ReferenceMonth: ref.Format("2006-01"),
				RMSE:           best.RMSE,
			}, best.Predictor)
		}))
		if err != nil {
			return nil, err
		}
		res.Promoted = true
	} else {
		r.log.Warn("model not promoted",
			"trainer", best.Trainer,
			"rmse", res.ModelDrift.RMSE,
			"dummy_rmse", res.ModelDrift.DummyRMSE,
		)
	}

	r.recordRuns(ctx, res)
	return res, nil
}

func (r *Runner) recordRuns(ctx context.Context, res *MonthlyResult) {
	if r.deps.Ledger == nil {
		return
	}
	for _, c := range res.Selection.Candidates {
		if c.Err != nil {
			continue
		}
		err := r.deps.Ledger.RecordModelRun(ctx, store.ModelRun{
			RunID:          res.RunID,
			Trainer:        c.Trainer,
			ReferenceMonth: res.ReferenceMonth,
			RMSE:           c.RMSE,
			Promoted:       res.Promoted && c.Trainer == res.Selection.Best.Trainer,
		})
		if err != nil {
			r.log.Warn("ledger update failed", "run_id", res.RunID, "trainer", c.Trainer, "error", err)
		}
	}
}

func monthlySummary(res *MonthlyResult) string {
	var b strings.Builder
	if res.Rollup.Key != "" {
		fmt.Fprintf(&b, "rollup: %d rows\n", res.Rollup.Rows)
	}
	for _, c := range res.Selection.Candidates {
		if c.Err != nil {
			fmt.Fprintf(&b, "%s: failed\n", c.Trainer)
			continue
		}
		fmt.Fprintf(&b, "%s: RMSE %s\n", c.Trainer, formatFloat(c.RMSE))
	}
	m := res.ModelDrift
	fmt.Fprintf(&b, "validation %s: ME %s, dummy RMSE %s\n", m.Month, formatFloat(m.MeanError), formatFloat(m.DummyRMSE))
	if res.Promoted {
		fmt.Fprintf(&b, "promoted <b>%s</b>", res.Selection.Best.Trainer)
	} else {
		b.WriteString("kept the current model")
	}
	return b.String()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", v)
}


// Package pipeline chains the ingestion, dataset, drift and training stages
// into the daily and monthly runs.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"milkcast/internal/dataset"
	"milkcast/internal/drift"
	"milkcast/internal/gather"
	"milkcast/internal/gather/sniim"
	"milkcast/internal/metrics"
	"milkcast/internal/model"
	"milkcast/internal/notify"
	"milkcast/internal/store"
)

// Defaults for Options fields left at zero.
const (
	DefaultRetries    = 2
	DefaultRetryDelay = 30 * time.Second
)

// Options tune a Runner.
type Options struct {
	// Retries is how many times a failed network step is retried.
	// Negative disables retries; zero means DefaultRetries.
	Retries    int
	RetryDelay time.Duration

	LookbackDays int
	GroupCols    []string

	// Trainers compete in the monthly run; empty means
	// model.DefaultTrainers.
	Trainers []model.Trainer
}

func (o Options) withDefaults() Options {
	switch {
	case o.Retries == 0:
		o.Retries = DefaultRetries
	case o.Retries < 0:
		o.Retries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.LookbackDays <= 0 {
		o.LookbackDays = dataset.DefaultLookbackDays
	}
	if len(o.Trainers) == 0 {
		o.Trainers = model.DefaultTrainers()
	}
	return o
}

// Deps are the components a Runner drives. Ledger, Notifier and Metrics
// may be nil.
type Deps struct {
	Store    *store.PartitionStore
	Ledger   *store.Ledger
	Gate     *sniim.Gate
	Ingester *sniim.Ingester
	Monitor  *drift.Monitor
	Registry *model.Registry
	Notifier notify.Notifier
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
}

// Runner executes pipeline runs.
type Runner struct {
	deps      Deps
	opts      Options
	assembler *dataset.Assembler
	splitter  *dataset.Splitter
	log       *slog.Logger
}

// New creates a Runner.
func New(deps Deps, opts Options) *Runner {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Runner{
		deps:      deps,
		opts:      opts.withDefaults(),
		assembler: dataset.NewAssembler(deps.Store, deps.Logger),
		splitter:  dataset.NewSplitter(deps.Store),
		log:       deps.Logger,
	}
}

// run executes one stage, timing it into the stage metrics.
func (r *Runner) run(ctx context.Context, s gather.Stage) error {
	start := time.Now()
	err := s.Run(ctx)
	r.deps.Metrics.ObserveStage(s.Name(), start, err)
	if err != nil {
		r.log.Error("stage failed", "stage", s.Name(), "error", err)
		return err
	}
	r.log.Debug("stage done", "stage", s.Name(), "elapsed", time.Since(start))
	return nil
}

func stage(name string, fn func(ctx context.Context) error) gather.Stage {
	return gather.StageFunc{StageName: name, Fn: fn}
}

func (r *Runner) attempts() int { return 1 + r.opts.Retries }

func (r *Runner) notify(ctx context.Context, message string) {
	notify.Send(ctx, r.deps.Notifier, r.log, message, notify.ModeHTML)
}

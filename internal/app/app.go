// Package app builds the components the milkcast commands share from a
// loaded configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/time/rate"

	"milkcast/internal/config"
	"milkcast/internal/drift"
	"milkcast/internal/gather/sniim"
	"milkcast/internal/metrics"
	"milkcast/internal/model"
	"milkcast/internal/notify"
	"milkcast/internal/pipeline"
	"milkcast/internal/store"
	"milkcast/internal/util"
)

// App holds the wired components.
type App struct {
	Config *config.Config
	Log    *slog.Logger

	Backend    store.Backend
	Partitions *store.PartitionStore
	Ledger     *store.Ledger // nil when storage.sqlite_path is empty

	Client   *sniim.Client
	Gate     *sniim.Gate
	Ingester *sniim.Ingester
	Monitor  *drift.Monitor
	Registry *model.Registry
	Notifier notify.Notifier
	Metrics  *metrics.Recorder
}

// Load reads the configuration from config.Path and builds an App.
func Load(ctx context.Context) (*App, error) {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return New(ctx, cfg)
}

// New builds an App from cfg and installs its logger as the slog default.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	backend, err := store.Open(ctx, store.Options{
		Source:  cfg.Storage.Source,
		DataDir: cfg.Storage.DataDir,
		Bucket:  cfg.Storage.Bucket,
		Prefix:  cfg.Storage.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	a := &App{
		Config:  cfg,
		Log:     logger,
		Backend: backend,
		Metrics: metrics.NewRecorder(),
	}
	a.Partitions = store.NewPartitionStore(backend)

	if p := cfg.Storage.SQLitePath; p != "" {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				a.Close()
				return nil, err
			}
		}
		if a.Ledger, err = store.OpenLedger(p); err != nil {
			a.Close()
			return nil, fmt.Errorf("opening ledger: %w", err)
		}
	}

	a.Client = sniim.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout)
	a.Gate = sniim.NewGate(a.Partitions, a.Client, a.Metrics, logger)
	a.Ingester = sniim.NewIngester(a.Client, a.Partitions, a.Ledger, a.Metrics, logger)
	a.Monitor = drift.NewMonitor(a.Partitions, drift.Options{
		Bins:           cfg.Drift.Bins,
		PSIThreshold:   cfg.Drift.PSIThreshold,
		TVDThreshold:   cfg.Drift.TVDThreshold,
		ShareThreshold: cfg.Drift.ShareThreshold,
	}, cfg.Drift.CurrentDays, cfg.Drift.ReferenceDays, logger)
	a.Registry = model.NewRegistry(backend)

	if cfg.Notify.BotToken != "" && cfg.Notify.ChatID != "" {
		a.Notifier = notify.NewTelegram(cfg.Notify.TelegramAPI, cfg.Notify.BotToken, cfg.Notify.ChatID)
	} else {
		a.Notifier = notify.Log{Logger: logger}
	}

	logger.Debug("app ready", "storage", backend.Name(), "ledger", cfg.Storage.SQLitePath)
	return a, nil
}

// Trainers returns the trainers the monthly run compares.
func (a *App) Trainers() []model.Trainer {
	return []model.Trainer{
		model.GroupMean{},
		model.Ridge{Lambda: a.Config.Pipeline.RidgeLambda},
	}
}

// Runner returns a pipeline runner over the App's components.
func (a *App) Runner() *pipeline.Runner {
	return pipeline.New(pipeline.Deps{
		Store:    a.Partitions,
		Ledger:   a.Ledger,
		Gate:     a.Gate,
		Ingester: a.Ingester,
		Monitor:  a.Monitor,
		Registry: a.Registry,
		Notifier: a.Notifier,
		Metrics:  a.Metrics,
		Logger:   a.Log,
	}, pipeline.Options{
		Retries:      a.Config.Pipeline.Retries,
		RetryDelay:   a.Config.Pipeline.RetryDelay,
		LookbackDays: a.Config.Pipeline.LookbackDays,
		GroupCols:    a.Config.Pipeline.GroupCols,
		Trainers:     a.Trainers(),
	})
}

// Limiter paces upstream requests during backfills.
func (a *App) Limiter() *rate.Limiter {
	return util.NewLimiter(a.Config.Upstream.RateLimitPerMin)
}

// Close releases the ledger and the storage client.
func (a *App) Close() error {
	var errs *multierror.Error
	if a.Ledger != nil {
		errs = multierror.Append(errs, a.Ledger.Close())
	}
	if c, ok := a.Backend.(io.Closer); ok {
		errs = multierror.Append(errs, c.Close())
	}
	return errs.ErrorOrNil()
}

// Fatalf closes the App, then logs and exits like log.Fatalf. Deferred
// calls do not run on exit.
func (a *App) Fatalf(format string, args ...any) {
	if err := a.Close(); err != nil {
		log.Printf("closing: %v", err)
	}
	log.Fatalf(format, args...)
}

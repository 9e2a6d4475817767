package drift

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"milkcast/internal/domain"
	"milkcast/internal/store"
)

// ReportPrefix is where drift reports are stored.
const ReportPrefix = "monitor/reports/"

// Window lengths used when none are configured.
const (
	DefaultCurrentDays   = 30
	DefaultReferenceDays = 180
)

// Windows are the current and reference ranges of a data drift check.
type Windows struct {
	ReferenceStart time.Time `json:"reference_start"`
	CurrentStart   time.Time `json:"current_start"`
	End            time.Time `json:"end"`
}

// WindowsFor places the current window in the currentDays before base
// (base included) and the reference window in the referenceDays before that.
func WindowsFor(base time.Time, currentDays, referenceDays int) Windows {
	if currentDays <= 0 {
		currentDays = DefaultCurrentDays
	}
	if referenceDays <= 0 {
		referenceDays = DefaultReferenceDays
	}
	end := domain.Day(base)
	cur := end.AddDate(0, 0, -currentDays)
	return Windows{ReferenceStart: cur.AddDate(0, 0, -referenceDays), CurrentStart: cur, End: end}
}

// DataCheck is a stored data drift report.
type DataCheck struct {
	Date    string  `json:"date"`
	Windows Windows `json:"windows"`
	*DataReport
}

// ModelCheck is a stored model drift report.
type ModelCheck struct {
	Month   string `json:"month"`
	Trainer string `json:"trainer"`
	*ModelReport
}

// Monitor runs drift checks over the datalake and stores their reports.
type Monitor struct {
	store         *store.PartitionStore
	opts          Options
	currentDays   int
	referenceDays int
	log           *slog.Logger
}

// NewMonitor creates a Monitor. Zero window lengths use the defaults.
func NewMonitor(ps *store.PartitionStore, opts Options, currentDays, referenceDays int, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{store: ps, opts: opts, currentDays: currentDays, referenceDays: referenceDays, log: logger}
}

// DataDrift compares the daily partitions of the current window against
// the reference window ending at base and stores the report.
func (m *Monitor) DataDrift(ctx context.Context, base time.Time) (*DataCheck, error) {
	w := WindowsFor(base, m.currentDays, m.referenceDays)
	refs, err := m.store.List(ctx, domain.Daily)
	if err != nil {
		return nil, err
	}

	var reference, current []domain.PriceRecord
	var refParts, curParts int
	for _, ref := range refs {
		var dst *[]domain.PriceRecord
		switch {
		case !ref.Date.Before(w.CurrentStart) && !ref.Date.After(w.End):
			dst = &current
			curParts++
		case !ref.Date.Before(w.ReferenceStart) && ref.Date.Before(w.CurrentStart):
			dst = &reference
			refParts++
		default:
			continue
		}
		recs, err := m.store.Read(ctx, domain.Daily, ref.Date)
		if err != nil {
			return nil, err
		}
		*dst = append(*dst, recs...)
	}
	if refParts == 0 || curParts == 0 {
		return nil, &domain.InsufficientDataError{
			Start:  w.ReferenceStart,
			End:    w.End,
			Reason: fmt.Sprintf("%d reference and %d current partitions", refParts, curParts),
		}
	}

	rep, err := Compare(reference, current, m.opts)
	if err != nil {
		return nil, err
	}
	check := &DataCheck{Date: w.End.Format(domain.DateLayout), Windows: w, DataReport: rep}
	if err := m.save(ctx, check.Date+"-data-drift-report.json", check); err != nil {
		return nil, err
	}
	m.log.Info("data drift checked",
		"date", check.Date,
		"reference_partitions", refParts,
		"current_partitions", curParts,
		"drifted_share", rep.DriftedShare,
		"drifted", rep.Drifted,
	)
	return check, nil
}

// ModelDrift evaluates predictions for a validation month and stores the
// report.
func (m *Monitor) ModelDrift(ctx context.Context, month time.Time, trainer string, actual, pred []float64) (*ModelCheck, error) {
	rep, err := EvaluateModel(actual, pred)
	if err != nil {
		return nil, err
	}
	check := &ModelCheck{Month: month.Format("2006-01"), Trainer: trainer, ModelReport: rep}
	if err := m.save(ctx, check.Month+"-model-drift-report.json", check); err != nil {
		return nil, err
	}
	m.log.Info("model drift checked", "month", check.Month, "rmse", rep.RMSE, "dummy_rmse", rep.DummyRMSE)
	return check, nil
}

func (m *Monitor) save(ctx context.Context, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return m.store.Backend().Put(ctx, ReportPrefix+name, data)
}

// Package dataset builds model-ready tables from the partitioned datalake:
// the assembled time-series dataset with lag and rolling-mean features, the
// monthly train/validation split, and next-day serving features.
package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"milkcast/internal/domain"
	"milkcast/internal/store"
)

// DefaultLookbackDays is the history window used by the daily pipeline.
const DefaultLookbackDays = 548

// Row is one priced observation with its calendar and history features.
type Row struct {
	Date     time.Time
	State    string
	City     string
	MilkType domain.MilkType
	Channel  string
	Price    float64

	Year    int
	Month   int
	Day     int
	Weekday int // 0 = Monday

	// PriceLag1 is the group's price on its latest strictly earlier date;
	// nil on the group's first date.
	PriceLag1 *float64
	// PriceMean7 is the mean of the current price and the group's prices on
	// up to six earlier dates.
	PriceMean7 float64
}

// Column returns the value of a categorical column by name.
func (r Row) Column(name string) (string, bool) {
	return r.record().Column(name)
}

// Key returns the row's entity group.
func (r Row) Key() domain.EntityKey {
	return r.record().Key()
}

func (r Row) record() domain.PriceRecord {
	return domain.PriceRecord{Date: r.Date, State: r.State, City: r.City, MilkType: r.MilkType, Channel: r.Channel}
}

// Dataset is the assembled table, sorted by group columns then date.
type Dataset struct {
	Start     time.Time
	End       time.Time
	GroupCols []string
	Rows      []Row
}

// Assembler reads daily partitions into a Dataset.
type Assembler struct {
	store *store.PartitionStore
	log   *slog.Logger
}

// NewAssembler creates an Assembler over the given partition store.
func NewAssembler(ps *store.PartitionStore, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{store: ps, log: logger}
}

// Window returns the [start, end] range ending on reference and reaching
// lookbackDays back. A non-positive lookback uses DefaultLookbackDays.
func Window(reference time.Time, lookbackDays int) (start, end time.Time) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	end = domain.Day(reference)
	return end.AddDate(0, 0, -lookbackDays), end
}

// Assemble unions every daily partition dated in [start, end], drops rows
// without a price, and derives calendar, lag and rolling-mean features per
// group. groupCols must be a subset of the entity columns; empty means all
// four. Returns domain.ErrInsufficientData when no priced row remains.
func (a *Assembler) Assemble(ctx context.Context, start, end time.Time, groupCols []string) (*Dataset, error) {
	cols, err := validateGroupCols(groupCols)
	if err != nil {
		return nil, err
	}
	start, end = domain.Day(start), domain.Day(end)
	if end.Before(start) {
		return nil, fmt.Errorf("assemble: end %s before start %s",
			end.Format(domain.DateLayout), start.Format(domain.DateLayout))
	}

	refs, err := a.store.List(ctx, domain.Daily)
	if err != nil {
		return nil, fmt.Errorf("listing daily partitions: %w", err)
	}

	var records []domain.PriceRecord
	read := 0
	for _, ref := range refs {
		if ref.Date.Before(start) || ref.Date.After(end) {
			continue
		}
		recs, err := a.store.Read(ctx, domain.Daily, ref.Date)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
		read++
	}
	a.log.Info("partitions loaded",
		"start", start.Format(domain.DateLayout),
		"end", end.Format(domain.DateLayout),
		"partitions", read,
		"records", len(records),
	)

	rows := BuildRows(records, cols)
	if len(rows) == 0 {
		return nil, &domain.InsufficientDataError{Start: start, End: end, Reason: "no priced rows"}
	}
	return &Dataset{Start: start, End: end, GroupCols: cols, Rows: rows}, nil
}

// BuildRows drops unpriced or undated records, sorts by group columns then
// date, and computes features within each group. Within a group, rows on
// the same date are ordered by the remaining entity columns.
func BuildRows(records []domain.PriceRecord, groupCols []string) []Row {
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		if r.Date.IsZero() || r.Price == nil {
			continue
		}
		d := domain.Day(r.Date)
		rows = append(rows, Row{
			Date:     d,
			State:    r.State,
			City:     r.City,
			MilkType: r.MilkType,
			Channel:  r.Channel,
			Price:    *r.Price,
			Year:     d.Year(),
			Month:    int(d.Month()),
			Day:      d.Day(),
			Weekday:  MondayWeekday(d),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		gi, gj := groupKey(rows[i], groupCols), groupKey(rows[j], groupCols)
		if gi != gj {
			return gi < gj
		}
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].Key().String() < rows[j].Key().String()
	})

	for lo := 0; lo < len(rows); {
		hi := lo + 1
		g := groupKey(rows[lo], groupCols)
		for hi < len(rows) && groupKey(rows[hi], groupCols) == g {
			hi++
		}
		applyFeatures(rows[lo:hi])
		lo = hi
	}
	return rows
}

// MondayWeekday maps time.Weekday (Sunday = 0) to Monday = 0.
func MondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func validateGroupCols(cols []string) ([]string, error) {
	if len(cols) == 0 {
		return append([]string(nil), domain.GroupColumns...), nil
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if _, ok := (domain.PriceRecord{}).Column(c); !ok {
			return nil, fmt.Errorf("unknown group column %q", c)
		}
		if seen[c] {
			return nil, fmt.Errorf("duplicate group column %q", c)
		}
		seen[c] = true
	}
	return cols, nil
}

// groupKey joins the selected column values with a unit separator, which
// never appears in the report text.
func groupKey(r Row, cols []string) string {
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		v, _ := r.Column(c)
		b.WriteString(v)
	}
	return b.String()
}

package dataset

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"milkcast/internal/domain"
	"milkcast/internal/store"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func priced(date time.Time, city string, channel string, price float64) domain.PriceRecord {
	return domain.PriceRecord{
		Date:     date,
		State:    "Jalisco",
		City:     city,
		MilkType: domain.MilkPasteurized,
		Channel:  channel,
		Price:    domain.Float(price),
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// seedDaily writes one daily partition per distinct record date.
func seedDaily(t *testing.T, ps *store.PartitionStore, records []domain.PriceRecord) {
	t.Helper()
	byDay := map[time.Time][]domain.PriceRecord{}
	for _, r := range records {
		byDay[r.Date] = append(byDay[r.Date], r)
	}
	for d, recs := range byDay {
		if _, err := ps.Write(context.Background(), domain.Daily, d, recs); err != nil {
			t.Fatalf("seeding %s: %v", d, err)
		}
	}
}

func newStore(t *testing.T) *store.PartitionStore {
	t.Helper()
	return store.NewPartitionStore(store.NewLocalBackend(t.TempDir()))
}

// ---------------------------------------------------------------------------
// Assemble
// ---------------------------------------------------------------------------

func TestAssembleLagAndRollingMean(t *testing.T) {
	ps := newStore(t)
	var recs []domain.PriceRecord
	for i := 0; i < 9; i++ {
		recs = append(recs, priced(day(2025, 7, 1+i), "Guadalajara", "store", float64(i+1)))
	}
	seedDaily(t, ps, recs)

	ds, err := NewAssembler(ps, nil).Assemble(context.Background(), day(2025, 7, 1), day(2025, 7, 31), nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(ds.Rows) != 9 {
		t.Fatalf("rows = %d, want 9", len(ds.Rows))
	}

	if ds.Rows[0].PriceLag1 != nil {
		t.Errorf("first lag = %v, want nil", *ds.Rows[0].PriceLag1)
	}
	for i := 1; i < 9; i++ {
		if lag := ds.Rows[i].PriceLag1; lag == nil || *lag != float64(i) {
			t.Errorf("row %d lag = %v, want %d", i, lag, i)
		}
	}

	wantMean := []float64{1, 1.5, 2, 2.5, 3, 3.5, 4, 5, 6}
	for i, w := range wantMean {
		if !approx(ds.Rows[i].PriceMean7, w) {
			t.Errorf("row %d mean7 = %v, want %v", i, ds.Rows[i].PriceMean7, w)
		}
	}

	r := ds.Rows[0]
	if r.Year != 2025 || r.Month != 7 || r.Day != 1 || r.Weekday != 1 {
		t.Errorf("calendar of 2025-07-01 = %d-%d-%d weekday %d, want Tuesday (1)", r.Year, r.Month, r.Day, r.Weekday)
	}
}

func TestAssembleGroupsIndependentlyAndDropsNulls(t *testing.T) {
	ps := newStore(t)
	recs := []domain.PriceRecord{
		priced(day(2025, 7, 1), "Zapopan", "store", 30),
		priced(day(2025, 7, 1), "Guadalajara", "store", 10),
		priced(day(2025, 7, 2), "Guadalajara", "store", 20),
		priced(day(2025, 7, 2), "Zapopan", "store", 40),
		{Date: day(2025, 7, 3), State: "Jalisco", City: "Guadalajara", MilkType: domain.MilkPasteurized, Channel: "store"},
	}
	seedDaily(t, ps, recs)

	ds, err := NewAssembler(ps, nil).Assemble(context.Background(), day(2025, 7, 1), day(2025, 7, 3), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Rows) != 4 {
		t.Fatalf("rows = %d, want 4 (null price dropped)", len(ds.Rows))
	}

	wantCity := []string{"Guadalajara", "Guadalajara", "Zapopan", "Zapopan"}
	wantLag := []float64{0, 10, 0, 30}
	for i, r := range ds.Rows {
		if r.City != wantCity[i] {
			t.Errorf("row %d city = %q, want %q", i, r.City, wantCity[i])
		}
		if i%2 == 0 {
			if r.PriceLag1 != nil {
				t.Errorf("row %d: group start has lag %v", i, *r.PriceLag1)
			}
			continue
		}
		if r.PriceLag1 == nil || *r.PriceLag1 != wantLag[i] {
			t.Errorf("row %d lag = %v, want %v", i, r.PriceLag1, wantLag[i])
		}
	}
	if !approx(ds.Rows[3].PriceMean7, 35) {
		t.Errorf("Zapopan mean7 = %v, want 35", ds.Rows[3].PriceMean7)
	}
}

func TestAssembleFiltersByRange(t *testing.T) {
	ps := newStore(t)
	seedDaily(t, ps, []domain.PriceRecord{
		priced(day(2025, 6, 30), "Guadalajara", "store", 1),
		priced(day(2025, 7, 1), "Guadalajara", "store", 2),
		priced(day(2025, 7, 2), "Guadalajara", "store", 3),
		priced(day(2025, 7, 3), "Guadalajara", "store", 4),
	})

	ds, err := NewAssembler(ps, nil).Assemble(context.Background(), day(2025, 7, 1), day(2025, 7, 2), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(ds.Rows))
	}
	if ds.Rows[0].Price != 2 || ds.Rows[1].Price != 3 {
		t.Errorf("prices = %v, %v; want 2, 3", ds.Rows[0].Price, ds.Rows[1].Price)
	}
}

func TestAssembleWithoutPartitions(t *testing.T) {
	ps := newStore(t)
	_, err := NewAssembler(ps, nil).Assemble(context.Background(), day(2025, 1, 1), day(2025, 12, 31), nil)
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("error = %v, want ErrInsufficientData", err)
	}
	var ide *domain.InsufficientDataError
	if !errors.As(err, &ide) || !ide.Start.Equal(day(2025, 1, 1)) || !ide.End.Equal(day(2025, 12, 31)) {
		t.Errorf("error = %#v, want InsufficientDataError over the requested window", err)
	}
}

func TestAssembleRejectsUnknownGroupColumn(t *testing.T) {
	ps := newStore(t)
	_, err := NewAssembler(ps, nil).Assemble(context.Background(), day(2025, 1, 1), day(2025, 1, 2), []string{"price"})
	if err == nil {
		t.Error("Assemble accepted a non-categorical group column")
	}
}

func TestBuildRowsCoarserGroupingUsesEarlierDatesOnly(t *testing.T) {
	recs := []domain.PriceRecord{
		priced(day(2025, 7, 1), "Guadalajara", "store", 10),
		priced(day(2025, 7, 1), "Zapopan", "store", 20),
		priced(day(2025, 7, 2), "Guadalajara", "store", 30),
	}
	rows := BuildRows(recs, []string{domain.ColState})
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}

	// Both rows of the first date share the group but must not lag or
	// average each other.
	for _, r := range rows[:2] {
		if !r.Date.Equal(day(2025, 7, 1)) {
			t.Fatalf("row order = %+v", rows)
		}
		if r.PriceLag1 != nil {
			t.Errorf("%s lag = %v, want nil on the first date", r.City, *r.PriceLag1)
		}
		if !approx(r.PriceMean7, r.Price) {
			t.Errorf("%s mean7 = %v, want its own price %v", r.City, r.PriceMean7, r.Price)
		}
	}

	// The next date lags the mean of the earlier date.
	last := rows[2]
	if last.PriceLag1 == nil || !approx(*last.PriceLag1, 15) {
		t.Errorf("state-level lag = %v, want 15", last.PriceLag1)
	}
	if !approx(last.PriceMean7, 22.5) {
		t.Errorf("state-level mean7 = %v, want 22.5", last.PriceMean7)
	}
}

func TestWindow(t *testing.T) {
	start, end := Window(time.Date(2025, 7, 30, 15, 4, 0, 0, time.UTC), 0)
	if !end.Equal(day(2025, 7, 30)) {
		t.Errorf("end = %s", end)
	}
	if got := end.Sub(start); got != DefaultLookbackDays*24*time.Hour {
		t.Errorf("window length = %s, want %d days", got, DefaultLookbackDays)
	}
}

func TestMondayWeekday(t *testing.T) {
	tests := map[time.Time]int{
		day(2025, 7, 28): 0, // Monday
		day(2025, 7, 30): 2,
		day(2025, 8, 3):  6, // Sunday
	}
	for d, want := range tests {
		if got := MondayWeekday(d); got != want {
			t.Errorf("MondayWeekday(%s) = %d, want %d", d.Format(domain.DateLayout), got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Next-day features
// ---------------------------------------------------------------------------

func TestNextDayFeatures(t *testing.T) {
	var recs []domain.PriceRecord
	for i := 0; i < 9; i++ {
		recs = append(recs, priced(day(2025, 7, 1+i), "Guadalajara", "store", float64(i+1)))
	}
	recs = append(recs, priced(day(2025, 7, 5), "Zapopan", "self-service", 50))
	ds := &Dataset{Rows: BuildRows(recs, nil)}

	got := NextDayFeatures(ds, day(2025, 7, 10))
	if len(got) != 2 {
		t.Fatalf("inputs = %d, want 2", len(got))
	}
	g := got[0]
	if g.City != "Guadalajara" || g.PriceLag1 != 9 || !approx(g.PriceMean7, 6) {
		t.Errorf("Guadalajara input = %+v, want lag 9 mean 6", g)
	}
	if g.Day != 10 || g.Month != 7 || g.Year != 2025 || g.Weekday != 3 {
		t.Errorf("calendar = %d/%d/%d weekday %d", g.Day, g.Month, g.Year, g.Weekday)
	}

	// Observations on or after the target are not visible.
	got = NextDayFeatures(ds, day(2025, 7, 4))
	if len(got) != 1 {
		t.Fatalf("inputs before Zapopan's first day = %d, want 1", len(got))
	}
	if got[0].PriceLag1 != 3 || !approx(got[0].PriceMean7, 2) {
		t.Errorf("input = %+v, want lag 3 mean 2", got[0])
	}
}

func TestTrainingSetSkipsRowsWithoutLag(t *testing.T) {
	recs := []domain.PriceRecord{
		priced(day(2025, 7, 1), "Guadalajara", "store", 10),
		priced(day(2025, 7, 2), "Guadalajara", "store", 11),
		priced(day(2025, 7, 3), "Guadalajara", "store", 12),
	}
	ds := &Dataset{Rows: BuildRows(recs, nil)}
	xs, ys := ds.TrainingSet()
	if len(xs) != 2 || len(ys) != 2 {
		t.Fatalf("samples = %d/%d, want 2", len(xs), len(ys))
	}
	if ys[0] != 11 || xs[0].Numeric["price_lag1"] != 10 {
		t.Errorf("first sample = %+v -> %v", xs[0], ys[0])
	}
}

// ---------------------------------------------------------------------------
// Materialization
// ---------------------------------------------------------------------------

func TestDatasetMaterializeRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := store.NewLocalBackend(t.TempDir())

	if _, err := ReadDataset(ctx, b); !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("ReadDataset(empty) error = %v", err)
	}

	recs := []domain.PriceRecord{
		priced(day(2025, 7, 1), "Guadalajara", "store", 10),
		priced(day(2025, 7, 2), "Guadalajara", "store", 12),
	}
	ds := &Dataset{Rows: BuildRows(recs, nil)}
	if err := WriteDataset(ctx, b, ds); err != nil {
		t.Fatalf("WriteDataset: %v", err)
	}
	got, err := ReadDataset(ctx, b)
	if err != nil {
		t.Fatalf("ReadDataset: %v", err)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("rows = %d", len(got.Rows))
	}
	if got.Rows[0].PriceLag1 != nil || got.Rows[1].PriceLag1 == nil || *got.Rows[1].PriceLag1 != 10 {
		t.Errorf("lags not preserved: %+v", got.Rows)
	}
	if !got.Start.Equal(day(2025, 7, 1)) || !got.End.Equal(day(2025, 7, 2)) {
		t.Errorf("range = %s..%s", got.Start, got.End)
	}
	if len(got.GroupCols) != len(domain.GroupColumns) {
		t.Errorf("GroupCols = %v, want the entity key", got.GroupCols)
	}
}

func TestDatasetMaterializeKeepsGroupingAndWindow(t *testing.T) {
	ctx := context.Background()
	b := store.NewLocalBackend(t.TempDir())
	cols := []string{domain.ColState, domain.ColMilkType}
	ds := &Dataset{
		Start:     day(2025, 6, 1),
		End:       day(2025, 7, 31),
		GroupCols: cols,
		Rows:      BuildRows([]domain.PriceRecord{priced(day(2025, 7, 1), "Guadalajara", "store", 10)}, cols),
	}
	if err := WriteDataset(ctx, b, ds); err != nil {
		t.Fatalf("WriteDataset: %v", err)
	}
	got, err := ReadDataset(ctx, b)
	if err != nil {
		t.Fatalf("ReadDataset: %v", err)
	}
	if len(got.GroupCols) != 2 || got.GroupCols[0] != domain.ColState || got.GroupCols[1] != domain.ColMilkType {
		t.Errorf("GroupCols = %v, want %v", got.GroupCols, cols)
	}
	if !got.Start.Equal(day(2025, 6, 1)) || !got.End.Equal(day(2025, 7, 31)) {
		t.Errorf("window = %s..%s, want the assembled window", got.Start, got.End)
	}
}

// ---------------------------------------------------------------------------
// Split
// ---------------------------------------------------------------------------

func TestWindows(t *testing.T) {
	train, val := Windows(2025, time.March)
	if len(train) != 12 {
		t.Fatalf("training months = %d, want 12", len(train))
	}
	if !train[0].Equal(day(2024, 2, 1)) || !train[11].Equal(day(2025, 1, 1)) {
		t.Errorf("training window = %s..%s, want 2024-02..2025-01", train[0].Format("2006-01"), train[11].Format("2006-01"))
	}
	if !val.Equal(day(2025, 2, 1)) {
		t.Errorf("validation = %s, want 2025-02", val.Format("2006-01"))
	}

	train, val = Windows(2025, time.January)
	if !train[0].Equal(day(2023, 12, 1)) || !train[11].Equal(day(2024, 11, 1)) || !val.Equal(day(2024, 12, 1)) {
		t.Errorf("January windows = %s..%s / %s", train[0], train[11], val)
	}
}

func TestSplit(t *testing.T) {
	ctx := context.Background()
	ps := newStore(t)
	train, val := Windows(2025, time.July)
	for i, m := range append(train, val) {
		recs := []domain.PriceRecord{
			priced(m, "Guadalajara", "store", float64(20+i)),
			{Date: m, State: "Jalisco", City: "Guadalajara", MilkType: domain.MilkPasteurized, Channel: "self-service"},
		}
		if _, err := ps.Write(ctx, domain.Monthly, m, recs); err != nil {
			t.Fatal(err)
		}
	}

	sp, err := NewSplitter(ps).Split(ctx, 2025, time.July)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(sp.TrainX) != 12 || len(sp.TrainY) != 12 {
		t.Errorf("training samples = %d, want 12 (nulls dropped)", len(sp.TrainX))
	}
	if len(sp.ValidationY) != 1 || sp.ValidationY[0] != 32 {
		t.Errorf("validation targets = %v, want [32]", sp.ValidationY)
	}
	if got := sp.TrainX[0].Categorical[domain.ColCity]; got != "Guadalajara" {
		t.Errorf("city feature = %q", got)
	}
	if !sp.ValidationMonth.Equal(day(2025, 6, 1)) {
		t.Errorf("validation month = %s", sp.ValidationMonth)
	}
}

func TestSplitMissingMonth(t *testing.T) {
	ps := newStore(t)
	_, err := NewSplitter(ps).Split(context.Background(), 2025, time.July)
	var pnf *domain.PartitionNotFoundError
	if !errors.As(err, &pnf) {
		t.Fatalf("error = %v, want PartitionNotFoundError", err)
	}
	if !pnf.Date.Equal(day(2024, 6, 1)) {
		t.Errorf("first missing month = %s, want 2024-06", pnf.Date.Format("2006-01"))
	}
}

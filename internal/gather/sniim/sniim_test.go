package sniim

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"milkcast/internal/domain"
	"milkcast/internal/gather"
	"milkcast/internal/sheet/sheettest"
	"milkcast/internal/store"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fakeSNIIM serves workbooks by file name and 404 for anything else.
type fakeSNIIM struct {
	files  map[string][]byte
	status map[string]int // forced status per file name
	hits   atomic.Int32
}

func (f *fakeSNIIM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.hits.Add(1)
	name := filepath.Base(r.URL.Path)
	if code, ok := f.status[name]; ok {
		w.WriteHeader(code)
		return
	}
	data, ok := f.files[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Write(data)
}

func workbook(t *testing.T, blocks ...[][]string) []byte {
	t.Helper()
	var rows [][]string
	for _, b := range blocks {
		rows = append(rows, b...)
	}
	data, err := sheettest.Workbook(rows)
	if err != nil {
		t.Fatalf("building workbook: %v", err)
	}
	return data
}

func julyBlock(phrase string) [][]string {
	return sheettest.Block(phrase,
		[]string{"Jalisco", "Guadalajara", "26.50", "n.d.", "", ""},
		[]string{"", "Zapopan", "26.80", "27.10", "29.00", "29.40"},
	)
}

type fixture struct {
	server   *httptest.Server
	upstream *fakeSNIIM
	store    *store.PartitionStore
	ledger   *store.Ledger
	gate     *Gate
	ingester *Ingester
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	up := &fakeSNIIM{files: map[string][]byte{}, status: map[string]int{}}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	ps := store.NewPartitionStore(store.NewLocalBackend(t.TempDir()))
	ledger, err := store.OpenLedger(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ledger.Close() })

	client := NewClient(srv.URL, 5*time.Second)
	return &fixture{
		server:   srv,
		upstream: up,
		store:    ps,
		ledger:   ledger,
		gate:     NewGate(ps, client, nil, nil),
		ingester: NewIngester(client, ps, ledger, nil, nil),
	}
}

func TestFileNameAndURL(t *testing.T) {
	d := day(2025, 7, 3)
	if got := FileName(d); got != "Leche03072025.xlsx" {
		t.Errorf("FileName = %q", got)
	}
	c := NewClient("https://example.test/Otros/", 0)
	if got := c.URL(d); got != "https://example.test/Otros/Leche03072025.xlsx" {
		t.Errorf("URL = %q", got)
	}
	if got := NewClient("", 0).URL(d); got != DefaultBaseURL+"/Leche03072025.xlsx" {
		t.Errorf("default URL = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Gate
// ---------------------------------------------------------------------------

func TestGateStoredPartitionSkipsUpstream(t *testing.T) {
	f := newFixture(t)
	d := day(2025, 7, 30)
	if _, err := f.store.Write(context.Background(), domain.Daily, d, nil); err != nil {
		t.Fatal(err)
	}
	f.upstream.files[FileName(d)] = []byte("x")

	ok, err := f.gate.ShouldIngest(context.Background(), d)
	if err != nil || ok {
		t.Errorf("ShouldIngest = %v, %v; want false, nil", ok, err)
	}
	if n := f.upstream.hits.Load(); n != 0 {
		t.Errorf("upstream called %d times for a stored day", n)
	}
}

func TestGateStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	published := day(2025, 7, 30)
	f.upstream.files[FileName(published)] = []byte("x")
	f.upstream.status[FileName(day(2025, 7, 1))] = http.StatusGone
	f.upstream.status[FileName(day(2025, 7, 2))] = http.StatusInternalServerError

	ok, err := f.gate.ShouldIngest(ctx, published)
	if err != nil || !ok {
		t.Errorf("published: ShouldIngest = %v, %v; want true", ok, err)
	}

	future := time.Now().UTC().AddDate(0, 0, 30)
	ok, err = f.gate.ShouldIngest(ctx, future)
	if err != nil || ok {
		t.Errorf("future date: ShouldIngest = %v, %v; want false, nil", ok, err)
	}

	ok, err = f.gate.ShouldIngest(ctx, day(2025, 7, 1))
	if err != nil || ok {
		t.Errorf("410: ShouldIngest = %v, %v; want false, nil", ok, err)
	}

	_, err = f.gate.ShouldIngest(ctx, day(2025, 7, 2))
	var ace *domain.AvailabilityCheckError
	if !errors.As(err, &ace) || ace.Status != http.StatusInternalServerError {
		t.Errorf("500: error = %v, want AvailabilityCheckError with status 500", err)
	}
}

func TestGateTransportFailure(t *testing.T) {
	f := newFixture(t)
	f.server.Close()

	ok, err := f.gate.ShouldIngest(context.Background(), day(2025, 7, 30))
	if ok {
		t.Error("ShouldIngest reported true on transport failure")
	}
	if !errors.Is(err, domain.ErrAvailabilityCheck) {
		t.Errorf("error = %v, want ErrAvailabilityCheck", err)
	}
}

// ---------------------------------------------------------------------------
// Ingester
// ---------------------------------------------------------------------------

func TestIngestDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := day(2025, 7, 30)
	f.upstream.files[FileName(d)] = workbook(t, julyBlock("30 de julio de 2025"))

	res, err := f.ingester.IngestDay(ctx, d)
	if err != nil {
		t.Fatalf("IngestDay: %v", err)
	}
	if res.Rows != 8 || res.Key != "daily/2025/07/2025-07-30-data.parquet" {
		t.Errorf("result = %+v", res)
	}

	recs, err := f.store.Read(ctx, domain.Daily, d)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range recs {
		if r.City == "Guadalajara" && r.MilkType == domain.MilkPasteurized && r.Channel == "self-service" {
			found = r.Price != nil && *r.Price == 26.5
		}
		if r.City == "Zapopan" && r.State != "Jalisco" {
			t.Errorf("Zapopan state = %q, want forward-filled Jalisco", r.State)
		}
	}
	if !found {
		t.Error("Guadalajara pasteurized self-service 26.5 not stored")
	}

	if ok, _ := f.store.Backend().Exists(ctx, RawKey(d)); !ok {
		t.Error("raw workbook not kept")
	}
	entry, err := f.ledger.GetIngestion(ctx, res.Key)
	if err != nil || entry.Rows != 8 || entry.Checksum != res.Checksum {
		t.Errorf("ledger entry = %+v, %v", entry, err)
	}
}

func TestIngestDayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := day(2025, 7, 30)
	f.upstream.files[FileName(d)] = workbook(t, julyBlock("30 de julio de 2025"))

	first, err := f.ingester.IngestDay(ctx, d)
	if err != nil {
		t.Fatal(err)
	}
	before, _ := f.store.Backend().Get(ctx, first.Key)
	second, err := f.ingester.IngestDay(ctx, d)
	if err != nil {
		t.Fatal(err)
	}
	after, _ := f.store.Backend().Get(ctx, second.Key)
	if !bytes.Equal(before, after) {
		t.Error("re-ingestion changed the partition bytes")
	}
}

func TestIngestDayNoRowsForDate(t *testing.T) {
	f := newFixture(t)
	d := day(2025, 7, 30)
	f.upstream.files[FileName(d)] = workbook(t, julyBlock("29 de julio de 2025"))

	_, err := f.ingester.IngestDay(context.Background(), d)
	if !errors.Is(err, domain.ErrNoRowsForDate) {
		t.Errorf("error = %v, want ErrNoRowsForDate", err)
	}
	if ok, _ := f.store.Exists(context.Background(), domain.Daily, d); ok {
		t.Error("partition written despite no rows for the date")
	}
}

func TestIngestDayDownloadFailure(t *testing.T) {
	f := newFixture(t)
	_, err := f.ingester.IngestDay(context.Background(), day(2025, 7, 30))
	var ude *domain.UpstreamDownloadError
	if !errors.As(err, &ude) || ude.Status != http.StatusNotFound {
		t.Errorf("error = %v, want UpstreamDownloadError 404", err)
	}
}

func TestIngestWorkbookMonthly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	data := workbook(t,
		julyBlock("30 de julio de 2025"),
		julyBlock("31 de julio de 2025"),
		julyBlock("1 de agosto de 2025"),
	)

	infos, err := f.ingester.IngestWorkbook(ctx, bytes.NewReader(data), domain.Monthly)
	if err != nil {
		t.Fatalf("IngestWorkbook: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("partitions = %d, want 2", len(infos))
	}
	if infos[0].Key != "monthly/2025/07/2025-07-data.parquet" || infos[0].Rows != 16 {
		t.Errorf("July = %+v", infos[0])
	}
	if infos[1].Key != "monthly/2025/08/2025-08-data.parquet" || infos[1].Rows != 8 {
		t.Errorf("August = %+v", infos[1])
	}
}

func TestRollup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	data := workbook(t, julyBlock("30 de julio de 2025"), julyBlock("31 de julio de 2025"))
	if _, err := f.ingester.IngestWorkbook(ctx, bytes.NewReader(data), domain.Daily); err != nil {
		t.Fatal(err)
	}

	info, err := f.ingester.Rollup(ctx, 2025, time.July)
	if err != nil {
		t.Fatalf("Rollup: %v", err)
	}
	if info.Rows != 16 {
		t.Errorf("rows = %d, want 16", info.Rows)
	}
	_, err = f.ingester.Rollup(ctx, 2025, time.June)
	var ide *domain.InsufficientDataError
	if !errors.As(err, &ide) || !ide.Start.Equal(day(2025, 6, 1)) || !ide.End.Equal(day(2025, 6, 30)) {
		t.Errorf("empty month error = %v, want InsufficientDataError for June", err)
	}
}

func TestBackfill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.upstream.files[FileName(day(2025, 7, 30))] = workbook(t, julyBlock("30 de julio de 2025"))
	f.upstream.status[FileName(day(2025, 7, 29))] = http.StatusBadGateway

	rep, err := f.ingester.Backfill(ctx, gather.DateRange{Start: day(2025, 7, 28), End: day(2025, 7, 30)}, f.gate, nil)
	if err == nil {
		t.Error("Backfill hid the failed day")
	}
	if len(rep.Ingested) != 1 || !rep.Ingested[0].Equal(day(2025, 7, 30)) {
		t.Errorf("Ingested = %v", rep.Ingested)
	}
	if len(rep.Skipped) != 1 || !rep.Skipped[0].Equal(day(2025, 7, 28)) {
		t.Errorf("Skipped = %v", rep.Skipped)
	}
	if len(rep.Failed) != 1 || !rep.Failed[0].Equal(day(2025, 7, 29)) {
		t.Errorf("Failed = %v", rep.Failed)
	}
}

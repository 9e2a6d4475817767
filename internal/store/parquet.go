package store

import (
	"bytes"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"milkcast/internal/domain"
)

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// PriceRow is the Parquet schema of a partition. Date counts days since the
// Unix epoch.
type PriceRow struct {
	Date     int32    `parquet:"date,date"`
	State    string   `parquet:"state"`
	City     string   `parquet:"city"`
	MilkType string   `parquet:"milk_type"`
	Channel  string   `parquet:"channel"`
	Price    *float64 `parquet:"price,optional"`
}

const secondsPerDay = 24 * 60 * 60

// EpochDays converts a time to whole days since 1970-01-01 UTC.
func EpochDays(t time.Time) int32 {
	return int32(domain.Day(t).Unix() / secondsPerDay)
}

// FromEpochDays is the inverse of EpochDays.
func FromEpochDays(d int32) time.Time {
	return time.Unix(int64(d)*secondsPerDay, 0).UTC()
}

func toRow(r domain.PriceRecord) PriceRow {
	row := PriceRow{
		Date:     EpochDays(r.Date),
		State:    r.State,
		City:     r.City,
		MilkType: string(r.MilkType),
		Channel:  r.Channel,
	}
	if r.Price != nil {
		row.Price = domain.Float(*r.Price)
	}
	return row
}

func fromRow(row PriceRow) domain.PriceRecord {
	return domain.PriceRecord{
		Date:     FromEpochDays(row.Date),
		State:    row.State,
		City:     row.City,
		MilkType: domain.MilkType(row.MilkType),
		Channel:  row.Channel,
		Price:    row.Price,
	}
}

// ---------------------------------------------------------------------------
// Record normalization
// ---------------------------------------------------------------------------

// NormalizeRecords deduplicates records on (date, state, city, milk type,
// channel), keeping the last occurrence, and sorts them by that key. The
// result is independent of input order apart from which duplicate wins.
func NormalizeRecords(records []domain.PriceRecord) []PriceRow {
	type key struct {
		date int32
		k    domain.EntityKey
	}
	seen := make(map[key]int, len(records))
	rows := make([]PriceRow, 0, len(records))
	for _, r := range records {
		row := toRow(r)
		k := key{row.Date, r.Key()}
		if i, ok := seen[k]; ok {
			rows[i] = row
			continue
		}
		seen[k] = len(rows)
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return lessRow(rows[i], rows[j]) })
	return rows
}

func lessRow(a, b PriceRow) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	if a.State != b.State {
		return a.State < b.State
	}
	if a.City != b.City {
		return a.City < b.City
	}
	if a.MilkType != b.MilkType {
		return a.MilkType < b.MilkType
	}
	return a.Channel < b.Channel
}

// ---------------------------------------------------------------------------
// Parquet byte helpers
// ---------------------------------------------------------------------------

// EncodeParquet serializes rows into an in-memory Parquet file.
func EncodeParquet[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeParquetMeta is EncodeParquet with file key/value metadata, written in
// key order so equal inputs give equal bytes.
func EncodeParquetMeta[T any](rows []T, meta map[string]string) ([]byte, error) {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	opts := make([]parquet.WriterOption, 0, len(keys))
	for _, k := range keys {
		opts = append(opts, parquet.KeyValueMetadata(k, meta[k]))
	}
	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParquetMetadata returns the file key/value metadata entry for key.
func ParquetMetadata(data []byte, key string) (string, bool, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", false, err
	}
	v, ok := f.Lookup(key)
	return v, ok, nil
}

// DecodeParquet reads every row of an in-memory Parquet file.
func DecodeParquet[T any](data []byte) ([]T, error) {
	return parquet.Read[T](bytes.NewReader(data), int64(len(data)))
}

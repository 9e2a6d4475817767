package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"milkcast/internal/domain"
	"milkcast/internal/store"
)

// DatasetKey is where the materialized dataset lives in the backend.
const DatasetKey = "processed/full_dataset.parquet"

// Parquet file metadata keys.
const (
	metaGroupCols = "milkcast.group_cols"
	metaStart     = "milkcast.start"
	metaEnd       = "milkcast.end"
)

// datasetRow is the Parquet schema of a materialized dataset.
type datasetRow struct {
	Date       int32    `parquet:"date,date"`
	State      string   `parquet:"state"`
	City       string   `parquet:"city"`
	MilkType   string   `parquet:"milk_type"`
	Channel    string   `parquet:"channel"`
	Price      float64  `parquet:"price"`
	Year       int32    `parquet:"year"`
	Month      int32    `parquet:"month"`
	Day        int32    `parquet:"day"`
	Weekday    int32    `parquet:"weekday"`
	PriceLag1  *float64 `parquet:"price_lag1,optional"`
	PriceMean7 float64  `parquet:"price_mean7"`
}

// WriteDataset stores ds at DatasetKey, replacing the previous copy.
func WriteDataset(ctx context.Context, b store.Backend, ds *Dataset) error {
	rows := make([]datasetRow, len(ds.Rows))
	for i, r := range ds.Rows {
		rows[i] = datasetRow{
			Date:       store.EpochDays(r.Date),
			State:      r.State,
			City:       r.City,
			MilkType:   string(r.MilkType),
			Channel:    r.Channel,
			Price:      r.Price,
			Year:       int32(r.Year),
			Month:      int32(r.Month),
			Day:        int32(r.Day),
			Weekday:    int32(r.Weekday),
			PriceLag1:  r.PriceLag1,
			PriceMean7: r.PriceMean7,
		}
	}
	cols := ds.GroupCols
	if len(cols) == 0 {
		cols = domain.GroupColumns
	}
	meta := map[string]string{metaGroupCols: strings.Join(cols, ",")}
	if !ds.Start.IsZero() {
		meta[metaStart] = ds.Start.Format(domain.DateLayout)
	}
	if !ds.End.IsZero() {
		meta[metaEnd] = ds.End.Format(domain.DateLayout)
	}
	data, err := store.EncodeParquetMeta(rows, meta)
	if err != nil {
		return fmt.Errorf("encoding dataset: %w", err)
	}
	return b.Put(ctx, DatasetKey, data)
}

// ReadDataset loads the materialized dataset with the grouping and window it
// was built with. Files without that metadata report the full entity key
// and the range of their rows.
func ReadDataset(ctx context.Context, b store.Backend) (*Dataset, error) {
	data, err := b.Get(ctx, DatasetKey)
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: no materialized dataset at %s", domain.ErrInsufficientData, DatasetKey)
		}
		return nil, err
	}
	rows, err := store.DecodeParquet[datasetRow](data)
	if err != nil {
		return nil, fmt.Errorf("decoding dataset: %w", err)
	}

	groupCols, ok, err := store.ParquetMetadata(data, metaGroupCols)
	if err != nil {
		return nil, fmt.Errorf("reading dataset metadata: %w", err)
	}
	ds := &Dataset{GroupCols: append([]string(nil), domain.GroupColumns...)}
	if ok && groupCols != "" {
		ds.GroupCols = strings.Split(groupCols, ",")
	}
	ds.Rows = make([]Row, len(rows))
	for i, r := range rows {
		d := store.FromEpochDays(r.Date)
		ds.Rows[i] = Row{
			Date:       d,
			State:      r.State,
			City:       r.City,
			MilkType:   domain.MilkType(r.MilkType),
			Channel:    r.Channel,
			Price:      r.Price,
			Year:       int(r.Year),
			Month:      int(r.Month),
			Day:        int(r.Day),
			Weekday:    int(r.Weekday),
			PriceLag1:  r.PriceLag1,
			PriceMean7: r.PriceMean7,
		}
		if ds.Start.IsZero() || d.Before(ds.Start) {
			ds.Start = d
		}
		if d.After(ds.End) {
			ds.End = d
		}
	}
	if start, ok := metaDay(data, metaStart); ok {
		ds.Start = start
	}
	if end, ok := metaDay(data, metaEnd); ok {
		ds.End = end
	}
	return ds, nil
}

func metaDay(data []byte, key string) (time.Time, bool) {
	v, ok, err := store.ParquetMetadata(data, key)
	if err != nil || !ok {
		return time.Time{}, false
	}
	d, err := time.Parse(domain.DateLayout, v)
	return d, err == nil
}

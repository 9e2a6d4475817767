package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"milkcast/internal/domain"
	"milkcast/internal/util"
)

const partitionSuffix = "-data.parquet"

// PartitionRef identifies one stored partition.
type PartitionRef struct {
	Granularity domain.Granularity
	Date        time.Time
	Key         string
}

// WriteInfo describes a partition that was written.
type WriteInfo struct {
	Key      string
	Rows     int
	Checksum string // hex sha256 of the encoded file
}

// List walks are retried as a whole with exponential backoff.
const (
	DefaultListAttempts = 3
	DefaultListBackoff  = time.Second
)

// PartitionStore reads and writes date-partitioned Parquet files through a
// Backend. Daily partitions hold one day, monthly partitions one month.
type PartitionStore struct {
	backend      Backend
	listAttempts int
	listBackoff  time.Duration
}

// NewPartitionStore wraps a Backend.
func NewPartitionStore(b Backend) *PartitionStore {
	return &PartitionStore{backend: b, listAttempts: DefaultListAttempts, listBackoff: DefaultListBackoff}
}

// SetListRetry changes how List retries a failed walk. attempts below one
// means a single attempt.
func (s *PartitionStore) SetListRetry(attempts int, backoff time.Duration) {
	s.listAttempts, s.listBackoff = attempts, backoff
}

// Backend returns the underlying object store.
func (s *PartitionStore) Backend() Backend {
	return s.backend
}

// PartitionKey returns the deterministic object key of a partition:
//
//	daily/YYYY/MM/YYYY-MM-DD-data.parquet
//	monthly/YYYY/MM/YYYY-MM-data.parquet
func PartitionKey(g domain.Granularity, date time.Time) (string, error) {
	switch g {
	case domain.Daily:
		return fmt.Sprintf("%s/%04d/%02d/%s%s", g, date.Year(), date.Month(), date.Format(domain.DateLayout), partitionSuffix), nil
	case domain.Monthly:
		return fmt.Sprintf("%s/%04d/%02d/%s%s", g, date.Year(), date.Month(), date.Format("2006-01"), partitionSuffix), nil
	default:
		return "", fmt.Errorf("%w %q", domain.ErrUnknownGranularity, g)
	}
}

// ParsePartitionKey recovers the granularity and date from a partition key.
// It returns false for keys that are not partitions.
func ParsePartitionKey(key string) (PartitionRef, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 || !strings.HasSuffix(parts[3], partitionSuffix) {
		return PartitionRef{}, false
	}
	g, err := domain.ParseGranularity(parts[0])
	if err != nil {
		return PartitionRef{}, false
	}
	stem := strings.TrimSuffix(parts[3], partitionSuffix)
	layout := domain.DateLayout
	if g == domain.Monthly {
		layout = "2006-01"
	}
	date, err := time.Parse(layout, stem)
	if err != nil {
		return PartitionRef{}, false
	}
	if canonical, _ := PartitionKey(g, date); canonical != key {
		return PartitionRef{}, false
	}
	return PartitionRef{Granularity: g, Date: date, Key: key}, true
}

// periodStart normalizes date to the first instant of its partition period.
func periodStart(g domain.Granularity, date time.Time) time.Time {
	if g == domain.Monthly {
		return domain.MonthStart(date)
	}
	return domain.Day(date)
}

// Write stores records as the partition for date, replacing any previous
// content. Records are deduplicated and sorted first, so writing the same
// records twice yields byte-identical objects. Every record must fall in
// the partition's period.
func (s *PartitionStore) Write(ctx context.Context, g domain.Granularity, date time.Time, records []domain.PriceRecord) (WriteInfo, error) {
	key, err := PartitionKey(g, date)
	if err != nil {
		return WriteInfo{}, err
	}
	start := periodStart(g, date)
	for _, r := range records {
		if !periodStart(g, r.Date).Equal(start) {
			return WriteInfo{}, fmt.Errorf("record dated %s does not belong to %s partition %s",
				r.Date.Format(domain.DateLayout), g, key)
		}
	}

	rows := NormalizeRecords(records)
	data, err := EncodeParquet(rows)
	if err != nil {
		return WriteInfo{}, fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.backend.Put(ctx, key, data); err != nil {
		return WriteInfo{}, err
	}
	sum := sha256.Sum256(data)
	return WriteInfo{Key: key, Rows: len(rows), Checksum: hex.EncodeToString(sum[:])}, nil
}

// Read returns the records of one partition. A missing partition yields a
// *domain.PartitionNotFoundError.
func (s *PartitionStore) Read(ctx context.Context, g domain.Granularity, date time.Time) ([]domain.PriceRecord, error) {
	key, err := PartitionKey(g, date)
	if err != nil {
		return nil, err
	}
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			return nil, &domain.PartitionNotFoundError{Granularity: g, Date: periodStart(g, date), Key: key}
		}
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	rows, err := DecodeParquet[PriceRow](data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	out := make([]domain.PriceRecord, len(rows))
	for i, row := range rows {
		out[i] = fromRow(row)
	}
	return out, nil
}

// Exists reports whether the partition for date has been written. Backend
// failures are returned, never folded into false.
func (s *PartitionStore) Exists(ctx context.Context, g domain.Granularity, date time.Time) (bool, error) {
	key, err := PartitionKey(g, date)
	if err != nil {
		return false, err
	}
	return s.backend.Exists(ctx, key)
}

// List returns every partition of granularity g ordered by date. Unrelated
// objects under the prefix are ignored. A failed walk is restarted from the
// beginning; cancellation is not retried.
func (s *PartitionStore) List(ctx context.Context, g domain.Granularity) ([]PartitionRef, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("%w %q", domain.ErrUnknownGranularity, g)
	}
	var refs []PartitionRef
	err := util.Retry(ctx, s.listAttempts, s.listBackoff, func() error {
		refs = refs[:0]
		err := s.backend.List(ctx, string(g)+"/", func(key string) error {
			if ref, ok := ParsePartitionKey(key); ok && ref.Granularity == g {
				refs = append(refs, ref)
			}
			return nil
		})
		if err != nil && ctx.Err() != nil {
			return util.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Date.Before(refs[j].Date) })
	return refs, nil
}

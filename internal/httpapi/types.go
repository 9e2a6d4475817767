// Package httpapi serves price predictions and datalake listings over HTTP.
package httpapi

import (
	"time"

	"milkcast/internal/domain"
	"milkcast/internal/model"
	"milkcast/internal/store"
)

// PredictResponse is the body returned by POST /predict.
type PredictResponse struct {
	Predictions    []float64 `json:"predictions"`
	PredictedPrice float64   `json:"predicted_price"`
}

// PartitionJSON describes one stored partition.
type PartitionJSON struct {
	Granularity string `json:"granularity"`
	Date        string `json:"date"`
	Key         string `json:"key"`
}

// ModelJSON describes the promoted model.
type ModelJSON struct {
	RunID          string    `json:"run_id"`
	Trainer        string    `json:"trainer"`
	ReferenceMonth string    `json:"reference_month"`
	RMSE           float64   `json:"rmse"`
	PromotedAt     time.Time `json:"promoted_at"`
}

// IngestionJSON is one ledger entry.
type IngestionJSON struct {
	Key           string    `json:"key"`
	Granularity   string    `json:"granularity"`
	Date          string    `json:"date"`
	Rows          int       `json:"rows"`
	SkippedBlocks int       `json:"skipped_blocks"`
	Checksum      string    `json:"checksum"`
	RunID         string    `json:"run_id"`
	IngestedAt    time.Time `json:"ingested_at"`
}

func partitionJSON(ref store.PartitionRef) PartitionJSON {
	date := ref.Date.Format(domain.DateLayout)
	if ref.Granularity == domain.Monthly {
		date = ref.Date.Format("2006-01")
	}
	return PartitionJSON{Granularity: string(ref.Granularity), Date: date, Key: ref.Key}
}

func modelJSON(m *model.Metadata) ModelJSON {
	return ModelJSON{
		RunID:          m.RunID,
		Trainer:        m.Trainer,
		ReferenceMonth: m.ReferenceMonth,
		RMSE:           m.RMSE,
		PromotedAt:     m.PromotedAt,
	}
}

func ingestionJSON(in store.Ingestion) IngestionJSON {
	return IngestionJSON{
		Key:           in.Key,
		Granularity:   string(in.Granularity),
		Date:          in.Date.Format(domain.DateLayout),
		Rows:          in.Rows,
		SkippedBlocks: in.SkippedBlocks,
		Checksum:      in.Checksum,
		RunID:         in.RunID,
		IngestedAt:    in.IngestedAt,
	}
}

package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"milkcast/internal/domain"
	"milkcast/internal/store"
)

// PromotedKey is where the promoted model lives in the backend.
const PromotedKey = "promoted/daily_model.json"

// ErrNoPromotedModel is returned by Load before any model was promoted.
var ErrNoPromotedModel = errors.New("no promoted model")

// Metadata describes a promoted model.
type Metadata struct {
	RunID          string    `json:"run_id"`
	Trainer        string    `json:"trainer"`
	ReferenceMonth string    `json:"reference_month"` // YYYY-MM
	RMSE           float64   `json:"rmse"`
	PromotedAt     time.Time `json:"promoted_at"`
}

type promotedDoc struct {
	Metadata
	Model json.RawMessage `json:"model"`
}

// Registry stores the promoted model as a single JSON document.
type Registry struct {
	backend store.Backend
}

// NewRegistry creates a Registry over b.
func NewRegistry(b store.Backend) *Registry {
	return &Registry{backend: b}
}

// Promote replaces the promoted model with p.
func (r *Registry) Promote(ctx context.Context, meta Metadata, p Predictor) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding %s model: %w", p.Kind(), err)
	}
	meta.Trainer = p.Kind()
	if meta.PromotedAt.IsZero() {
		meta.PromotedAt = time.Now().UTC()
	}
	doc, err := json.MarshalIndent(promotedDoc{Metadata: meta, Model: body}, "", "  ")
	if err != nil {
		return err
	}
	return r.backend.Put(ctx, PromotedKey, doc)
}

// Load returns the promoted model and its metadata.
func (r *Registry) Load(ctx context.Context) (*Metadata, Predictor, error) {
	data, err := r.backend.Get(ctx, PromotedKey)
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			return nil, nil, ErrNoPromotedModel
		}
		return nil, nil, err
	}
	var doc promotedDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decoding %s: %w", PromotedKey, err)
	}

	var p Predictor
	switch doc.Trainer {
	case GroupMean{}.Name():
		p = &GroupMeanModel{}
	case Ridge{}.Name():
		p = &RidgeModel{}
	default:
		return nil, nil, fmt.Errorf("unknown model kind %q", doc.Trainer)
	}
	if err := json.Unmarshal(doc.Model, p); err != nil {
		return nil, nil, fmt.Errorf("decoding %s model: %w", doc.Trainer, err)
	}
	meta := doc.Metadata
	return &meta, p, nil
}

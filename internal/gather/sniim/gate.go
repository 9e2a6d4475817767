package sniim

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"milkcast/internal/domain"
	"milkcast/internal/metrics"
	"milkcast/internal/store"
)

// Gate decides whether a day's report should be ingested.
type Gate struct {
	store   *store.PartitionStore
	client  *Client
	metrics *metrics.Recorder
	log     *slog.Logger
}

// NewGate creates a Gate. rec may be nil.
func NewGate(ps *store.PartitionStore, client *Client, rec *metrics.Recorder, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{store: ps, client: client, metrics: rec, log: logger}
}

// ShouldIngest reports whether date's report is published and not yet
// stored. The store is consulted first; the upstream is asked only when
// no daily partition exists. A 404 or 410 means not yet published. Any
// other non-200 status, or a transport failure, is returned as a
// *domain.AvailabilityCheckError rather than false.
func (g *Gate) ShouldIngest(ctx context.Context, date time.Time) (bool, error) {
	date = domain.Day(date)
	log := g.log.With("date", date.Format(domain.DateLayout))

	stored, err := g.store.Exists(ctx, domain.Daily, date)
	if err != nil {
		g.metrics.AvailabilityChecked("error")
		return false, err
	}
	if stored {
		log.Info("partition already stored")
		g.metrics.AvailabilityChecked("stored")
		return false, nil
	}

	url := g.client.URL(date)
	status, err := g.client.Head(ctx, date)
	if err != nil {
		g.metrics.AvailabilityChecked("error")
		return false, &domain.AvailabilityCheckError{URL: url, Err: err}
	}
	switch status {
	case http.StatusOK:
		log.Info("report available", "url", url)
		g.metrics.AvailabilityChecked("ingest")
		return true, nil
	case http.StatusNotFound, http.StatusGone:
		log.Info("report not published", "url", url, "status", status)
		g.metrics.AvailabilityChecked("unpublished")
		return false, nil
	default:
		g.metrics.AvailabilityChecked("error")
		return false, &domain.AvailabilityCheckError{URL: url, Status: status}
	}
}

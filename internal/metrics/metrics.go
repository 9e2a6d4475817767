// Package metrics exposes pipeline counters through a Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the milkcast collectors. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	partitionsWritten  *prometheus.CounterVec
	recordsExtracted   prometheus.Counter
	blocksSkipped      prometheus.Counter
	availabilityChecks *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	predictions        prometheus.Counter
	dataDrift          prometheus.Gauge
}

// NewRecorder creates a Recorder with its own registry, including the Go
// runtime and process collectors.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{
		registry: registry,
		partitionsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "milkcast_partitions_written_total",
			Help: "Partitions written by granularity.",
		}, []string{"granularity"}),
		recordsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "milkcast_records_extracted_total",
			Help: "Price records extracted from reports.",
		}),
		blocksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "milkcast_blocks_skipped_total",
			Help: "Report blocks dropped because their header could not be read.",
		}),
		availabilityChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "milkcast_availability_checks_total",
			Help: "Availability gate decisions by result (ingest, stored, unpublished, error).",
		}, []string{"result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "milkcast_stage_duration_seconds",
			Help:    "Duration of pipeline stages.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage", "status"}),
		predictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "milkcast_predictions_total",
			Help: "Predictions served or generated.",
		}),
		dataDrift: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "milkcast_data_drift_share",
			Help: "Share of drifted columns in the latest data drift report.",
		}),
	}

	registry.MustRegister(r.partitionsWritten)
	registry.MustRegister(r.recordsExtracted)
	registry.MustRegister(r.blocksSkipped)
	registry.MustRegister(r.availabilityChecks)
	registry.MustRegister(r.stageDuration)
	registry.MustRegister(r.predictions)
	registry.MustRegister(r.dataDrift)
	return r
}

// Registry returns the underlying Prometheus registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// PartitionWritten counts one written partition.
func (r *Recorder) PartitionWritten(granularity string) {
	if r == nil {
		return
	}
	r.partitionsWritten.WithLabelValues(granularity).Inc()
}

// Extracted counts records and skipped blocks from one report.
func (r *Recorder) Extracted(records, skipped int) {
	if r == nil {
		return
	}
	r.recordsExtracted.Add(float64(records))
	r.blocksSkipped.Add(float64(skipped))
}

// AvailabilityChecked counts one gate decision.
func (r *Recorder) AvailabilityChecked(result string) {
	if r == nil {
		return
	}
	r.availabilityChecks.WithLabelValues(result).Inc()
}

// Predicted counts n predictions.
func (r *Recorder) Predicted(n int) {
	if r == nil {
		return
	}
	r.predictions.Add(float64(n))
}

// DataDrift records the latest drifted-column share.
func (r *Recorder) DataDrift(share float64) {
	if r == nil {
		return
	}
	r.dataDrift.Set(share)
}

// ObserveStage records how long a stage took; call with the stage's final
// error.
func (r *Recorder) ObserveStage(stage string, start time.Time, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.stageDuration.WithLabelValues(stage, status).Observe(time.Since(start).Seconds())
}

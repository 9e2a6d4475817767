package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"milkcast/internal/domain"
	"milkcast/internal/metrics"
	"milkcast/internal/model"
	"milkcast/internal/store"
)

const maxRequestBytes = 1 << 20

// Server serves the prediction API.
type Server struct {
	registry   *model.Registry
	partitions *store.PartitionStore
	ledger     *store.Ledger // nil when no ledger is configured
	metrics    *metrics.Recorder
	log        *slog.Logger

	mu        sync.RWMutex
	meta      *model.Metadata
	predictor model.Predictor
}

// NewServer creates a Server. ledger and rec may be nil.
func NewServer(registry *model.Registry, ps *store.PartitionStore, ledger *store.Ledger, rec *metrics.Recorder, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{registry: registry, partitions: ps, ledger: ledger, metrics: rec, log: log}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("POST /predict", s.handlePredict)
	mux.HandleFunc("GET /api/model", s.handleModel)
	mux.HandleFunc("POST /api/model/reload", s.handleReload)
	mux.HandleFunc("GET /api/partitions/{granularity}", s.handlePartitions)
	mux.HandleFunc("GET /api/ingestions/{granularity}", s.handleIngestions)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Model cache
// ---------------------------------------------------------------------------

// current returns the cached promoted model, loading it on first use.
func (s *Server) current(r *http.Request) (*model.Metadata, model.Predictor, error) {
	s.mu.RLock()
	meta, p := s.meta, s.predictor
	s.mu.RUnlock()
	if p != nil {
		return meta, p, nil
	}
	return s.reload(r)
}

func (s *Server) reload(r *http.Request) (*model.Metadata, model.Predictor, error) {
	meta, p, err := s.registry.Load(r.Context())
	if err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	s.meta, s.predictor = meta, p
	s.mu.Unlock()
	s.log.Info("model loaded", "trainer", meta.Trainer, "run_id", meta.RunID, "reference_month", meta.ReferenceMonth)
	return meta, p, nil
}

func (s *Server) writeModelError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrNoPromotedModel) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.log.Error("loading model", "error", err)
	writeError(w, http.StatusInternalServerError, "loading model failed")
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("milkcast prediction service is running\n"))
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	inputs, err := model.DecodeInputs(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(inputs) == 0 {
		writeError(w, http.StatusBadRequest, "no feature records")
		return
	}

	_, p, err := s.current(r)
	if err != nil {
		s.writeModelError(w, err)
		return
	}
	xs := make([]model.FeatureVector, len(inputs))
	for i, in := range inputs {
		xs[i] = in.Vector()
	}
	start := time.Now()
	preds, err := p.Predict(r.Context(), xs)
	s.metrics.ObserveStage("serve-predict", start, err)
	if err != nil {
		s.log.Error("predicting", "error", err)
		writeError(w, http.StatusInternalServerError, "prediction failed")
		return
	}
	s.metrics.Predicted(len(preds))
	writeJSON(w, PredictResponse{Predictions: preds, PredictedPrice: preds[0]})
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	meta, _, err := s.current(r)
	if err != nil {
		s.writeModelError(w, err)
		return
	}
	writeJSON(w, modelJSON(meta))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	meta, _, err := s.reload(r)
	if err != nil {
		s.writeModelError(w, err)
		return
	}
	writeJSON(w, modelJSON(meta))
}

func (s *Server) handlePartitions(w http.ResponseWriter, r *http.Request) {
	g, err := domain.ParseGranularity(r.PathValue("granularity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	refs, err := s.partitions.List(r.Context(), g)
	if err != nil {
		s.log.Error("listing partitions", "granularity", g, "error", err)
		writeError(w, http.StatusInternalServerError, "listing partitions failed")
		return
	}
	out := make([]PartitionJSON, 0, len(refs))
	for _, ref := range refs {
		out = append(out, partitionJSON(ref))
	}
	writeJSON(w, out)
}

// handleIngestions lists ledger entries, optionally from ?since=YYYY-MM-DD.
func (s *Server) handleIngestions(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusNotFound, "no ledger configured")
		return
	}
	g, err := domain.ParseGranularity(r.PathValue("granularity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		if since, err = time.Parse(domain.DateLayout, v); err != nil {
			writeError(w, http.StatusBadRequest, "since: want YYYY-MM-DD")
			return
		}
	}
	entries, err := s.ledger.ListIngestions(r.Context(), g, since)
	if err != nil {
		s.log.Error("listing ingestions", "error", err)
		writeError(w, http.StatusInternalServerError, "listing ingestions failed")
		return
	}
	out := make([]IngestionJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, ingestionJSON(e))
	}
	writeJSON(w, out)
}

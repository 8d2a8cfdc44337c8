// Package handlers exposes the engine over HTTP: ingest, prediction,
// training, pattern analysis, stats, and health.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"soundsense-ml/engine"
	"soundsense-ml/models"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	anomaliesDetectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anomalies_detected_total",
			Help: "Total number of anomalous readings flagged",
		},
	)

	trainingRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_runs_total",
			Help: "Total number of training runs by outcome",
		},
		[]string{"status"},
	)
)

// ReadingSource is the database surface the handlers consume.
type ReadingSource interface {
	FetchRecent(ctx context.Context, limit, hoursBack int) ([]models.Reading, error)
	FetchByPatient(ctx context.Context, patientID string, limit int) ([]models.Reading, error)
	Insert(ctx context.Context, r *models.Reading) (uuid.UUID, error)
	Stats(ctx context.Context) (*models.DBStats, error)
	TrainingDataset(ctx context.Context) ([]models.TrainingSample, error)
	Ping(ctx context.Context) error
}

// SummaryCache caches analysis summaries between requests.
type SummaryCache interface {
	GetSummary(ctx context.Context, limit, hoursBack int) (*models.AnalysisSummary, error)
	SaveSummary(ctx context.Context, limit, hoursBack int, summary *models.AnalysisSummary) error
	Invalidate(ctx context.Context) error
}

const (
	defaultLimit = 100
	maxLimit     = 1000
)

type Handler struct {
	readings ReadingSource
	cache    SummaryCache
	engine   *engine.Engine
	logger   *zap.Logger
}

func NewHandler(readings ReadingSource, summaries SummaryCache, eng *engine.Engine, logger *zap.Logger) *Handler {
	return &Handler{
		readings: readings,
		cache:    summaries,
		engine:   eng,
		logger:   logger,
	}
}

// Register wires all routes onto the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HandleHealth).Methods("GET")
	r.HandleFunc("/readings", h.HandleIngest).Methods("POST")
	r.HandleFunc("/readings/{patient_id}", h.HandleReadingsByPatient).Methods("GET")
	r.HandleFunc("/predict", h.HandlePredict).Methods("POST")
	r.HandleFunc("/train", h.HandleTrain).Methods("POST")
	r.HandleFunc("/analysis", h.HandleAnalyze).Methods("GET")
	r.HandleFunc("/stats", h.HandleStats).Methods("GET")
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbConnected := h.readings.Ping(ctx) == nil
	health := h.engine.Health()

	status := "healthy"
	if !dbConnected {
		status = "degraded"
	}

	h.respond(w, r, http.StatusOK, map[string]interface{}{
		"status":                  status,
		"database_connected":      dbConnected,
		"classifier_loaded":       health.ClassifierLoaded,
		"anomaly_detector_loaded": health.AnomalyDetectorLoaded,
		"training":                health.Training,
	})
}

func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	defer h.observe(r, time.Now())

	var reading models.Reading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		h.fail(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := reading.Validate(); err != nil {
		h.fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.readings.Insert(r.Context(), &reading)
	if err != nil {
		h.logger.Error("insert failed", zap.Error(err))
		h.fail(w, r, http.StatusInternalServerError, "failed to store reading")
		return
	}

	// Freshly ingested data invalidates cached summaries.
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Warn("cache invalidation failed", zap.Error(err))
	}

	h.respond(w, r, http.StatusAccepted, map[string]interface{}{
		"id":         id,
		"patient_id": reading.PatientID,
		"device_id":  reading.DeviceID,
	})
}

func (h *Handler) HandleReadingsByPatient(w http.ResponseWriter, r *http.Request) {
	defer h.observe(r, time.Now())

	patientID := mux.Vars(r)["patient_id"]
	limit := queryInt(r, "limit", defaultLimit)

	readings, err := h.readings.FetchByPatient(r.Context(), patientID, limit)
	if err != nil {
		h.logger.Error("patient fetch failed", zap.Error(err))
		h.fail(w, r, http.StatusInternalServerError, "failed to fetch readings")
		return
	}
	if readings == nil {
		readings = []models.Reading{}
	}

	h.respond(w, r, http.StatusOK, map[string]interface{}{
		"patient_id": patientID,
		"readings":   readings,
	})
}

type predictRequest struct {
	Limit     int `json:"limit"`
	HoursBack int `json:"hours_back"`
}

func (h *Handler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	defer h.observe(r, time.Now())

	req := predictRequest{Limit: defaultLimit}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.fail(w, r, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	req.Limit = clampLimit(req.Limit)

	readings, err := h.readings.FetchRecent(r.Context(), req.Limit, req.HoursBack)
	if err != nil {
		h.logger.Error("fetch failed", zap.Error(err))
		h.fail(w, r, http.StatusInternalServerError, "failed to fetch readings")
		return
	}

	scored, err := h.engine.Predict(readings)
	if err != nil {
		h.failFromError(w, r, err)
		return
	}

	anomalies := 0
	for _, s := range scored {
		if s.IsAnomaly {
			anomalies++
		}
	}
	anomaliesDetectedTotal.Add(float64(anomalies))

	summary, err := engine.Analyze(scored)
	if err != nil {
		h.failFromError(w, r, err)
		return
	}

	h.respond(w, r, http.StatusOK, map[string]interface{}{
		"total_readings": len(scored),
		"predictions":    scored,
		"summary":        summary,
	})
}

type trainRequest struct {
	MinSamples    int     `json:"min_samples"`
	Contamination float64 `json:"contamination"`
}

func (h *Handler) HandleTrain(w http.ResponseWriter, r *http.Request) {
	defer h.observe(r, time.Now())

	req := trainRequest{
		MinSamples:    engine.DefaultMinSamples,
		Contamination: engine.DefaultContamination,
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.fail(w, r, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if req.MinSamples <= 0 {
		req.MinSamples = engine.DefaultMinSamples
	}
	if req.Contamination <= 0 || req.Contamination >= 1 {
		req.Contamination = engine.DefaultContamination
	}

	if h.engine.Health().Training {
		h.fail(w, r, http.StatusConflict, engine.ErrTrainingInProgress.Error())
		return
	}

	samples, err := h.readings.TrainingDataset(r.Context())
	if err != nil {
		h.logger.Error("training dataset failed", zap.Error(err))
		h.fail(w, r, http.StatusInternalServerError, "failed to build training dataset")
		return
	}

	if len(samples) < req.MinSamples {
		insufficient := &models.InsufficientDataError{Have: len(samples), Need: req.MinSamples}
		h.fail(w, r, http.StatusBadRequest, insufficient.Error())
		return
	}

	// Training runs in the background; callers poll /health or /stats.
	go func() {
		result, err := h.engine.Train(samples, req.MinSamples, req.Contamination)
		if err != nil {
			trainingRunsTotal.WithLabelValues("failed").Inc()
			h.logger.Error("background training failed", zap.Error(err))
			return
		}
		trainingRunsTotal.WithLabelValues("completed").Inc()
		h.logger.Info("background training completed",
			zap.Int("samples_used", result.SamplesUsed),
			zap.Float64("test_accuracy", result.TestAccuracy))
	}()

	h.respond(w, r, http.StatusAccepted, map[string]interface{}{
		"status":       "training started",
		"samples_used": len(samples),
	})
}

func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	defer h.observe(r, time.Now())

	limit := clampLimit(queryInt(r, "limit", maxLimit))
	hoursBack := queryInt(r, "hours_back", 0)

	if cached, err := h.cache.GetSummary(r.Context(), limit, hoursBack); err != nil {
		h.logger.Warn("summary cache read failed", zap.Error(err))
	} else if cached != nil {
		h.respond(w, r, http.StatusOK, map[string]interface{}{"analysis": cached, "cached": true})
		return
	}

	readings, err := h.readings.FetchRecent(r.Context(), limit, hoursBack)
	if err != nil {
		h.logger.Error("fetch failed", zap.Error(err))
		h.fail(w, r, http.StatusInternalServerError, "failed to fetch readings")
		return
	}

	scored, err := h.engine.Predict(readings)
	if err != nil {
		h.failFromError(w, r, err)
		return
	}

	summary, err := engine.Analyze(scored)
	if err != nil {
		h.failFromError(w, r, err)
		return
	}

	if err := h.cache.SaveSummary(r.Context(), limit, hoursBack, summary); err != nil {
		h.logger.Warn("summary cache write failed", zap.Error(err))
	}

	h.respond(w, r, http.StatusOK, map[string]interface{}{"analysis": summary, "cached": false})
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	defer h.observe(r, time.Now())

	stats, err := h.readings.Stats(r.Context())
	if err != nil {
		h.logger.Error("stats query failed", zap.Error(err))
		h.fail(w, r, http.StatusInternalServerError, "failed to query statistics")
		return
	}

	resp := map[string]interface{}{
		"database": stats,
		"models":   h.engine.Health(),
	}
	if last := h.engine.LastTraining(); last != nil {
		resp["last_training"] = last
	}

	h.respond(w, r, http.StatusOK, resp)
}

// failFromError maps engine errors onto HTTP statuses.
func (h *Handler) failFromError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *models.InsufficientDataError
	var persistence *models.PersistenceError

	switch {
	case errors.Is(err, models.ErrEmptyInput):
		h.fail(w, r, http.StatusNotFound, "no readings found")
	case errors.As(err, &insufficient):
		h.fail(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrTrainingInProgress):
		h.fail(w, r, http.StatusConflict, err.Error())
	case errors.As(err, &persistence):
		h.fail(w, r, http.StatusInternalServerError, err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		h.fail(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("response encoding failed", zap.Error(err))
	}
	httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(status)).Inc()
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.respond(w, r, status, map[string]string{"error": message})
}

func (h *Handler) observe(r *http.Request, start time.Time) {
	requestDurationSeconds.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"soundsense-ml/engine"
	"soundsense-ml/models"
	"soundsense-ml/store"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	readings []models.Reading
	samples  []models.TrainingSample
	stats    *models.DBStats
	pingErr  error
	inserted []models.Reading
}

func (f *fakeSource) FetchRecent(_ context.Context, limit, _ int) ([]models.Reading, error) {
	if limit < len(f.readings) {
		return f.readings[:limit], nil
	}
	return f.readings, nil
}

func (f *fakeSource) FetchByPatient(_ context.Context, patientID string, _ int) ([]models.Reading, error) {
	var out []models.Reading
	for _, r := range f.readings {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) Insert(_ context.Context, r *models.Reading) (uuid.UUID, error) {
	f.inserted = append(f.inserted, *r)
	return uuid.New(), nil
}

func (f *fakeSource) Stats(_ context.Context) (*models.DBStats, error) {
	if f.stats != nil {
		return f.stats, nil
	}
	return &models.DBStats{TotalReadings: len(f.readings)}, nil
}

func (f *fakeSource) TrainingDataset(_ context.Context) ([]models.TrainingSample, error) {
	return f.samples, nil
}

func (f *fakeSource) Ping(_ context.Context) error {
	return f.pingErr
}

type fakeCache struct {
	entries map[string]*models.AnalysisSummary
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]*models.AnalysisSummary{}}
}

func (f *fakeCache) key(limit, hoursBack int) string {
	return fmt.Sprintf("%d:%d", limit, hoursBack)
}

func (f *fakeCache) GetSummary(_ context.Context, limit, hoursBack int) (*models.AnalysisSummary, error) {
	return f.entries[f.key(limit, hoursBack)], nil
}

func (f *fakeCache) SaveSummary(_ context.Context, limit, hoursBack int, summary *models.AnalysisSummary) error {
	f.entries[f.key(limit, hoursBack)] = summary
	return nil
}

func (f *fakeCache) Invalidate(_ context.Context) error {
	f.entries = map[string]*models.AnalysisSummary{}
	return nil
}

func testReadings(values ...float64) []models.Reading {
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	readings := make([]models.Reading, len(values))
	for i, v := range values {
		readings[i] = models.Reading{
			ID:        uuid.New(),
			PatientID: "patient-1",
			DeviceID:  "sensor-1",
			Code:      "sound-level",
			Value:     v,
			Unit:      "mV",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return readings
}

func testSamples(n int) []models.TrainingSample {
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	bands := []float64{100, 250, 400, 600, 800}
	samples := make([]models.TrainingSample, n)
	for i := range samples {
		v := bands[i%len(bands)] + float64(i%20)
		label := models.CategoryQuiet
		switch {
		case v >= 700:
			label = models.CategoryConcerning
		case v >= 500:
			label = models.CategoryLoud
		case v >= 300:
			label = models.CategoryModerate
		case v >= 187:
			label = models.CategoryNormal
		}
		samples[i] = models.TrainingSample{Value: v, Timestamp: base.Add(time.Duration(i) * time.Minute), Label: label}
	}
	return samples
}

func newTestServer(t *testing.T, source *fakeSource) (*mux.Router, *engine.Engine, *fakeCache) {
	modelStore, err := store.NewModelStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	eng := engine.NewEngine(modelStore, zap.NewNop())

	cache := newFakeCache()
	handler := NewHandler(source, cache, eng, zap.NewNop())

	r := mux.NewRouter()
	handler.Register(r)
	return r, eng, cache
}

func doRequest(r *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body == nil {
		req.ContentLength = 0
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	r, _, _ := newTestServer(t, &fakeSource{})

	rec := doRequest(r, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["database_connected"])
	assert.Equal(t, false, body["classifier_loaded"])
	assert.Equal(t, false, body["anomaly_detector_loaded"])
}

func TestHealth_DegradedWhenDatabaseDown(t *testing.T) {
	r, _, _ := newTestServer(t, &fakeSource{pingErr: fmt.Errorf("connection refused")})

	rec := doRequest(r, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["status"])
}

func TestPredict_NoReadingsIs404(t *testing.T) {
	r, _, _ := newTestServer(t, &fakeSource{})

	rec := doRequest(r, "POST", "/predict", map[string]int{"limit": 100})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPredict_RuleOnlyWithoutModels(t *testing.T) {
	r, _, _ := newTestServer(t, &fakeSource{readings: testReadings(120, 340, 710)})

	rec := doRequest(r, "POST", "/predict", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, float64(3), body["total_readings"])

	predictions := body["predictions"].([]interface{})
	require.Len(t, predictions, 3)

	first := predictions[0].(map[string]interface{})
	assert.Equal(t, "quiet", first["category_rule"])
	assert.Nil(t, first["category_ml"])
	assert.Equal(t, float64(0), first["category_confidence"])
	assert.Equal(t, false, first["is_anomaly"])
}

func TestTrain_InsufficientDataIs400(t *testing.T) {
	r, _, _ := newTestServer(t, &fakeSource{samples: testSamples(50)})

	rec := doRequest(r, "POST", "/train", map[string]int{"min_samples": 100})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "insufficient training data")
}

func TestTrain_RunsInBackground(t *testing.T) {
	r, eng, _ := newTestServer(t, &fakeSource{samples: testSamples(150)})

	rec := doRequest(r, "POST", "/train", map[string]int{"min_samples": 100})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, float64(150), decode(t, rec)["samples_used"])

	require.Eventually(t, func() bool {
		return eng.LastTraining() != nil
	}, 5*time.Second, 10*time.Millisecond, "background training must complete")

	health := eng.Health()
	assert.True(t, health.ClassifierLoaded)
	assert.True(t, health.AnomalyDetectorLoaded)
}

func TestAnalyze_PopulatesAndHitsCache(t *testing.T) {
	r, _, _ := newTestServer(t, &fakeSource{readings: testReadings(120, 340, 710)})

	first := doRequest(r, "GET", "/analysis?limit=100", nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, false, decode(t, first)["cached"])

	second := doRequest(r, "GET", "/analysis?limit=100", nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, true, decode(t, second)["cached"])
}

func TestAnalyze_NoReadingsIs404(t *testing.T) {
	r, _, _ := newTestServer(t, &fakeSource{})

	rec := doRequest(r, "GET", "/analysis", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngest(t *testing.T) {
	source := &fakeSource{}
	r, _, _ := newTestServer(t, source)

	rec := doRequest(r, "POST", "/readings", map[string]interface{}{
		"patient_id": "patient-1",
		"device_id":  "sensor-1",
		"code":       "sound-level",
		"value":      250.0,
		"unit":       "mV",
		"timestamp":  "2025-06-02T10:00:00Z",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, source.inserted, 1)
	assert.Equal(t, 250.0, source.inserted[0].Value)
}

func TestIngest_InvalidReadingIs400(t *testing.T) {
	r, _, _ := newTestServer(t, &fakeSource{})

	rec := doRequest(r, "POST", "/readings", map[string]interface{}{
		"device_id": "sensor-1",
		"value":     250.0,
		"timestamp": "2025-06-02T10:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "patient_id")
}

func TestReadingsByPatient(t *testing.T) {
	r, _, _ := newTestServer(t, &fakeSource{readings: testReadings(120, 340)})

	rec := doRequest(r, "GET", "/readings/patient-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "patient-1", body["patient_id"])
	assert.Len(t, body["readings"].([]interface{}), 2)
}

func TestStats(t *testing.T) {
	source := &fakeSource{stats: &models.DBStats{TotalReadings: 1234, UniquePatients: 3}}
	r, _, _ := newTestServer(t, source)

	rec := doRequest(r, "GET", "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	db := body["database"].(map[string]interface{})
	assert.Equal(t, float64(1234), db["total_readings"])
	assert.NotContains(t, body, "last_training")
}

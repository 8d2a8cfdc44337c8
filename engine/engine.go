// Package engine classifies scored sound readings and flags anomalies. It
// holds the trained models as immutable snapshots behind atomic pointers:
// predictions read a consistent {model, scaler} pair lock-free while training
// builds a replacement off to the side and publishes it in one swap.
package engine

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"soundsense-ml/classify"
	"soundsense-ml/features"
	"soundsense-ml/learn"
	"soundsense-ml/models"
	"soundsense-ml/store"

	"go.uber.org/zap"
)

const (
	// Reproducible train/test split.
	testRatio = 0.2
	splitSeed = 42

	// DefaultContamination is the expected anomalous fraction of a
	// training batch.
	DefaultContamination = 0.1

	// DefaultMinSamples is the training floor when the caller does not
	// supply one.
	DefaultMinSamples = 100
)

// ErrTrainingInProgress is returned when a training run is requested while
// another is still active.
var ErrTrainingInProgress = errors.New("training already in progress")

// classifierSnapshot pairs a fitted classifier with the scaler it was
// trained with. The pair is immutable once published.
type classifierSnapshot struct {
	model  *learn.GaussianNB
	scaler *learn.StandardScaler
}

// detectorSnapshot pairs a fitted anomaly detector with its own scaler,
// fitted independently from the classifier's.
type detectorSnapshot struct {
	forest *learn.IsolationForest
	scaler *learn.StandardScaler
}

// DetectorArtifact is the persisted form of a detector snapshot. The scaler
// travels inside the blob so the store keeps its three fixed names.
type DetectorArtifact struct {
	Forest *learn.IsolationForest
	Scaler *learn.StandardScaler
}

// TrainResult reports a completed training run. Accuracies are observational
// only, never a gate.
type TrainResult struct {
	SamplesUsed   int       `json:"samples_used"`
	TrainAccuracy float64   `json:"train_accuracy"`
	TestAccuracy  float64   `json:"test_accuracy"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Health reports which models are currently loaded.
type Health struct {
	ClassifierLoaded      bool `json:"classifier_loaded"`
	AnomalyDetectorLoaded bool `json:"anomaly_detector_loaded"`
	Training              bool `json:"training"`
}

type Engine struct {
	store  *store.ModelStore
	logger *zap.Logger

	classifier atomic.Pointer[classifierSnapshot]
	detector   atomic.Pointer[detectorSnapshot]

	trainMu      sync.Mutex
	training     atomic.Bool
	lastTraining atomic.Pointer[TrainResult]
}

func NewEngine(modelStore *store.ModelStore, logger *zap.Logger) *Engine {
	return &Engine{
		store:  modelStore,
		logger: logger,
	}
}

// LoadModels restores persisted artifacts into memory. Missing artifacts are
// normal at first run; the engine stays in rule-based mode for those. A
// corrupt artifact is logged and skipped rather than failing startup.
func (e *Engine) LoadModels() {
	var model learn.GaussianNB
	var scaler learn.StandardScaler

	haveModel, err := e.store.Load(store.NameClassifier, &model)
	if err != nil {
		e.logger.Warn("failed to load classifier", zap.Error(err))
		haveModel = false
	}
	haveScaler, err := e.store.Load(store.NameScaler, &scaler)
	if err != nil {
		e.logger.Warn("failed to load scaler", zap.Error(err))
		haveScaler = false
	}
	if haveModel && haveScaler {
		e.classifier.Store(&classifierSnapshot{model: &model, scaler: &scaler})
	} else if haveModel != haveScaler {
		e.logger.Warn("classifier and scaler artifacts out of sync, staying rule-based")
	}

	var artifact DetectorArtifact
	haveDetector, err := e.store.Load(store.NameAnomalyDetector, &artifact)
	if err != nil {
		e.logger.Warn("failed to load anomaly detector", zap.Error(err))
		haveDetector = false
	}
	if haveDetector {
		e.detector.Store(&detectorSnapshot{forest: artifact.Forest, scaler: artifact.Scaler})
	}
}

// Train fits the classifier and the anomaly detector on a labeled batch,
// persists the artifacts, and atomically swaps the in-memory snapshots. On
// any failure the previously loaded models remain active and untouched.
func (e *Engine) Train(samples []models.TrainingSample, minSamples int, contamination float64) (*TrainResult, error) {
	if len(samples) < minSamples {
		return nil, &models.InsufficientDataError{Have: len(samples), Need: minSamples}
	}

	if !e.training.CompareAndSwap(false, true) {
		return nil, ErrTrainingInProgress
	}
	defer e.training.Store(false)

	e.trainMu.Lock()
	defer e.trainMu.Unlock()

	e.logger.Info("training started", zap.Int("samples", len(samples)))

	sorted := make([]models.TrainingSample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	points := make([]features.Point, len(sorted))
	labels := make([]string, len(sorted))
	for i, s := range sorted {
		points[i] = features.Point{Value: s.Value, Timestamp: s.Timestamp}
		labels[i] = string(s.Label)
	}
	X := features.Extract(points)

	// Classifier: scale on the train partition only, then fit.
	trainIdx, testIdx := learn.TrainTestSplit(len(X), testRatio, splitSeed)
	XTrain := learn.SelectRows(X, trainIdx)
	yTrain := learn.SelectLabels(labels, trainIdx)
	XTest := learn.SelectRows(X, testIdx)
	yTest := learn.SelectLabels(labels, testIdx)

	clfScaler := learn.NewStandardScaler()
	XTrainScaled, err := clfScaler.FitTransform(XTrain)
	if err != nil {
		return nil, err
	}

	model := learn.NewGaussianNB()
	if err := model.Fit(XTrainScaled, yTrain); err != nil {
		return nil, err
	}

	trainAcc := model.Score(XTrainScaled, yTrain)
	testAcc := 0.0
	if len(XTest) > 0 {
		testAcc = model.Score(clfScaler.Transform(XTest), yTest)
	}
	e.logger.Info("classifier fitted",
		zap.Float64("train_accuracy", trainAcc),
		zap.Float64("test_accuracy", testAcc))

	// Anomaly detector: its own scaler, fitted on the full batch.
	detScaler := learn.NewStandardScaler()
	XScaled, err := detScaler.FitTransform(X)
	if err != nil {
		return nil, err
	}

	forest := learn.NewIsolationForest(contamination, splitSeed)
	if err := forest.Fit(XScaled); err != nil {
		return nil, err
	}
	e.logger.Info("anomaly detector fitted", zap.Float64("contamination", contamination))

	// Persist before publishing: the run is not durable until save succeeds.
	if err := e.store.Save(store.NameScaler, clfScaler); err != nil {
		return nil, &models.PersistenceError{Name: store.NameScaler, Err: err}
	}
	if err := e.store.Save(store.NameClassifier, model); err != nil {
		return nil, &models.PersistenceError{Name: store.NameClassifier, Err: err}
	}
	artifact := DetectorArtifact{Forest: forest, Scaler: detScaler}
	if err := e.store.Save(store.NameAnomalyDetector, &artifact); err != nil {
		return nil, &models.PersistenceError{Name: store.NameAnomalyDetector, Err: err}
	}

	e.classifier.Store(&classifierSnapshot{model: model, scaler: clfScaler})
	e.detector.Store(&detectorSnapshot{forest: forest, scaler: detScaler})

	result := &TrainResult{
		SamplesUsed:   len(sorted),
		TrainAccuracy: trainAcc,
		TestAccuracy:  testAcc,
		CompletedAt:   time.Now().UTC(),
	}
	e.lastTraining.Store(result)

	e.logger.Info("training completed", zap.Int("samples_used", result.SamplesUsed))
	return result, nil
}

// Predict scores a batch of readings. The rule category is always present;
// ML category and anomaly fields are filled only when the corresponding
// model is loaded, and any model-path problem degrades to the rule-only
// output instead of failing the batch.
func (e *Engine) Predict(readings []models.Reading) ([]models.ScoredReading, error) {
	if len(readings) == 0 {
		return nil, models.ErrEmptyInput
	}

	sorted := make([]models.Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	points := make([]features.Point, len(sorted))
	for i, r := range sorted {
		points[i] = features.Point{Value: r.Value, Timestamp: r.Timestamp}
	}
	X := features.Extract(points)

	scored := make([]models.ScoredReading, len(sorted))
	for i, r := range sorted {
		scored[i] = models.ScoredReading{
			Reading:      r,
			CategoryRule: classify.Classify(r.Value),
		}
	}

	if snap := e.classifier.Load(); snap != nil && e.compatible(snap.scaler) {
		labels, confidence := snap.model.Predict(snap.scaler.Transform(X))
		for i := range scored {
			category := models.Category(labels[i])
			scored[i].CategoryML = &category
			scored[i].CategoryConfidence = confidence[i]
		}
	}

	if snap := e.detector.Load(); snap != nil && e.compatible(snap.scaler) {
		flags, scores := snap.forest.Predict(snap.scaler.Transform(X))
		for i := range scored {
			scored[i].IsAnomaly = flags[i]
			scored[i].AnomalyScore = scores[i]
		}
	}

	return scored, nil
}

// compatible rejects artifacts whose feature width no longer matches the
// extractor, falling back to rule-only output for that model.
func (e *Engine) compatible(scaler *learn.StandardScaler) bool {
	if scaler == nil || len(scaler.Mean) != features.Width {
		e.logger.Warn("model artifact has incompatible feature width, skipping")
		return false
	}
	return true
}

// Health reports which models are loaded and whether training is running.
func (e *Engine) Health() Health {
	return Health{
		ClassifierLoaded:      e.classifier.Load() != nil,
		AnomalyDetectorLoaded: e.detector.Load() != nil,
		Training:              e.training.Load(),
	}
}

// LastTraining returns the most recent completed training result, nil if
// none has completed in this process.
func (e *Engine) LastTraining() *TrainResult {
	return e.lastTraining.Load()
}

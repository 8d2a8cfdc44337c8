package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Category is a sound severity level, ordered from quiet to concerning.
type Category string

const (
	CategoryQuiet      Category = "quiet"
	CategoryNormal     Category = "normal"
	CategoryModerate   Category = "moderate"
	CategoryLoud       Category = "loud"
	CategoryConcerning Category = "concerning"
)

// Categories lists all categories in increasing severity order.
var Categories = []Category{
	CategoryQuiet,
	CategoryNormal,
	CategoryModerate,
	CategoryLoud,
	CategoryConcerning,
}

// Reading is a single sound-level sensor reading as stored in sensor_readings.
type Reading struct {
	ID        uuid.UUID `json:"id"`
	PatientID string    `json:"patient_id"`
	DeviceID  string    `json:"device_id"`
	Code      string    `json:"code"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
}

func (r *Reading) Validate() error {
	if r.PatientID == "" {
		return errors.New("patient_id is required")
	}

	if r.DeviceID == "" {
		return errors.New("device_id is required")
	}

	if r.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}

	if r.Value < 0 {
		return errors.New("value must be non-negative")
	}

	return nil
}

// TrainingSample is a reading reduced to the fields the trainers consume,
// labeled by the rule classifier.
type TrainingSample struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Label     Category  `json:"label"`
}

// ScoredReading is a Reading augmented with classification and anomaly results.
// CategoryML is nil and CategoryConfidence is 0 when no classifier is loaded;
// IsAnomaly is false and AnomalyScore is 0 when no anomaly detector is loaded.
type ScoredReading struct {
	Reading
	CategoryRule       Category  `json:"category_rule"`
	CategoryML         *Category `json:"category_ml"`
	CategoryConfidence float64   `json:"category_confidence"`
	IsAnomaly          bool      `json:"is_anomaly"`
	AnomalyScore       float64   `json:"anomaly_score"`
}

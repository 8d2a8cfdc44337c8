// Package db reads and writes the sensor_readings table. It supplies the
// engine with ordered reading batches and rule-labeled training sets.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"soundsense-ml/classify"
	"soundsense-ml/models"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// trainingFetchLimit caps how many recent readings a training dataset pulls.
const trainingFetchLimit = 10000

type ReadingStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewReadingStore(db *sql.DB, logger *zap.Logger) *ReadingStore {
	return &ReadingStore{db: db, logger: logger}
}

// Open connects to postgres and verifies the connection.
func Open(databaseURL string, logger *zap.Logger) (*ReadingStore, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return NewReadingStore(conn, logger), nil
}

func (s *ReadingStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *ReadingStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const readingColumns = "id, patient_id, device_id, code, value, unit, timestamp"

// FetchRecent returns up to limit readings, newest first, optionally
// restricted to the last hoursBack hours (0 means no window).
func (s *ReadingStore) FetchRecent(ctx context.Context, limit, hoursBack int) ([]models.Reading, error) {
	query := "SELECT " + readingColumns + " FROM sensor_readings"
	args := []interface{}{}

	if hoursBack > 0 {
		query += " WHERE timestamp >= $1"
		args = append(args, time.Now().UTC().Add(-time.Duration(hoursBack)*time.Hour))
	}

	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	readings, err := s.queryReadings(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("fetched recent readings", zap.Int("count", len(readings)))
	return readings, nil
}

// FetchByPatient returns up to limit readings for one patient, newest first.
func (s *ReadingStore) FetchByPatient(ctx context.Context, patientID string, limit int) ([]models.Reading, error) {
	query := "SELECT " + readingColumns + " FROM sensor_readings" +
		" WHERE patient_id = $1 ORDER BY timestamp DESC LIMIT $2"

	readings, err := s.queryReadings(ctx, query, patientID, limit)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("fetched patient readings",
		zap.String("patient_id", patientID), zap.Int("count", len(readings)))
	return readings, nil
}

// Insert stores one reading and returns its generated id.
func (s *ReadingStore) Insert(ctx context.Context, r *models.Reading) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO sensor_readings (patient_id, device_id, code, value, unit, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		r.PatientID, r.DeviceID, r.Code, r.Value, r.Unit, r.Timestamp,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting reading: %w", err)
	}
	return id, nil
}

// Stats returns aggregate statistics over the whole table.
func (s *ReadingStore) Stats(ctx context.Context) (*models.DBStats, error) {
	var stats models.DBStats
	var earliest, latest sql.NullTime
	var avg, stddev sql.NullFloat64

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT patient_id),
			COUNT(DISTINCT device_id),
			MIN(timestamp),
			MAX(timestamp),
			AVG(value),
			STDDEV(value)
		FROM sensor_readings`,
	).Scan(&stats.TotalReadings, &stats.UniquePatients, &stats.UniqueDevices,
		&earliest, &latest, &avg, &stddev)
	if err != nil {
		return nil, fmt.Errorf("querying statistics: %w", err)
	}

	if earliest.Valid {
		stats.EarliestReading = earliest.Time.UTC().Format(time.RFC3339)
	}
	if latest.Valid {
		stats.LatestReading = latest.Time.UTC().Format(time.RFC3339)
	}
	stats.AvgValue = avg.Float64
	stats.StddevValue = stddev.Float64

	return &stats, nil
}

// TrainingDataset builds a rule-labeled training batch from recent readings.
// Labels always come from the rule classifier, never hand annotation.
func (s *ReadingStore) TrainingDataset(ctx context.Context) ([]models.TrainingSample, error) {
	readings, err := s.FetchRecent(ctx, trainingFetchLimit, 0)
	if err != nil {
		return nil, err
	}

	samples := make([]models.TrainingSample, len(readings))
	for i, r := range readings {
		samples[i] = models.TrainingSample{
			Value:     r.Value,
			Timestamp: r.Timestamp,
			Label:     classify.Classify(r.Value),
		}
	}

	s.logger.Info("training dataset created", zap.Int("samples", len(samples)))
	return samples, nil
}

func (s *ReadingStore) queryReadings(ctx context.Context, query string, args ...interface{}) ([]models.Reading, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		var r models.Reading
		if err := rows.Scan(&r.ID, &r.PatientID, &r.DeviceID, &r.Code, &r.Value, &r.Unit, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}

	return readings, nil
}

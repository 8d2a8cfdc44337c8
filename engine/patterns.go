package engine

import (
	"soundsense-ml/models"

	"gonum.org/v1/gonum/stat"
)

// Analyze aggregates a scored batch into summary statistics: value spread,
// anomaly rate, hourly peak and quietest hour, and the rule-category
// histogram. Pure aggregation, no model involvement.
func Analyze(scored []models.ScoredReading) (*models.AnalysisSummary, error) {
	if len(scored) == 0 {
		return nil, models.ErrEmptyInput
	}

	values := make([]float64, len(scored))
	for i, s := range scored {
		values[i] = s.Value
	}

	summary := &models.AnalysisSummary{
		TotalReadings:        len(scored),
		AvgValue:             stat.Mean(values, nil),
		MinValue:             values[0],
		MaxValue:             values[0],
		CategoryDistribution: make(map[models.Category]int),
	}
	if len(values) > 1 {
		summary.StdValue = stat.StdDev(values, nil)
	}
	for _, v := range values {
		if v < summary.MinValue {
			summary.MinValue = v
		}
		if v > summary.MaxValue {
			summary.MaxValue = v
		}
	}

	// Anomaly fields are all-zero exactly when no detector scored the
	// batch, so a populated batch is detectable from the rows themselves.
	anomalyScored := false
	anomalyCount := 0
	for _, s := range scored {
		if s.IsAnomaly {
			anomalyCount++
		}
		if s.IsAnomaly || s.AnomalyScore != 0 {
			anomalyScored = true
		}
	}
	if anomalyScored {
		summary.Anomalies = &models.AnomalyStats{
			Count:      anomalyCount,
			Percentage: float64(anomalyCount) / float64(len(scored)) * 100,
		}
	}

	var hourSum, hourCount [24]float64
	for _, s := range scored {
		h := s.Timestamp.Hour()
		hourSum[h] += s.Value
		hourCount[h]++

		summary.CategoryDistribution[s.CategoryRule]++
	}

	// Peak and quietest hour by hourly mean, ties broken by lowest hour.
	first := true
	var peakMean, quietMean float64
	for h := 0; h < 24; h++ {
		if hourCount[h] == 0 {
			continue
		}
		mean := hourSum[h] / hourCount[h]
		if first {
			summary.PeakHour, summary.QuietestHour = h, h
			peakMean, quietMean = mean, mean
			first = false
			continue
		}
		if mean > peakMean {
			summary.PeakHour = h
			peakMean = mean
		}
		if mean < quietMean {
			summary.QuietestHour = h
			quietMean = mean
		}
	}

	return summary, nil
}

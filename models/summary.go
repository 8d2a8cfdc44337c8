package models

// AnomalyStats is included in an AnalysisSummary only when the analyzed batch
// carries anomaly scores, i.e. a detector was loaded when it was scored.
type AnomalyStats struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// AnalysisSummary is the pattern analyzer's aggregate view of a scored batch.
type AnalysisSummary struct {
	TotalReadings        int              `json:"total_readings"`
	AvgValue             float64          `json:"avg_value"`
	StdValue             float64          `json:"std_value"`
	MinValue             float64          `json:"min_value"`
	MaxValue             float64          `json:"max_value"`
	Anomalies            *AnomalyStats    `json:"anomalies,omitempty"`
	PeakHour             int              `json:"peak_hour"`
	QuietestHour         int              `json:"quietest_hour"`
	CategoryDistribution map[Category]int `json:"category_distribution"`
}

// DBStats mirrors the aggregate statistics query over sensor_readings.
type DBStats struct {
	TotalReadings   int     `json:"total_readings"`
	UniquePatients  int     `json:"unique_patients"`
	UniqueDevices   int     `json:"unique_devices"`
	EarliestReading string  `json:"earliest_reading"`
	LatestReading   string  `json:"latest_reading"`
	AvgValue        float64 `json:"avg_value"`
	StddevValue     float64 `json:"stddev_value"`
}

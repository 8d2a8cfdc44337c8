// Package features turns a time-ordered sequence of sound readings into
// fixed-width numeric feature vectors for the trainable models.
package features

import (
	"sort"
	"time"
)

// Width is the number of features per vector: raw value, rolling mean,
// rolling std, first difference, hour of day, day of week, night flag.
const Width = 7

// windowSize is the inclusive rolling window: the current value plus up to
// four preceding values.
const windowSize = 5

// Point is the (value, timestamp) pair the extractor consumes.
type Point struct {
	Value     float64
	Timestamp time.Time
}

// SortPoints stable-sorts points by timestamp ascending, ties keeping their
// original order. Consumers mapping vectors back to readings must apply the
// same sort.
func SortPoints(points []Point) []Point {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

// Extract returns one feature vector per input point, aligned to the
// ascending-timestamp order regardless of input order. Pure function: empty
// input yields empty output, a single point yields zero rolling std and zero
// first difference.
func Extract(points []Point) [][]float64 {
	sorted := SortPoints(points)

	vectors := make([][]float64, 0, len(sorted))
	window := NewRollingWindow(windowSize)

	for i, p := range sorted {
		window.Add(p.Value)

		firstDiff := 0.0
		if i > 0 {
			firstDiff = p.Value - sorted[i-1].Value
		}

		hour := p.Timestamp.Hour()
		night := 0.0
		if hour >= 22 || hour < 6 {
			night = 1.0
		}

		vectors = append(vectors, []float64{
			p.Value,
			window.Mean(),
			window.StdDev(),
			firstDiff,
			float64(hour),
			float64(dayOfWeek(p.Timestamp)),
			night,
		})
	}

	return vectors
}

// dayOfWeek maps to Monday=0..Sunday=6.
func dayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

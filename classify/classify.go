// Package classify maps raw sound values to severity categories using fixed
// thresholds. It is the always-available fallback and the sole label source
// for supervised training.
package classify

import "soundsense-ml/models"

// Thresholds are the left-closed upper bounds of each category below
// concerning: quiet <187, normal [187,300), moderate [300,500), loud [500,700).
const (
	ThresholdQuiet    = 187
	ThresholdNormal   = 300
	ThresholdModerate = 500
	ThresholdLoud     = 700
)

// Classify returns the severity category for a raw sound value.
func Classify(value float64) models.Category {
	switch {
	case value < ThresholdQuiet:
		return models.CategoryQuiet
	case value < ThresholdNormal:
		return models.CategoryNormal
	case value < ThresholdModerate:
		return models.CategoryModerate
	case value < ThresholdLoud:
		return models.CategoryLoud
	default:
		return models.CategoryConcerning
	}
}

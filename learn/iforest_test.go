package learn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clusterWithOutliers builds a tight cluster plus a few far-away points.
func clusterWithOutliers(n, outliers int, seed int64) [][]float64 {
	r := rand.New(rand.NewSource(seed))
	X := make([][]float64, 0, n+outliers)
	for i := 0; i < n; i++ {
		X = append(X, []float64{r.NormFloat64(), r.NormFloat64()})
	}
	for i := 0; i < outliers; i++ {
		X = append(X, []float64{50 + r.NormFloat64(), 50 + r.NormFloat64()})
	}
	return X
}

func TestIsolationForest_OutliersScoreLower(t *testing.T) {
	X := clusterWithOutliers(200, 10, 1)

	f := NewIsolationForest(0.1, 42)
	require.NoError(t, f.Fit(X))

	scores := f.ScoreSamples(X)

	var inlierSum, outlierSum float64
	for i, s := range scores {
		assert.Less(t, s, 0.0)
		assert.GreaterOrEqual(t, s, -1.0)
		if i < 200 {
			inlierSum += s
		} else {
			outlierSum += s
		}
	}

	assert.Less(t, outlierSum/10, inlierSum/200,
		"outliers must score more negative than inliers on average")
}

func TestIsolationForest_PredictFlagsOutliers(t *testing.T) {
	X := clusterWithOutliers(200, 10, 2)

	f := NewIsolationForest(0.1, 42)
	require.NoError(t, f.Fit(X))

	flags, scores := f.Predict(X)
	require.Len(t, flags, len(X))
	require.Len(t, scores, len(X))

	flaggedOutliers := 0
	for i := 200; i < 210; i++ {
		if flags[i] {
			flaggedOutliers++
		}
	}
	assert.GreaterOrEqual(t, flaggedOutliers, 8, "far outliers should be flagged")

	for i, flag := range flags {
		assert.Equal(t, scores[i] < f.Offset, flag)
	}
}

func TestIsolationForest_DeterministicWithSeed(t *testing.T) {
	X := clusterWithOutliers(100, 5, 3)

	a := NewIsolationForest(0.1, 42)
	b := NewIsolationForest(0.1, 42)
	require.NoError(t, a.Fit(X))
	require.NoError(t, b.Fit(X))

	assert.Equal(t, a.Offset, b.Offset)
	assert.Equal(t, a.ScoreSamples(X), b.ScoreSamples(X))
	assert.Equal(t, a.ScoreSamples(X), a.ScoreSamples(X),
		"scores must be consistent across calls on the same fitted model")
}

func TestIsolationForest_SmallSample(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}, {100}}

	f := NewIsolationForest(0.25, 42)
	require.NoError(t, f.Fit(X))
	assert.Equal(t, 4, f.SampleSize, "sample size shrinks to the data")

	flags, _ := f.Predict(X)
	assert.Len(t, flags, 4)
}

func TestIsolationForest_EmptyFit(t *testing.T) {
	f := NewIsolationForest(0.1, 42)
	assert.Error(t, f.Fit(nil))
}

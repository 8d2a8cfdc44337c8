package learn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoClusterData builds two well-separated Gaussian blobs.
func twoClusterData(n int, seed int64) ([][]float64, []string) {
	r := rand.New(rand.NewSource(seed))
	X := make([][]float64, 0, 2*n)
	y := make([]string, 0, 2*n)
	for i := 0; i < n; i++ {
		X = append(X, []float64{r.NormFloat64(), r.NormFloat64()})
		y = append(y, "low")
		X = append(X, []float64{10 + r.NormFloat64(), 10 + r.NormFloat64()})
		y = append(y, "high")
	}
	return X, y
}

func TestGaussianNB_SeparableClusters(t *testing.T) {
	X, y := twoClusterData(100, 1)

	nb := NewGaussianNB()
	require.NoError(t, nb.Fit(X, y))

	assert.Equal(t, []string{"low", "high"}, nb.Classes)
	assert.Equal(t, 1.0, nb.Score(X, y), "separable blobs must classify perfectly")

	labels, confidence := nb.Predict([][]float64{{0, 0}, {10, 10}})
	assert.Equal(t, "low", labels[0])
	assert.Equal(t, "high", labels[1])
	assert.Greater(t, confidence[0], 0.99)
	assert.Greater(t, confidence[1], 0.99)
}

func TestGaussianNB_ProbabilitiesSumToOne(t *testing.T) {
	X, y := twoClusterData(50, 2)

	nb := NewGaussianNB()
	require.NoError(t, nb.Fit(X, y))

	probs := nb.PredictProba([][]float64{{5, 5}, {-3, 12}})
	for _, row := range probs {
		var sum float64
		for _, p := range row {
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestGaussianNB_Deterministic(t *testing.T) {
	X, y := twoClusterData(30, 3)

	a := NewGaussianNB()
	b := NewGaussianNB()
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))

	assert.Equal(t, a.Classes, b.Classes)
	assert.Equal(t, a.Means, b.Means)
	assert.Equal(t, a.Variances, b.Variances)
}

func TestGaussianNB_FitErrors(t *testing.T) {
	nb := NewGaussianNB()
	assert.Error(t, nb.Fit(nil, nil))
	assert.Error(t, nb.Fit([][]float64{{1}}, []string{"a", "b"}))
}

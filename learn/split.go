package learn

import "math/rand"

// TrainTestSplit shuffles row indices with the given seed and partitions them
// into train and test sets. testRatio is the fraction held out; the split is
// reproducible for a fixed seed. A tiny input keeps at least one training row.
func TrainTestSplit(n int, testRatio float64, seed int64) (trainIdx, testIdx []int) {
	r := rand.New(rand.NewSource(seed))
	perm := r.Perm(n)

	testSize := int(float64(n) * testRatio)
	if testSize >= n {
		testSize = n - 1
	}
	if testSize < 0 {
		testSize = 0
	}

	testIdx = perm[:testSize]
	trainIdx = perm[testSize:]
	return trainIdx, testIdx
}

// SelectRows gathers the rows of X at the given indices.
func SelectRows(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}

// SelectLabels gathers the labels at the given indices.
func SelectLabels(y []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}

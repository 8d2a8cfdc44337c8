package learn

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// GaussianNB is a Gaussian naive Bayes multi-class classifier. Each class
// gets a prior and per-feature mean/variance; prediction picks the class with
// the highest posterior and reports normalized class probabilities.
type GaussianNB struct {
	Classes   []string
	LogPriors []float64
	Means     [][]float64
	Variances [][]float64
}

// varSmoothing keeps degenerate per-class variances strictly positive,
// proportional to the largest feature variance in the training set.
const varSmoothing = 1e-9

func NewGaussianNB() *GaussianNB {
	return &GaussianNB{}
}

// Fit estimates class priors and per-class feature Gaussians. Class order is
// first-appearance order in y, so fitting the same data always produces the
// same artifact.
func (nb *GaussianNB) Fit(X [][]float64, y []string) error {
	if len(X) == 0 || len(X) != len(y) {
		return errors.New("naive bayes: features and labels must be nonempty and aligned")
	}

	width := len(X[0])

	classIdx := make(map[string]int)
	for _, label := range y {
		if _, ok := classIdx[label]; !ok {
			classIdx[label] = len(nb.Classes)
			nb.Classes = append(nb.Classes, label)
		}
	}

	nClasses := len(nb.Classes)
	nb.LogPriors = make([]float64, nClasses)
	nb.Means = make([][]float64, nClasses)
	nb.Variances = make([][]float64, nClasses)

	// Largest feature variance over the whole training set, for smoothing.
	maxVar := 0.0
	col := make([]float64, len(X))
	for j := 0; j < width; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		if v := stat.PopVariance(col, nil); v > maxVar {
			maxVar = v
		}
	}
	smoothing := varSmoothing * maxVar
	if smoothing == 0 {
		smoothing = varSmoothing
	}

	for c := range nb.Classes {
		var rows [][]float64
		for i, label := range y {
			if classIdx[label] == c {
				rows = append(rows, X[i])
			}
		}

		nb.LogPriors[c] = math.Log(float64(len(rows)) / float64(len(X)))
		nb.Means[c] = make([]float64, width)
		nb.Variances[c] = make([]float64, width)

		ccol := make([]float64, len(rows))
		for j := 0; j < width; j++ {
			for i, row := range rows {
				ccol[i] = row[j]
			}
			nb.Means[c][j] = stat.Mean(ccol, nil)
			nb.Variances[c][j] = stat.PopVariance(ccol, nil) + smoothing
		}
	}

	return nil
}

// PredictProba returns one probability row per input, columns aligned to
// Classes, each row summing to 1.
func (nb *GaussianNB) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = nb.proba(row)
	}
	return out
}

// Predict returns the most probable class and its probability for each input.
func (nb *GaussianNB) Predict(X [][]float64) ([]string, []float64) {
	labels := make([]string, len(X))
	confidence := make([]float64, len(X))

	for i, row := range X {
		probs := nb.proba(row)
		best := 0
		for c := 1; c < len(probs); c++ {
			if probs[c] > probs[best] {
				best = c
			}
		}
		labels[i] = nb.Classes[best]
		confidence[i] = probs[best]
	}

	return labels, confidence
}

// Score returns the fraction of rows whose predicted class matches y.
func (nb *GaussianNB) Score(X [][]float64, y []string) float64 {
	if len(X) == 0 {
		return 0
	}
	labels, _ := nb.Predict(X)
	correct := 0
	for i, label := range labels {
		if label == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(X))
}

func (nb *GaussianNB) proba(row []float64) []float64 {
	logJoint := make([]float64, len(nb.Classes))
	for c := range nb.Classes {
		ll := nb.LogPriors[c]
		for j, v := range row {
			variance := nb.Variances[c][j]
			diff := v - nb.Means[c][j]
			ll += -0.5*math.Log(2*math.Pi*variance) - diff*diff/(2*variance)
		}
		logJoint[c] = ll
	}

	// Log-sum-exp normalization.
	maxLL := logJoint[0]
	for _, ll := range logJoint[1:] {
		if ll > maxLL {
			maxLL = ll
		}
	}
	var sum float64
	probs := make([]float64, len(logJoint))
	for c, ll := range logJoint {
		probs[c] = math.Exp(ll - maxLL)
		sum += probs[c]
	}
	for c := range probs {
		probs[c] /= sum
	}
	return probs
}

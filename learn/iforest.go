package learn

import (
	"errors"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// IsolationForest is an unsupervised outlier detector. Scores follow the
// usual convention: more negative means more anomalous, and the fitted
// Offset is the decision threshold at the configured contamination.
type IsolationForest struct {
	NumTrees      int
	SampleSize    int
	MaxDepth      int
	Contamination float64
	Seed          int64
	Trees         []ITree
	Offset        float64
}

// ITree is a single isolation tree stored as an index-linked node slice.
type ITree struct {
	Nodes []INode
}

// INode is one node of an isolation tree. Left/Right are -1 on leaves; Size
// is the number of training rows that reached a leaf.
type INode struct {
	Feature int
	Split   float64
	Left    int
	Right   int
	Size    int
}

const defaultTrees = 100
const defaultSampleSize = 256

// NewIsolationForest builds an unfitted forest. Seed fixes the subsampling
// and split randomness so refitting the same data yields the same artifact.
func NewIsolationForest(contamination float64, seed int64) *IsolationForest {
	return &IsolationForest{
		NumTrees:      defaultTrees,
		SampleSize:    defaultSampleSize,
		Contamination: contamination,
		Seed:          seed,
	}
}

// Fit grows the trees on subsamples of X and sets Offset to the
// contamination quantile of the training scores.
func (f *IsolationForest) Fit(X [][]float64) error {
	if len(X) == 0 {
		return errors.New("isolation forest: cannot fit on empty matrix")
	}

	psi := f.SampleSize
	if psi > len(X) {
		psi = len(X)
	}
	f.SampleSize = psi
	f.MaxDepth = int(math.Ceil(math.Log2(float64(psi) + 1)))

	r := rand.New(rand.NewSource(f.Seed))
	f.Trees = make([]ITree, f.NumTrees)
	for t := range f.Trees {
		perm := r.Perm(len(X))[:psi]
		sample := make([][]float64, psi)
		for i, j := range perm {
			sample[i] = X[j]
		}
		f.Trees[t] = growTree(sample, f.MaxDepth, r)
	}

	scores := f.ScoreSamples(X)
	sort.Float64s(scores)
	f.Offset = stat.Quantile(f.Contamination, stat.Empirical, scores, nil)

	return nil
}

// ScoreSamples returns one score per row in [-1, 0), more negative meaning
// more anomalous. Scores are consistent across calls on a fitted forest.
func (f *IsolationForest) ScoreSamples(X [][]float64) []float64 {
	psi := f.SampleSize
	norm := avgPathLength(psi)

	scores := make([]float64, len(X))
	for i, row := range X {
		var total float64
		for t := range f.Trees {
			total += f.Trees[t].pathLength(row)
		}
		mean := total / float64(len(f.Trees))
		scores[i] = -math.Exp2(-mean / norm)
	}
	return scores
}

// Predict returns the binary anomaly decision at the fitted threshold along
// with the continuous score for each row.
func (f *IsolationForest) Predict(X [][]float64) ([]bool, []float64) {
	scores := f.ScoreSamples(X)
	flags := make([]bool, len(scores))
	for i, s := range scores {
		flags[i] = s < f.Offset
	}
	return flags, scores
}

func growTree(sample [][]float64, maxDepth int, r *rand.Rand) ITree {
	tree := ITree{}
	tree.grow(sample, 0, maxDepth, r)
	return tree
}

// grow appends a subtree for the given rows and returns its node index.
func (t *ITree) grow(rows [][]float64, depth, maxDepth int, r *rand.Rand) int {
	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, INode{Left: -1, Right: -1, Size: len(rows)})

	if depth >= maxDepth || len(rows) <= 1 {
		return idx
	}

	// Pick among features that still have spread; a fully constant block
	// cannot be split further.
	width := len(rows[0])
	splittable := make([]int, 0, width)
	for j := 0; j < width; j++ {
		minV, maxV := rows[0][j], rows[0][j]
		for _, row := range rows[1:] {
			if row[j] < minV {
				minV = row[j]
			}
			if row[j] > maxV {
				maxV = row[j]
			}
		}
		if maxV > minV {
			splittable = append(splittable, j)
		}
	}
	if len(splittable) == 0 {
		return idx
	}

	feature := splittable[r.Intn(len(splittable))]
	minV, maxV := rows[0][feature], rows[0][feature]
	for _, row := range rows[1:] {
		if row[feature] < minV {
			minV = row[feature]
		}
		if row[feature] > maxV {
			maxV = row[feature]
		}
	}
	split := minV + r.Float64()*(maxV-minV)

	var left, right [][]float64
	for _, row := range rows {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	t.Nodes[idx].Feature = feature
	t.Nodes[idx].Split = split
	t.Nodes[idx].Left = t.grow(left, depth+1, maxDepth, r)
	t.Nodes[idx].Right = t.grow(right, depth+1, maxDepth, r)
	return idx
}

func (t *ITree) pathLength(row []float64) float64 {
	depth := 0.0
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.Left < 0 {
			return depth + avgPathLength(node.Size)
		}
		if row[node.Feature] < node.Split {
			idx = node.Left
		} else {
			idx = node.Right
		}
		depth++
	}
}

// avgPathLength is the expected unsuccessful-search path length in a BST of
// n nodes, the standard isolation forest normalizer.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

const eulerGamma = 0.5772156649015329

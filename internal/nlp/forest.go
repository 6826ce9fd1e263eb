package nlp

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

const (
	forestTrees    = 100
	forestSeed     = 42
	forestMaxDepth = 25
)

// Forest is a random forest over the sparse lexical feature space, trained
// with balanced class weights and a fixed seed so training is reproducible
// for a given corpus.
type Forest struct {
	Trees       []*treeNode `json:"trees"`
	Classes     []string    `json:"classes"`
	NumFeatures int         `json:"num_features"`
}

type treeNode struct {
	Feature   int       `json:"f,omitempty"`
	Threshold float64   `json:"t,omitempty"`
	Left      *treeNode `json:"l,omitempty"`
	Right     *treeNode `json:"r,omitempty"`
	Probs     []float64 `json:"p,omitempty"` // set on leaves only
}

func (n *treeNode) leaf() bool { return n.Left == nil && n.Right == nil }

// TrainForest fits a random forest on the vectorized corpus. Labels are
// weighted inversely to their frequency so rare intents are not drowned out.
func TrainForest(vectors []SparseVector, labels []string, numFeatures int) (*Forest, error) {
	if len(vectors) == 0 || len(vectors) != len(labels) {
		return nil, errors.New("nlp: forest training requires a non-empty aligned corpus")
	}

	classes := uniqueSorted(labels)
	classIndex := make(map[string]int, len(classes))
	for i, c := range classes {
		classIndex[c] = i
	}

	// Balanced class weights: n_samples / (n_classes * count(class)).
	counts := make([]float64, len(classes))
	for _, label := range labels {
		counts[classIndex[label]]++
	}
	weights := make([]float64, len(labels))
	for i, label := range labels {
		ci := classIndex[label]
		weights[i] = float64(len(labels)) / (float64(len(classes)) * counts[ci])
	}

	y := make([]int, len(labels))
	for i, label := range labels {
		y[i] = classIndex[label]
	}

	rng := rand.New(rand.NewSource(forestSeed))
	mtry := int(math.Sqrt(float64(numFeatures)))
	if mtry < 1 {
		mtry = 1
	}

	forest := &Forest{
		Trees:       make([]*treeNode, 0, forestTrees),
		Classes:     classes,
		NumFeatures: numFeatures,
	}
	for t := 0; t < forestTrees; t++ {
		sample := make([]int, len(vectors))
		for i := range sample {
			sample[i] = rng.Intn(len(vectors))
		}
		tree := growTree(vectors, y, weights, sample, len(classes), mtry, 0, rng)
		forest.Trees = append(forest.Trees, tree)
	}
	return forest, nil
}

func growTree(vectors []SparseVector, y []int, weights []float64, samples []int, numClasses, mtry, depth int, rng *rand.Rand) *treeNode {
	dist := classDistribution(y, weights, samples, numClasses)

	if depth >= forestMaxDepth || len(samples) < 2 || isPure(dist) {
		return &treeNode{Probs: dist}
	}

	feature, threshold, ok := bestSplit(vectors, y, weights, samples, numClasses, mtry, rng)
	if !ok {
		return &treeNode{Probs: dist}
	}

	var left, right []int
	for _, idx := range samples {
		if vectors[idx][feature] <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &treeNode{Probs: dist}
	}

	return &treeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      growTree(vectors, y, weights, left, numClasses, mtry, depth+1, rng),
		Right:     growTree(vectors, y, weights, right, numClasses, mtry, depth+1, rng),
	}
}

// bestSplit picks the weighted-gini-optimal (feature, threshold) among mtry
// randomly chosen candidate features that vary within the node.
func bestSplit(vectors []SparseVector, y []int, weights []float64, samples []int, numClasses, mtry int, rng *rand.Rand) (int, float64, bool) {
	// Candidate features: those with at least one nonzero value in the node.
	featureSet := make(map[int]struct{})
	for _, idx := range samples {
		for f := range vectors[idx] {
			featureSet[f] = struct{}{}
		}
	}
	if len(featureSet) == 0 {
		return 0, 0, false
	}
	candidates := make([]int, 0, len(featureSet))
	for f := range featureSet {
		candidates = append(candidates, f)
	}
	sort.Ints(candidates)
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > mtry {
		candidates = candidates[:mtry]
	}

	parentGini := giniImpurity(classDistribution(y, weights, samples, numClasses))
	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0

	for _, f := range candidates {
		values := make([]float64, 0, len(samples))
		for _, idx := range samples {
			values = append(values, vectors[idx][f])
		}
		sort.Float64s(values)

		for i := 1; i < len(values); i++ {
			if values[i] == values[i-1] {
				continue
			}
			threshold := (values[i] + values[i-1]) / 2

			var leftDist, rightDist []float64
			var leftW, rightW float64
			leftDist = make([]float64, numClasses)
			rightDist = make([]float64, numClasses)
			for _, idx := range samples {
				if vectors[idx][f] <= threshold {
					leftDist[y[idx]] += weights[idx]
					leftW += weights[idx]
				} else {
					rightDist[y[idx]] += weights[idx]
					rightW += weights[idx]
				}
			}
			total := leftW + rightW
			if leftW == 0 || rightW == 0 || total == 0 {
				continue
			}
			normalize(leftDist, leftW)
			normalize(rightDist, rightW)
			gain := parentGini -
				(leftW/total)*giniImpurity(leftDist) -
				(rightW/total)*giniImpurity(rightDist)
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = threshold
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}

// PredictProba averages the leaf class distributions across all trees,
// returning a class -> probability map.
func (f *Forest) PredictProba(vec SparseVector) map[string]float64 {
	if f == nil || len(f.Trees) == 0 {
		return map[string]float64{}
	}
	sums := make([]float64, len(f.Classes))
	for _, tree := range f.Trees {
		node := tree
		for !node.leaf() {
			if vec[node.Feature] <= node.Threshold {
				node = node.Left
			} else {
				node = node.Right
			}
		}
		for i, p := range node.Probs {
			sums[i] += p
		}
	}
	out := make(map[string]float64, len(f.Classes))
	n := float64(len(f.Trees))
	for i, class := range f.Classes {
		out[class] = sums[i] / n
	}
	return out
}

// Predict returns the most probable class for the vector.
func (f *Forest) Predict(vec SparseVector) string {
	probs := f.PredictProba(vec)
	best := ""
	bestP := -1.0
	for class, p := range probs {
		if p > bestP {
			best = class
			bestP = p
		}
	}
	return best
}

// Score computes classification accuracy over an aligned corpus.
func (f *Forest) Score(vectors []SparseVector, labels []string) float64 {
	if len(vectors) == 0 {
		return 0
	}
	correct := 0
	for i, vec := range vectors {
		if f.Predict(vec) == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(vectors))
}

func classDistribution(y []int, weights []float64, samples []int, numClasses int) []float64 {
	dist := make([]float64, numClasses)
	var total float64
	for _, idx := range samples {
		dist[y[idx]] += weights[idx]
		total += weights[idx]
	}
	normalize(dist, total)
	return dist
}

func normalize(dist []float64, total float64) {
	if total == 0 {
		return
	}
	for i := range dist {
		dist[i] /= total
	}
}

func giniImpurity(dist []float64) float64 {
	g := 1.0
	for _, p := range dist {
		g -= p * p
	}
	return g
}

func isPure(dist []float64) bool {
	for _, p := range dist {
		if p > 0.9999 {
			return true
		}
	}
	return false
}

func uniqueSorted(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	var out []string
	for _, l := range labels {
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

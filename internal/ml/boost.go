package ml

import (
	"fmt"
	"math/rand/v2"
	"slices"
)

// Booster is a squared-error gradient boosted ensemble. Each round fits a
// tree to the current residuals on a row and column subsample; leaf values
// are shrunk by the L2 penalty Lambda.
type Booster struct {
	Params    BoostParams `json:"params"`
	NFeatures int         `json:"n_features"`
	BaseScore float64     `json:"base_score"`
	Trees     []*Tree     `json:"trees"`
}

func NewBooster(p BoostParams) *Booster {
	return &Booster{Params: p}
}

func (b *Booster) Kind() Kind { return GradientBoosting }

func (b *Booster) Fit(x [][]float64, y []float64) error {
	nFeatures, err := checkTrainingData(x, y)
	if err != nil {
		return err
	}
	p := b.Params
	if p.NRounds <= 0 {
		return fmt.Errorf("gradient boosting needs at least one round, got %d", p.NRounds)
	}
	if p.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %f", p.LearningRate)
	}

	n := len(y)
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed))
	lambda := p.Lambda

	var base float64
	for _, v := range y {
		base += v
	}
	base /= float64(n)

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = base
	}
	residual := make([]float64, n)
	trees := make([]*Tree, 0, p.NRounds)

	for round := 0; round < p.NRounds; round++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}

		rows := sampleIndices(rng, n, p.Subsample)
		cols := sampleIndices(rng, nFeatures, p.ColSample)
		slices.Sort(cols)

		tree := growTree(x, residual, rows, treeConfig{
			maxDepth: p.MaxDepth,
			minLeaf:  p.MinSamplesLeaf,
			features: cols,
			leaf: func(r []float64, idx []int) float64 {
				var sum float64
				for _, i := range idx {
					sum += r[i]
				}
				return sum / (float64(len(idx)) + lambda)
			},
		})
		for i := range pred {
			pred[i] += p.LearningRate * tree.predict(x[i])
		}
		trees = append(trees, tree)
	}

	b.BaseScore = base
	b.Trees = trees
	b.NFeatures = nFeatures
	return nil
}

func (b *Booster) Predict(x [][]float64) ([]float64, error) {
	if len(b.Trees) == 0 {
		return nil, ErrNotTrained
	}
	if err := checkWidth(x, b.NFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		v := b.BaseScore
		for _, t := range b.Trees {
			v += b.Params.LearningRate * t.predict(row)
		}
		out[i] = v
	}
	return out, nil
}

func (b *Booster) width() int { return b.NFeatures }

func (b *Booster) valid() error {
	if b.NFeatures <= 0 || len(b.Trees) == 0 {
		return fmt.Errorf("gradient boosting model has no trees")
	}
	for i, t := range b.Trees {
		if t == nil || !t.valid(b.NFeatures) {
			return fmt.Errorf("gradient boosting tree %d is malformed", i)
		}
	}
	return nil
}

// sampleIndices draws max(1, floor(n*fraction)) distinct indices. A fraction
// of 1 or more returns every index.
func sampleIndices(rng *rand.Rand, n int, fraction float64) []int {
	if fraction <= 0 || fraction >= 1 {
		return allFeatures(n)
	}
	k := int(float64(n) * fraction)
	if k < 1 {
		k = 1
	}
	return rng.Perm(n)[:k]
}

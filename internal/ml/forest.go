package ml

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
)

// Forest is a bagged ensemble of regression trees. Trees are grown
// concurrently; each tree draws from its own seeded source so the result
// does not depend on scheduling.
type Forest struct {
	Params    ForestParams `json:"params"`
	NFeatures int          `json:"n_features"`
	Trees     []*Tree      `json:"trees"`
}

func NewForest(p ForestParams) *Forest {
	return &Forest{Params: p}
}

func (f *Forest) Kind() Kind { return RandomForest }

func (f *Forest) Fit(x [][]float64, y []float64) error {
	nFeatures, err := checkTrainingData(x, y)
	if err != nil {
		return err
	}
	if f.Params.NEstimators <= 0 {
		return fmt.Errorf("random forest needs at least one estimator, got %d", f.Params.NEstimators)
	}

	n := len(y)
	seeder := rand.New(rand.NewPCG(f.Params.Seed, f.Params.Seed))
	seeds := make([]uint64, f.Params.NEstimators)
	for i := range seeds {
		seeds[i] = seeder.Uint64()
	}

	cfg := treeConfig{
		maxDepth: f.Params.MaxDepth,
		minSplit: f.Params.MinSamplesSplit,
		minLeaf:  f.Params.MinSamplesLeaf,
		features: allFeatures(nFeatures),
	}

	trees := make([]*Tree, len(seeds))
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	for i := range trees {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			rng := rand.New(rand.NewPCG(seeds[i], uint64(i)))
			idx := make([]int, n)
			for k := range idx {
				idx[k] = rng.IntN(n)
			}
			trees[i] = growTree(x, y, idx, cfg)
		}(i)
	}
	wg.Wait()

	f.Trees = trees
	f.NFeatures = nFeatures
	return nil
}

func (f *Forest) Predict(x [][]float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, ErrNotTrained
	}
	if err := checkWidth(x, f.NFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		var sum float64
		for _, t := range f.Trees {
			sum += t.predict(row)
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out, nil
}

func (f *Forest) width() int { return f.NFeatures }

func (f *Forest) valid() error {
	if f.NFeatures <= 0 || len(f.Trees) == 0 {
		return fmt.Errorf("random forest has no trees")
	}
	for i, t := range f.Trees {
		if t == nil || !t.valid(f.NFeatures) {
			return fmt.Errorf("random forest tree %d is malformed", i)
		}
	}
	return nil
}

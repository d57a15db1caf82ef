package ml

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Scores are regression metrics over one partition.
type Scores struct {
	Samples       int     `json:"samples"`
	MAE           float64 `json:"mae"`
	RMSE          float64 `json:"rmse"`
	R2            float64 `json:"r2"`
	MeanActual    float64 `json:"mean_actual"`
	MeanPredicted float64 `json:"mean_predicted"`
}

// Score compares predictions against actual values. An empty input yields
// zero scores.
func Score(actual, predicted []float64) Scores {
	n := len(actual)
	if n == 0 || n != len(predicted) {
		return Scores{}
	}
	return Scores{
		Samples:       n,
		MAE:           floats.Distance(actual, predicted, 1) / float64(n),
		RMSE:          floats.Distance(actual, predicted, 2) / math.Sqrt(float64(n)),
		R2:            rSquared(actual, predicted),
		MeanActual:    stat.Mean(actual, nil),
		MeanPredicted: stat.Mean(predicted, nil),
	}
}

// rSquared follows the usual convention for a constant target: 1 for a
// perfect fit, 0 otherwise.
func rSquared(actual, predicted []float64) float64 {
	if stat.Variance(actual, nil) == 0 || len(actual) < 2 {
		if floats.Distance(actual, predicted, 1) == 0 {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(predicted, actual, nil)
}

// CVResult summarizes a time-series cross-validation run. Std values are
// population standard deviations across folds.
type CVResult struct {
	Folds   []Scores `json:"folds"`
	MeanMAE float64  `json:"mean_mae"`
	StdMAE  float64  `json:"std_mae"`
	MeanR2  float64  `json:"mean_r2"`
	StdR2   float64  `json:"std_r2"`
}

func summarizeFolds(folds []Scores) CVResult {
	maes := make([]float64, len(folds))
	r2s := make([]float64, len(folds))
	for i, f := range folds {
		maes[i] = f.MAE
		r2s[i] = f.R2
	}
	res := CVResult{Folds: folds}
	res.MeanMAE, res.StdMAE = stat.PopMeanStdDev(maes, nil)
	res.MeanR2, res.StdR2 = stat.PopMeanStdDev(r2s, nil)
	return res
}

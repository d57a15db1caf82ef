package ml

import "fmt"

// Kind tags a model family. It appears in artifact filenames and metadata.
type Kind string

const (
	RandomForest     Kind = "random_forest"
	GradientBoosting Kind = "gradient_boosting"
)

// ParseKind validates a configured model kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case RandomForest, GradientBoosting:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown model kind %q", s)
}

// ForestParams configures a bagged regression forest.
type ForestParams struct {
	NEstimators     int    `yaml:"nEstimators" json:"n_estimators"`
	MaxDepth        int    `yaml:"maxDepth" json:"max_depth"`
	MinSamplesSplit int    `yaml:"minSamplesSplit" json:"min_samples_split"`
	MinSamplesLeaf  int    `yaml:"minSamplesLeaf" json:"min_samples_leaf"`
	Seed            uint64 `yaml:"seed" json:"seed"`
}

// BoostParams configures squared-error gradient boosting.
type BoostParams struct {
	NRounds        int     `yaml:"nRounds" json:"n_rounds"`
	MaxDepth       int     `yaml:"maxDepth" json:"max_depth"`
	LearningRate   float64 `yaml:"learningRate" json:"learning_rate"`
	Subsample      float64 `yaml:"subsample" json:"subsample"`
	ColSample      float64 `yaml:"colSample" json:"col_sample"`
	Lambda         float64 `yaml:"lambda" json:"lambda"`
	MinSamplesLeaf int     `yaml:"minSamplesLeaf" json:"min_samples_leaf"`
	Seed           uint64  `yaml:"seed" json:"seed"`
}

// Hyperparameters holds the settings for every model kind.
type Hyperparameters struct {
	Forest ForestParams `yaml:"randomForest" json:"random_forest"`
	Boost  BoostParams  `yaml:"gradientBoosting" json:"gradient_boosting"`
}

func DefaultForestParams() ForestParams {
	return ForestParams{
		NEstimators:     100,
		MaxDepth:        10,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  2,
		Seed:            42,
	}
}

func DefaultBoostParams() BoostParams {
	return BoostParams{
		NRounds:        100,
		MaxDepth:       6,
		LearningRate:   0.1,
		Subsample:      0.8,
		ColSample:      0.8,
		Lambda:         1,
		MinSamplesLeaf: 1,
		Seed:           42,
	}
}

func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{Forest: DefaultForestParams(), Boost: DefaultBoostParams()}
}

// NewRegressor returns an untrained model of the given kind.
func NewRegressor(kind Kind, hp Hyperparameters) (Regressor, error) {
	switch kind {
	case RandomForest:
		return NewForest(hp.Forest), nil
	case GradientBoosting:
		return NewBooster(hp.Boost), nil
	}
	return nil, fmt.Errorf("unknown model kind %q", kind)
}

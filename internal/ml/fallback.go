package ml

import (
	"bytes"
	_ "embed"
	"fmt"

	"catch-forecast/internal/features"

	"github.com/jszwec/csvutil"
)

//go:embed fallback_samples.csv
var fallbackCSV []byte

// fallbackSample is one reference day used when no trained model exists.
type fallbackSample struct {
	Month     int     `csv:"month"`
	Season    int     `csv:"season"`
	Weather   int     `csv:"weather"`
	WaterTemp float64 `csv:"water_temp"`
	Tide      int     `csv:"tide"`
	Visitors  float64 `csv:"visitors"`
	Catch     float64 `csv:"catch"`
}

// FallbackParams is the reduced forest used in degraded mode.
func FallbackParams() ForestParams {
	return ForestParams{
		NEstimators:     10,
		MaxDepth:        5,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Seed:            42,
	}
}

// FallbackDataset decodes the embedded reference samples.
func FallbackDataset() (*features.Dataset, error) {
	var samples []fallbackSample
	if err := csvutil.Unmarshal(bytes.TrimSpace(fallbackCSV), &samples); err != nil {
		return nil, fmt.Errorf("decode fallback samples: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no fallback samples")
	}

	ds := &features.Dataset{Names: append([]string(nil), features.Names...)}
	for _, s := range samples {
		c := features.Conditions{
			Month:     s.Month,
			Season:    s.Season,
			Weather:   s.Weather,
			WaterTemp: s.WaterTemp,
			Tide:      s.Tide,
			Visitors:  s.Visitors,
		}
		ds.X = append(ds.X, c.Vector())
		ds.Y = append(ds.Y, s.Catch)
	}
	return ds, nil
}

// TrainFallback fits the degraded-mode forest on the reference samples.
func TrainFallback() (Regressor, *TrainingRecord, error) {
	ds, err := FallbackDataset()
	if err != nil {
		return nil, nil, err
	}
	forest := NewForest(FallbackParams())
	if err := forest.Fit(ds.X, ds.Y); err != nil {
		return nil, nil, err
	}
	pred, err := predictClipped(forest, ds.X)
	if err != nil {
		return nil, nil, err
	}
	return forest, &TrainingRecord{
		TrainSize: len(ds.Y),
		Train:     Score(ds.Y, pred),
		Fallback:  true,
	}, nil
}

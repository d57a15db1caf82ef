// Package backtest replays the ledger through the active model and grades
// each day's prediction against the catch that was actually recorded.
package backtest

import (
	"fmt"
	"math"
	"time"

	"catch-forecast/internal/features"
	"catch-forecast/internal/ml"
	"catch-forecast/internal/records"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Predictor is the part of ml.Manager the engine needs.
type Predictor interface {
	Predict(f ml.Frame) ([]float64, error)
}

// DayResult is one graded day.
type DayResult struct {
	Date       time.Time           `json:"date"`
	Predicted  int                 `json:"predicted"`
	Actual     int                 `json:"actual"`
	Entries    int                 `json:"entries"`
	Conditions features.Conditions `json:"conditions"`
	Accuracy   Accuracy            `json:"accuracy"`
}

// Results holds a backtest run.
type Results struct {
	Species     string        `json:"species"`
	From        time.Time     `json:"from"`
	To          time.Time     `json:"to"`
	Days        []DayResult   `json:"days"`
	Scores      ml.Scores     `json:"scores"`
	GradeCounts map[Grade]int `json:"grade_counts"`
	HitRate     float64       `json:"hit_rate"` // share of days graded good or better
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
}

// Engine runs backtests for one species.
type Engine struct {
	predictor Predictor
	builder   *features.Builder
	clock     clockwork.Clock
}

// NewEngine creates an engine. clock may be nil.
func NewEngine(predictor Predictor, species string, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		predictor: predictor,
		builder:   features.NewBuilder(species),
		clock:     clock,
	}
}

// Run predicts every target-species day in [from, to] and grades it. Zero
// bounds are open. Feature vectors are built over the whole ledger so that
// missing values are filled exactly as they were for training.
func (e *Engine) Run(recs []records.Record, from, to time.Time) (*Results, error) {
	start := e.clock.Now()
	ds, err := e.builder.Build(recs)
	if err != nil {
		return nil, err
	}

	var rows [][]float64
	var idx []int
	for i, d := range ds.Dates {
		if !from.IsZero() && d.Before(from) {
			continue
		}
		if !to.IsZero() && d.After(to) {
			continue
		}
		rows = append(rows, ds.X[i])
		idx = append(idx, i)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no %s days between %s and %s: %w",
			e.builder.Species(), from.Format("2006-01-02"), to.Format("2006-01-02"), records.ErrNoData)
	}

	log.Info().
		Str("species", e.builder.Species()).
		Int("days", len(rows)).
		Msg("Starting backtest")

	preds, err := e.predictor.Predict(ml.Frame{Columns: ds.Names, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	entries := make(map[time.Time]int)
	for _, d := range e.builder.Days(recs) {
		entries[d.Date] = d.Entries
	}

	res := &Results{
		Species:     e.builder.Species(),
		From:        ds.Dates[idx[0]],
		To:          ds.Dates[idx[len(idx)-1]],
		GradeCounts: make(map[Grade]int, len(Grades)),
		StartTime:   start,
	}
	actual := make([]float64, len(idx))
	predicted := make([]float64, len(idx))
	hits := 0
	for k, i := range idx {
		p := int(math.Round(preds[k]))
		a := int(ds.Y[i])
		acc := Measure(p, a)
		res.Days = append(res.Days, DayResult{
			Date:       ds.Dates[i],
			Predicted:  p,
			Actual:     a,
			Entries:    entries[ds.Dates[i]],
			Conditions: features.FromVector(ds.X[i]),
			Accuracy:   acc,
		})
		res.GradeCounts[acc.Grade]++
		switch acc.Grade {
		case GradePerfect, GradeExcellent, GradeGood:
			hits++
		}
		actual[k] = float64(a)
		predicted[k] = float64(p)
	}
	res.Scores = ml.Score(actual, predicted)
	res.HitRate = float64(hits) / float64(len(idx))
	res.EndTime = e.clock.Now()

	log.Info().
		Int("days", len(res.Days)).
		Float64("mae", res.Scores.MAE).
		Float64("hit_rate", res.HitRate).
		Msg("Backtest completed")
	return res, nil
}

// Package visitors estimates how many anglers visit under a given weather
// and weekday, from the visitor counts recorded in the ledger.
package visitors

import (
	"fmt"
	"math"
	"strings"
	"time"

	"catch-forecast/internal/records"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

// BaselineVisitors seeds estimates for a weather with no observations at all.
const BaselineVisitors = 300.0

// Confidence tiers by sample count.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Weekdays in table order, Monday first.
var Weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

var weekdayFactor = map[time.Weekday]float64{
	time.Monday:    0.8,
	time.Tuesday:   0.85,
	time.Wednesday: 0.9,
	time.Thursday:  0.95,
	time.Friday:    1.0,
	time.Saturday:  1.3,
	time.Sunday:    1.25,
}

var weatherFactor = map[records.Weather]float64{
	records.Sunny:  1.1,
	records.Cloudy: 1.0,
	records.Rainy:  0.7,
	records.Snowy:  0.5,
}

// Key returns the cell key, e.g. "sunny_monday".
func Key(w records.Weather, d time.Weekday) string {
	return string(w) + "_" + strings.ToLower(d.String())
}

// Cell is the visitor distribution for one weather and weekday. Estimated
// cells have no observations and carry a derived mean.
type Cell struct {
	Weather   records.Weather `json:"weather"`
	Weekday   string          `json:"weekday"`
	Mean      float64         `json:"avg"`
	Std       float64         `json:"std"`
	Count     int             `json:"count"`
	Min       int             `json:"min"`
	Max       int             `json:"max"`
	Estimated bool            `json:"estimated"`
}

// DateRange is an inclusive span of ledger dates.
type DateRange struct {
	From time.Time `json:"start"`
	To   time.Time `json:"end"`
}

// Statistics describes the data behind a table.
type Statistics struct {
	TotalRecords   int            `json:"total_records"`
	DateRange      DateRange      `json:"date_range"`
	WeatherCounts  map[string]int `json:"weather_distribution"`
	WeekdayCounts  map[string]int `json:"weekday_distribution"`
	PatternCounts  map[string]int `json:"pattern_counts"`
	ObservedCells  int            `json:"observed_cells"`
	EstimatedCells int            `json:"estimated_cells"`
	OverallAverage float64        `json:"overall_average"`
	CalculatedAt   time.Time      `json:"calculation_time"`
}

// Table holds all 28 cells.
type Table struct {
	Cells map[string]Cell `json:"averages"`
	Stats Statistics      `json:"statistics"`
}

// Estimate is the expected visitor count for a date and weather.
type Estimate struct {
	Visitors    float64         `json:"estimated_visitors"`
	Weather     records.Weather `json:"weather"`
	Weekday     string          `json:"weekday"`
	Confidence  string          `json:"confidence"`
	SampleCount int             `json:"sample_count"`
	Estimated   bool            `json:"estimated"`
}

// Engine computes visitor tables.
type Engine struct {
	clock clockwork.Clock
}

func NewEngine(clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{clock: clock}
}

// Compute builds the table from every record that has a weather category
// and a visitor count. Each such record is one sample. Cells without
// samples are estimated from the observed cells of the same weather.
func (e *Engine) Compute(recs []records.Record) (*Table, error) {
	samples := make(map[string][]float64)
	stats := Statistics{
		WeatherCounts: make(map[string]int),
		WeekdayCounts: make(map[string]int),
		PatternCounts: make(map[string]int),
	}
	var all []float64

	for _, r := range recs {
		if !r.Weather.Valid() || r.Visitors == nil {
			continue
		}
		wd := r.Date.Weekday()
		key := Key(r.Weather, wd)
		v := float64(*r.Visitors)
		samples[key] = append(samples[key], v)
		all = append(all, v)

		stats.WeatherCounts[string(r.Weather)]++
		stats.WeekdayCounts[strings.ToLower(wd.String())]++
		stats.PatternCounts[key]++
		day := r.Day()
		if stats.DateRange.From.IsZero() || day.Before(stats.DateRange.From) {
			stats.DateRange.From = day
		}
		if day.After(stats.DateRange.To) {
			stats.DateRange.To = day
		}
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no records with weather and visitor count: %w", records.ErrNoData)
	}

	cells := make(map[string]Cell, len(records.Weathers)*len(Weekdays))
	for _, w := range records.Weathers {
		for _, wd := range Weekdays {
			key := Key(w, wd)
			if vals := samples[key]; len(vals) > 0 {
				cells[key] = observedCell(w, wd, vals)
			}
		}
	}
	for _, w := range records.Weathers {
		base := BaselineVisitors
		var means []float64
		for _, wd := range Weekdays {
			if c, ok := cells[Key(w, wd)]; ok {
				means = append(means, c.Mean)
			}
		}
		if len(means) > 0 {
			base = stat.Mean(means, nil)
		}
		for _, wd := range Weekdays {
			key := Key(w, wd)
			if _, ok := cells[key]; ok {
				continue
			}
			cells[key] = Cell{
				Weather:   w,
				Weekday:   strings.ToLower(wd.String()),
				Mean:      round1(base * weekdayFactor[wd] * weatherFactor[w]),
				Estimated: true,
			}
			stats.EstimatedCells++
		}
	}

	stats.TotalRecords = len(all)
	stats.ObservedCells = len(cells) - stats.EstimatedCells
	stats.OverallAverage = round1(stat.Mean(all, nil))
	stats.CalculatedAt = e.clock.Now()

	log.Info().
		Int("records", stats.TotalRecords).
		Int("observed_cells", stats.ObservedCells).
		Int("estimated_cells", stats.EstimatedCells).
		Msg("Visitor statistics computed")

	return &Table{Cells: cells, Stats: stats}, nil
}

func observedCell(w records.Weather, wd time.Weekday, vals []float64) Cell {
	mean, std := stat.PopMeanStdDev(vals, nil)
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return Cell{
		Weather: w,
		Weekday: strings.ToLower(wd.String()),
		Mean:    round1(mean),
		Std:     round1(std),
		Count:   len(vals),
		Min:     int(lo),
		Max:     int(hi),
	}
}

// Estimate looks up the cell for the weekday of date.
func (t *Table) Estimate(date time.Time, w records.Weather) (Estimate, error) {
	if !w.Valid() {
		return Estimate{}, fmt.Errorf("unknown weather %q", w)
	}
	wd := date.Weekday()
	c, ok := t.Cells[Key(w, wd)]
	if !ok {
		return Estimate{}, fmt.Errorf("no cell for %s: %w", Key(w, wd), records.ErrNoData)
	}
	return Estimate{
		Visitors:    c.Mean,
		Weather:     w,
		Weekday:     c.Weekday,
		Confidence:  ConfidenceFor(c.Count),
		SampleCount: c.Count,
		Estimated:   c.Estimated,
	}, nil
}

// ConfidenceFor maps a sample count to a tier.
func ConfidenceFor(n int) string {
	switch {
	case n >= 5:
		return ConfidenceHigh
	case n >= 2:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

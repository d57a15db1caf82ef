// Package features derives the per-day feature vectors the catch model is
// trained and queried on.
package features

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"catch-forecast/internal/records"

	"github.com/rs/zerolog/log"
)

// Column names of the feature vector, in order.
const (
	Month     = "month"
	Season    = "season"
	Weather   = "weather"
	WaterTemp = "water_temp"
	Tide      = "tide"
	Visitors  = "visitors"
)

// Names is the feature schema shared by training and prediction.
var Names = []string{Month, Season, Weather, WaterTemp, Tide, Visitors}

// SeasonCode buckets a month: spring 0 (3-5), summer 1 (6-8), autumn 2 (9-11)
// and winter 3 (12-2).
func SeasonCode(m time.Month) int {
	switch {
	case m >= time.March && m <= time.May:
		return 0
	case m >= time.June && m <= time.August:
		return 1
	case m >= time.September && m <= time.November:
		return 2
	default:
		return 3
	}
}

// Day is one target-species day: the summed catch and the first non-null
// environmental reading seen for that date.
type Day struct {
	Date        time.Time
	Catch       int
	Entries     int
	Weather     records.Weather
	WeatherText string
	WaterTemp   *float64
	Tide        records.Tide
	Visitors    *int
}

// Dataset is an aligned feature matrix and target vector in date order.
type Dataset struct {
	Names []string
	X     [][]float64
	Y     []float64
	Dates []time.Time
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Y) }

// Slice returns rows [from, to) sharing the underlying storage.
func (d *Dataset) Slice(from, to int) *Dataset {
	return &Dataset{Names: d.Names, X: d.X[from:to], Y: d.Y[from:to], Dates: d.Dates[from:to]}
}

// Builder turns normalized records into a Dataset for one species.
type Builder struct {
	species string
}

// NewBuilder creates a builder for the given target species.
func NewBuilder(species string) *Builder {
	return &Builder{species: strings.TrimSpace(species)}
}

// Species returns the target species.
func (b *Builder) Species() string { return b.species }

// Days groups the target species records by date, ascending. Catch counts
// from every location are summed; each environmental field takes the first
// non-null value in ledger order.
func (b *Builder) Days(recs []records.Record) []Day {
	byDate := make(map[time.Time]*Day)
	var order []time.Time

	for _, r := range recs {
		if r.Species != b.species {
			continue
		}
		key := r.Day()
		d, ok := byDate[key]
		if !ok {
			d = &Day{Date: key}
			byDate[key] = d
			order = append(order, key)
		}
		d.Catch += r.CatchCount
		d.Entries++
		if d.Weather == "" {
			d.Weather = r.Weather
			d.WeatherText = r.WeatherText
		}
		if d.WaterTemp == nil {
			d.WaterTemp = r.WaterTemp
		}
		if d.Tide == "" {
			d.Tide = r.Tide
		}
		if d.Visitors == nil {
			d.Visitors = r.Visitors
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })
	days := make([]Day, len(order))
	for i, key := range order {
		days[i] = *byDate[key]
	}
	return days
}

// Build produces the training dataset. Missing temperatures and visitor
// counts are filled with the column mean over the days being built.
func (b *Builder) Build(recs []records.Record) (*Dataset, error) {
	days := b.Days(recs)
	if len(days) == 0 {
		return nil, fmt.Errorf("no %s records: %w", b.species, records.ErrNoData)
	}

	tempMean := meanOf(days, func(d Day) (float64, bool) {
		if d.WaterTemp == nil {
			return 0, false
		}
		return *d.WaterTemp, true
	})
	visitorMean := meanOf(days, func(d Day) (float64, bool) {
		if d.Visitors == nil {
			return 0, false
		}
		return float64(*d.Visitors), true
	})

	ds := &Dataset{
		Names: append([]string(nil), Names...),
		X:     make([][]float64, len(days)),
		Y:     make([]float64, len(days)),
		Dates: make([]time.Time, len(days)),
	}
	filled := 0
	for i, d := range days {
		temp := tempMean
		if d.WaterTemp != nil {
			temp = *d.WaterTemp
		} else {
			filled++
		}
		visitors := visitorMean
		if d.Visitors != nil {
			visitors = float64(*d.Visitors)
		} else {
			filled++
		}
		c := Conditions{
			Month:     int(d.Date.Month()),
			Season:    SeasonCode(d.Date.Month()),
			Weather:   records.WeatherCode(d.WeatherText, d.Weather),
			WaterTemp: temp,
			Tide:      d.Tide.Code(),
			Visitors:  visitors,
		}
		ds.X[i] = c.Vector()
		ds.Y[i] = float64(d.Catch)
		ds.Dates[i] = d.Date
	}

	log.Debug().
		Str("species", b.species).
		Int("days", len(days)).
		Int("filled", filled).
		Msg("Built feature dataset")
	return ds, nil
}

// meanOf averages the present values; an all-missing column yields 0.
func meanOf(days []Day, get func(Day) (float64, bool)) float64 {
	var sum float64
	var n int
	for _, d := range days {
		if v, ok := get(d); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

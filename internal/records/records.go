// Package records turns the free-text rows of the fishing ledger into typed
// records. Every downstream component (features, visitor statistics, history)
// works on the Record type produced here and never re-parses raw text.
package records

import (
	"errors"
	"time"
)

// ErrNoData is returned when a computation has no usable records to work on.
var ErrNoData = errors.New("no data")

// Weather is a canonical weather category. The zero value means absent.
type Weather string

const (
	Sunny  Weather = "sunny"
	Cloudy Weather = "cloudy"
	Rainy  Weather = "rainy"
	Snowy  Weather = "snowy"
)

// Weathers lists the categories in code order.
var Weathers = []Weather{Sunny, Cloudy, Rainy, Snowy}

// Code returns the category ordinal. Absent or unknown weather is cloudy.
// The feature vector encodes from the ledger text, see WeatherCode.
func (w Weather) Code() int {
	switch w {
	case Sunny:
		return 0
	case Rainy:
		return 2
	case Snowy:
		return 3
	default:
		return 1
	}
}

// Valid reports whether w is one of the four categories.
func (w Weather) Valid() bool {
	switch w {
	case Sunny, Cloudy, Rainy, Snowy:
		return true
	}
	return false
}

// Tide is a canonical tide phase. The zero value means absent.
type Tide string

const (
	SpringTide Tide = "spring" // 大潮
	MediumTide Tide = "medium" // 中潮
	NeapTide   Tide = "neap"   // 小潮
	LongTide   Tide = "long"   // 長潮
	YoungTide  Tide = "young"  // 若潮
)

// Tides lists the phases in code order.
var Tides = []Tide{SpringTide, MediumTide, NeapTide, LongTide, YoungTide}

// Code returns the ordinal used by the feature vector. Absent tide encodes
// as medium.
func (t Tide) Code() int {
	switch t {
	case SpringTide:
		return 0
	case NeapTide:
		return 2
	case LongTide:
		return 3
	case YoungTide:
		return 4
	default:
		return 1
	}
}

// Label returns the Japanese ledger label for the phase.
func (t Tide) Label() string {
	return tideLabels[t]
}

// RawRecord is one ledger row exactly as entered: one species caught at one
// location on one date. No field is guaranteed to be well formed.
type RawRecord struct {
	Date       string `csv:"date" json:"date"`
	Weather    string `csv:"weather" json:"weather"`
	WaterTemp  string `csv:"water_temp" json:"water_temp"`
	Tide       string `csv:"tide" json:"tide"`
	Visitors   string `csv:"visitors" json:"visitors"`
	Species    string `csv:"species" json:"species"`
	CatchCount string `csv:"catch_count" json:"catch_count"`
	Size       string `csv:"size" json:"size"`
	Location   string `csv:"location" json:"location"`
	Comment    string `csv:"comment" json:"comment"`
}

// Record is a normalized ledger row. Optional measurements are nil when the
// source text was missing or unusable.
type Record struct {
	Date        time.Time `json:"date"`
	Weather     Weather   `json:"weather,omitempty"`
	WeatherText string    `json:"weather_text,omitempty"`
	Tide        Tide      `json:"tide,omitempty"`
	TideText    string    `json:"tide_text,omitempty"`
	WaterTemp   *float64  `json:"water_temp,omitempty"`
	Visitors    *int      `json:"visitors,omitempty"`
	Species     string    `json:"species"`
	CatchCount  int       `json:"catch_count"`
	Size        string    `json:"size,omitempty"`
	Location    string    `json:"location,omitempty"`
	Comment     string    `json:"comment,omitempty"`
}

// Day returns the record date truncated to midnight UTC.
func (r Record) Day() time.Time {
	return time.Date(r.Date.Year(), r.Date.Month(), r.Date.Day(), 0, 0, 0, 0, time.UTC)
}

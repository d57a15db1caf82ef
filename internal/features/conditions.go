package features

import (
	"time"

	"catch-forecast/internal/records"
)

// Conditions is a single feature vector with named fields.
type Conditions struct {
	Month     int     `json:"month"`
	Season    int     `json:"season"`
	Weather   int     `json:"weather"`
	WaterTemp float64 `json:"water_temp"`
	Tide      int     `json:"tide"`
	Visitors  float64 `json:"visitors"`
}

// ConditionsFor builds the vector for a calendar date and observed values.
// weather is ledger text and is encoded the same way as training days.
func ConditionsFor(date time.Time, weather string, t records.Tide, waterTemp float64, visitors int) Conditions {
	return Conditions{
		Month:     int(date.Month()),
		Season:    SeasonCode(date.Month()),
		Weather:   records.WeatherCode(weather, ""),
		WaterTemp: waterTemp,
		Tide:      t.Code(),
		Visitors:  float64(visitors),
	}
}

// Vector returns the values in Names order.
func (c Conditions) Vector() []float64 {
	return []float64{
		float64(c.Month),
		float64(c.Season),
		float64(c.Weather),
		c.WaterTemp,
		float64(c.Tide),
		c.Visitors,
	}
}

// FromVector is the inverse of Vector.
func FromVector(v []float64) Conditions {
	return Conditions{
		Month:     int(v[0]),
		Season:    int(v[1]),
		Weather:   int(v[2]),
		WaterTemp: v[3],
		Tide:      int(v[4]),
		Visitors:  v[5],
	}
}

// Named returns the values keyed by column name.
func (c Conditions) Named() map[string]float64 {
	v := c.Vector()
	out := make(map[string]float64, len(Names))
	for i, name := range Names {
		out[name] = v[i]
	}
	return out
}

// Package history filters, sorts and summarizes ledger records for display.
package history

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"catch-forecast/internal/records"
)

// AllSpecies disables the species filter.
const AllSpecies = "all"

// Query selects records. Zero-valued fields do not filter. Weather and Tide
// accept ledger phrases or canonical names and match on the category.
type Query struct {
	Species string
	From    time.Time
	To      time.Time
	Weather string
	Tide    string
	Limit   int
}

// Group aggregates catches for one key.
type Group struct {
	Days       int     `json:"days"`
	TotalCatch int     `json:"total_catch"`
	AvgCatch   float64 `json:"avg_catch"`
}

// Summary describes the whole filtered set, not just the returned page.
type Summary struct {
	Records    int              `json:"total_records"`
	Original   int              `json:"original_records"`
	TotalCatch int              `json:"total_catch"`
	AvgCatch   float64          `json:"avg_catch"`
	MaxCatch   int              `json:"max_catch"`
	MinCatch   int              `json:"min_catch"`
	From       time.Time        `json:"date_from"`
	To         time.Time        `json:"date_to"`
	ByMonth    map[string]Group `json:"by_month"`
	BySpecies  map[string]Group `json:"by_species"`
	ByWeather  map[string]Group `json:"by_weather"`
}

// Result is the answer to a Query.
type Result struct {
	Records       []records.Record `json:"records"`
	TotalCount    int              `json:"total_count"`
	ReturnedCount int              `json:"returned_count"`
	Summary       Summary          `json:"summary"`
}

// Run applies q to recs. Matching records are sorted by date descending,
// ties keep ledger order, and the limit applies after sorting.
func Run(recs []records.Record, q Query) (*Result, error) {
	weather, err := weatherFilter(q.Weather)
	if err != nil {
		return nil, err
	}
	tide, err := tideFilter(q.Tide)
	if err != nil {
		return nil, err
	}
	species := strings.TrimSpace(q.Species)
	if strings.EqualFold(species, AllSpecies) {
		species = ""
	}

	matched := make([]records.Record, 0, len(recs))
	for _, r := range recs {
		if species != "" && r.Species != species {
			continue
		}
		day := r.Day()
		if !q.From.IsZero() && day.Before(dayOf(q.From)) {
			continue
		}
		if !q.To.IsZero() && day.After(dayOf(q.To)) {
			continue
		}
		if weather != "" && r.Weather != weather {
			continue
		}
		if tide != "" && r.Tide != tide {
			continue
		}
		matched = append(matched, r)
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("no records match the query: %w", records.ErrNoData)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Date.After(matched[j].Date)
	})

	res := &Result{
		TotalCount: len(matched),
		Summary:    summarize(matched, len(recs)),
	}
	page := matched
	if q.Limit > 0 && q.Limit < len(page) {
		page = page[:q.Limit]
	}
	res.Records = page
	res.ReturnedCount = len(page)
	return res, nil
}

func summarize(recs []records.Record, original int) Summary {
	s := Summary{
		Records:   len(recs),
		Original:  original,
		MinCatch:  recs[0].CatchCount,
		MaxCatch:  recs[0].CatchCount,
		From:      recs[0].Day(),
		To:        recs[0].Day(),
		ByMonth:   make(map[string]Group),
		BySpecies: make(map[string]Group),
		ByWeather: make(map[string]Group),
	}
	for _, r := range recs {
		s.TotalCatch += r.CatchCount
		s.MinCatch = min(s.MinCatch, r.CatchCount)
		s.MaxCatch = max(s.MaxCatch, r.CatchCount)
		day := r.Day()
		if day.Before(s.From) {
			s.From = day
		}
		if day.After(s.To) {
			s.To = day
		}

		addTo(s.ByMonth, r.Date.Format("2006-01"), r.CatchCount)
		addTo(s.BySpecies, r.Species, r.CatchCount)
		w := string(r.Weather)
		if w == "" {
			w = "unknown"
		}
		addTo(s.ByWeather, w, r.CatchCount)
	}
	s.AvgCatch = round1(float64(s.TotalCatch) / float64(len(recs)))
	for _, m := range []map[string]Group{s.ByMonth, s.BySpecies, s.ByWeather} {
		for k, g := range m {
			g.AvgCatch = round1(float64(g.TotalCatch) / float64(g.Days))
			m[k] = g
		}
	}
	return s
}

func addTo(m map[string]Group, key string, catch int) {
	g := m[key]
	g.Days++
	g.TotalCatch += catch
	m[key] = g
}

func weatherFilter(text string) (records.Weather, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	w, ok := records.LookupWeather(text)
	if !ok {
		return "", fmt.Errorf("unknown weather filter %q", text)
	}
	return w, nil
}

func tideFilter(text string) (records.Tide, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	t := records.ParseTide(text)
	if t == "" {
		return "", fmt.Errorf("unknown tide filter %q", text)
	}
	return t, nil
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

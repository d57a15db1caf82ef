package records

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Drop reasons reported by the normalizer.
const (
	ReasonBadDate       = "bad_date"
	ReasonMissingSpecie = "missing_species"
	ReasonBadCatch      = "bad_catch"
	ReasonNegativeCatch = "negative_catch"
)

// ParseError describes why a raw row was dropped.
type ParseError struct {
	Row    int
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("row %d: %s %q: %s: %v", e.Row, e.Field, e.Value, e.Reason, e.Err)
	}
	return fmt.Sprintf("row %d: %s %q: %s", e.Row, e.Field, e.Value, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Report summarizes one normalization pass.
type Report struct {
	Total   int            `json:"total"`
	Kept    int            `json:"kept"`
	Dropped int            `json:"dropped"`
	Reasons map[string]int `json:"reasons,omitempty"`
	Errors  []*ParseError  `json:"-"`
}

// MetricsInterface receives drop counts.
type MetricsInterface interface {
	RecordsDroppedInc(reason string)
}

// Normalizer converts raw ledger rows into records.
type Normalizer struct {
	metrics MetricsInterface
}

// NewNormalizer creates a normalizer. metrics may be nil.
func NewNormalizer(metrics MetricsInterface) *Normalizer {
	return &Normalizer{metrics: metrics}
}

// Normalize converts every row it can and reports the rest. Rows keep their
// ledger order.
func (n *Normalizer) Normalize(raws []RawRecord) ([]Record, Report) {
	report := Report{Total: len(raws), Reasons: make(map[string]int)}
	out := make([]Record, 0, len(raws))

	for i, raw := range raws {
		rec, err := NormalizeOne(raw)
		if err != nil {
			var pe *ParseError
			if !errors.As(err, &pe) {
				pe = &ParseError{Reason: "unknown", Err: err}
			}
			pe.Row = i
			report.Dropped++
			report.Reasons[pe.Reason]++
			report.Errors = append(report.Errors, pe)
			if n.metrics != nil {
				n.metrics.RecordsDroppedInc(pe.Reason)
			}
			log.Debug().Err(pe).Msg("Dropped ledger row")
			continue
		}
		out = append(out, rec)
	}
	report.Kept = len(out)

	if report.Dropped > 0 {
		log.Info().
			Int("total", report.Total).
			Int("dropped", report.Dropped).
			Interface("reasons", report.Reasons).
			Msg("Normalized ledger with dropped rows")
	}
	return out, report
}

// NormalizeOne converts a single row. Rows without a usable date, species or
// non-negative catch count return a *ParseError; other fields degrade to nil.
func NormalizeOne(raw RawRecord) (Record, error) {
	date, err := ParseDate(raw.Date)
	if err != nil {
		return Record{}, &ParseError{Field: "date", Value: raw.Date, Reason: ReasonBadDate, Err: err}
	}

	species := strings.TrimSpace(raw.Species)
	if species == "" {
		return Record{}, &ParseError{Field: "species", Value: raw.Species, Reason: ReasonMissingSpecie}
	}

	catch, err := ParseCatch(raw.CatchCount)
	if err != nil {
		return Record{}, &ParseError{Field: "catch_count", Value: raw.CatchCount, Reason: ReasonBadCatch, Err: err}
	}
	if catch < 0 {
		return Record{}, &ParseError{Field: "catch_count", Value: raw.CatchCount, Reason: ReasonNegativeCatch}
	}

	weatherText := strings.TrimSpace(raw.Weather)
	tideText := strings.TrimSpace(raw.Tide)

	return Record{
		Date:        date,
		Weather:     ParseWeather(weatherText),
		WeatherText: weatherText,
		Tide:        ParseTide(tideText),
		TideText:    tideText,
		WaterTemp:   ParseTemperature(raw.WaterTemp),
		Visitors:    ParseVisitors(raw.Visitors),
		Species:     species,
		CatchCount:  catch,
		Size:        strings.TrimSpace(raw.Size),
		Location:    strings.TrimSpace(raw.Location),
		Comment:     strings.TrimSpace(raw.Comment),
	}, nil
}

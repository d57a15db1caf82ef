// Package service is the query boundary of the forecaster. Every call
// reloads the ledger from its source, normalizes it and answers with a
// structured result; errors never cross this boundary as Go errors.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catch-forecast/internal/features"
	"catch-forecast/internal/history"
	"catch-forecast/internal/ml"
	"catch-forecast/internal/records"
	"catch-forecast/internal/visitors"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Source yields the current raw ledger.
type Source interface {
	LoadRaw(ctx context.Context) ([]records.RawRecord, error)
}

// Predictor is the part of ml.Manager the service needs.
type Predictor interface {
	PredictSingle(c features.Conditions) (float64, error)
	Info() ml.ModelInfo
}

// MetricsInterface receives request outcomes.
type MetricsInterface interface {
	RequestInc(operation, outcome string)
	PredictedCatchObserve(v float64)
}

// Config wires a Service. Metrics and Clock may be nil.
type Config struct {
	Species    string
	Source     Source
	Predictor  Predictor
	Normalizer *records.Normalizer
	Clock      clockwork.Clock
	Metrics    MetricsInterface
}

// Service answers historical, visitor and prediction queries.
type Service struct {
	species    string
	source     Source
	predictor  Predictor
	normalizer *records.Normalizer
	builder    *features.Builder
	visitors   *visitors.Engine
	clock      clockwork.Clock
	metrics    MetricsInterface
}

func New(cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = records.NewNormalizer(nil)
	}
	return &Service{
		species:    cfg.Species,
		source:     cfg.Source,
		predictor:  cfg.Predictor,
		normalizer: cfg.Normalizer,
		builder:    features.NewBuilder(cfg.Species),
		visitors:   visitors.NewEngine(cfg.Clock),
		clock:      cfg.Clock,
		metrics:    cfg.Metrics,
	}
}

// Species is the prediction target.
func (s *Service) Species() string { return s.species }

func (s *Service) load(ctx context.Context) ([]records.Record, records.Report, error) {
	raws, err := s.source.LoadRaw(ctx)
	if err != nil {
		return nil, records.Report{}, fmt.Errorf("load ledger: %w", err)
	}
	recs, report := s.normalizer.Normalize(raws)
	return recs, report, nil
}

func (s *Service) observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		log.Warn().Err(err).Str("operation", op).Msg("Request failed")
	}
	if s.metrics != nil {
		s.metrics.RequestInc(op, outcome)
	}
}

// userMessage turns an internal error into text fit for the response.
func userMessage(err error) string {
	var loadErr *ml.ModelLoadError
	switch {
	case errors.Is(err, records.ErrNoData):
		return "no data available: " + err.Error()
	case errors.Is(err, ml.ErrNotTrained):
		return "prediction model is not trained"
	case errors.Is(err, ml.ErrSchemaMismatch):
		return "prediction model schema does not match the request: " + err.Error()
	case errors.As(err, &loadErr):
		return "prediction model could not be loaded: " + err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "request cancelled"
	default:
		return err.Error()
	}
}

// HistoricalQuery is the wire form of history.Query. Dates are YYYY-MM-DD
// or YYYY/MM/DD; empty strings do not filter.
type HistoricalQuery struct {
	Species   string `json:"fish"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Weather   string `json:"weather"`
	Tide      string `json:"tide"`
	Limit     int    `json:"limit" validate:"gte=0,lte=1000"`
}

// DefaultHistoricalLimit applies when a query sets no limit.
const DefaultHistoricalLimit = 50

// HistoricalResult answers Historical.
type HistoricalResult struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    *history.Result `json:"data,omitempty"`
	Filters HistoricalQuery `json:"filters"`
}

// Historical filters and summarizes the ledger.
func (s *Service) Historical(ctx context.Context, q HistoricalQuery) (res HistoricalResult) {
	res.Filters = q
	var err error
	defer func() { s.observe("historical", err) }()

	hq := history.Query{
		Species: q.Species,
		Weather: q.Weather,
		Tide:    q.Tide,
		Limit:   q.Limit,
	}
	if hq.Species == "" {
		hq.Species = history.AllSpecies
	}
	if hq.Limit == 0 {
		hq.Limit = DefaultHistoricalLimit
	}
	if hq.From, err = optionalDate(q.StartDate); err != nil {
		res.Error = "invalid start_date: " + err.Error()
		return res
	}
	if hq.To, err = optionalDate(q.EndDate); err != nil {
		res.Error = "invalid end_date: " + err.Error()
		return res
	}

	recs, _, err := s.load(ctx)
	if err != nil {
		res.Error = userMessage(err)
		return res
	}
	data, err := history.Run(recs, hq)
	if err != nil {
		res.Error = userMessage(err)
		return res
	}
	res.Success = true
	res.Data = data
	return res
}

// VisitorAveragesResult answers VisitorAverages.
type VisitorAveragesResult struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    *visitors.Table `json:"data,omitempty"`
}

// VisitorAverages computes the weather by weekday visitor table.
func (s *Service) VisitorAverages(ctx context.Context) (res VisitorAveragesResult) {
	var err error
	defer func() { s.observe("visitor_averages", err) }()

	table, err := s.visitorTable(ctx)
	if err != nil {
		res.Error = userMessage(err)
		return res
	}
	res.Success = true
	res.Data = table
	return res
}

func (s *Service) visitorTable(ctx context.Context) (*visitors.Table, error) {
	recs, _, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return s.visitors.Compute(recs)
}

// VisitorEstimateResult answers VisitorEstimate.
type VisitorEstimateResult struct {
	Success  bool               `json:"success"`
	Error    string             `json:"error,omitempty"`
	Date     string             `json:"date"`
	Estimate *visitors.Estimate `json:"estimate,omitempty"`
}

// VisitorEstimate returns the expected visitor count for a date and
// weather phrase.
func (s *Service) VisitorEstimate(ctx context.Context, date, weather string) (res VisitorEstimateResult) {
	res.Date = date
	var err error
	defer func() { s.observe("visitor_estimate", err) }()

	day, err := records.ParseDate(date)
	if err != nil {
		res.Error = "invalid date: " + err.Error()
		return res
	}
	w, ok := records.LookupWeather(weather)
	if !ok {
		err = fmt.Errorf("unknown weather %q", weather)
		res.Error = err.Error()
		return res
	}
	table, err := s.visitorTable(ctx)
	if err != nil {
		res.Error = userMessage(err)
		return res
	}
	est, err := table.Estimate(day, w)
	if err != nil {
		res.Error = userMessage(err)
		return res
	}
	res.Success = true
	res.Estimate = &est
	return res
}

// Status describes component availability.
type Status struct {
	API             string `json:"api"`
	Model           string `json:"model"`
	HistoricalData  string `json:"historical_data"`
	VisitorAnalysis string `json:"visitor_analysis"`
}

// StatusResult answers Status.
type StatusResult struct {
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	Status    Status          `json:"status"`
	ModelInfo *ml.ModelInfo   `json:"model_info,omitempty"`
	Ledger    *records.Report `json:"ledger,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Status reports model and data availability. It succeeds even when parts
// are unavailable; Error then explains the ledger failure.
func (s *Service) Status(ctx context.Context) (res StatusResult) {
	res.Timestamp = s.clock.Now()
	res.Success = true
	res.Status = Status{API: "running", Model: "not_loaded", HistoricalData: "unavailable", VisitorAnalysis: "unavailable"}
	defer func() { s.observe("status", nil) }()

	if s.predictor != nil {
		info := s.predictor.Info()
		res.ModelInfo = &info
		if info.TrainedAt != nil {
			res.Status.Model = "loaded"
			if info.Degraded {
				res.Status.Model = "degraded"
			}
		}
	}

	recs, report, err := s.load(ctx)
	if err != nil {
		res.Error = userMessage(err)
		return res
	}
	res.Ledger = &report
	if len(recs) > 0 {
		res.Status.HistoricalData = "available"
	}
	if _, err := s.visitors.Compute(recs); err == nil {
		res.Status.VisitorAnalysis = "available"
	}
	return res
}

func optionalDate(text string) (time.Time, error) {
	if text == "" {
		return time.Time{}, nil
	}
	return records.ParseDate(text)
}

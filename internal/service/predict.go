package service

import (
	"context"
	"math"
	"time"

	"catch-forecast/internal/backtest"
	"catch-forecast/internal/features"
	"catch-forecast/internal/ml"
	"catch-forecast/internal/records"

	"github.com/rs/zerolog/log"
)

// Prediction confidence tiers.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// PredictRequest describes the day to forecast. Weather and tide accept
// the ledger vocabulary.
type PredictRequest struct {
	Date      string  `json:"date" validate:"required"`
	Weather   string  `json:"weather" validate:"required"`
	Visitors  int     `json:"visitors" validate:"gte=0,lte=2000"`
	WaterTemp float64 `json:"water_temp" validate:"gte=-5,lte=40"`
	Tide      string  `json:"tide" validate:"required"`
}

// ModelSummary identifies the model that answered.
type ModelSummary struct {
	Kind     ml.Kind  `json:"type"`
	Features []string `json:"features"`
	Degraded bool     `json:"degraded"`
}

// Prediction is a successful forecast.
type Prediction struct {
	CatchCount      int                 `json:"catch_count"`
	ActualCatch     *int                `json:"actual_catch"`
	IsHistorical    bool                `json:"is_historical"`
	Accuracy        *backtest.Accuracy  `json:"accuracy_metrics"`
	Confidence      string              `json:"confidence"`
	Input           PredictRequest      `json:"input_conditions"`
	Conditions      features.Conditions `json:"features"`
	Model           ModelSummary        `json:"model_info"`
	Recommendations []string            `json:"recommendations"`
	PredictedAt     time.Time           `json:"predicted_at"`
}

// PredictResult answers Predict.
type PredictResult struct {
	Success    bool        `json:"success"`
	Error      string      `json:"error,omitempty"`
	Prediction *Prediction `json:"prediction,omitempty"`
}

// Predict forecasts the target species catch for the requested day. For a
// date before today the recorded catch, if any, is returned and graded.
func (s *Service) Predict(ctx context.Context, req PredictRequest) (res PredictResult) {
	var err error
	defer func() { s.observe("predict", err) }()

	if s.predictor == nil {
		err = ml.ErrNotTrained
		res.Error = userMessage(err)
		return res
	}
	date, err := records.ParseDate(req.Date)
	if err != nil {
		res.Error = "invalid date: " + err.Error()
		return res
	}
	cond := features.ConditionsFor(date,
		req.Weather,
		records.ParseTide(req.Tide),
		req.WaterTemp,
		req.Visitors)

	raw, err := s.predictor.PredictSingle(cond)
	if err != nil {
		res.Error = userMessage(err)
		return res
	}
	count := int(math.Round(raw))
	if s.metrics != nil {
		s.metrics.PredictedCatchObserve(float64(count))
	}

	info := s.predictor.Info()
	now := s.clock.Now()
	p := &Prediction{
		CatchCount:      count,
		Confidence:      Confidence(cond, raw),
		Input:           req,
		Conditions:      cond,
		Model:           ModelSummary{Kind: info.Kind, Features: info.FeatureNames, Degraded: info.Degraded},
		Recommendations: Recommendations(cond, raw),
		PredictedAt:     now,
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if date.Before(today) {
		p.IsHistorical = true
		// a failed lookup leaves the prediction intact
		if actual, ok, lookupErr := s.actualCatch(ctx, date); lookupErr != nil {
			log.Warn().Err(lookupErr).Str("date", req.Date).Msg("Actual catch lookup failed")
		} else if ok {
			acc := backtest.Measure(count, actual)
			p.ActualCatch = &actual
			p.Accuracy = &acc
		}
	}

	res.Success = true
	res.Prediction = p
	return res
}

// actualCatch sums the recorded target species catch for date.
func (s *Service) actualCatch(ctx context.Context, date time.Time) (int, bool, error) {
	recs, _, err := s.load(ctx)
	if err != nil {
		return 0, false, err
	}
	for _, d := range s.builder.Days(recs) {
		if d.Date.Equal(date) {
			return d.Catch, true, nil
		}
	}
	return 0, false, nil
}

// Confidence scores the conditions: each favourable factor adds one and
// each unfavourable one subtracts one. Spring and summer, sunny or cloudy
// skies, 15-25℃ water, 100-500 visitors and a 50-500 fish prediction are
// favourable.
func Confidence(c features.Conditions, predicted float64) string {
	score := 0
	vote := func(ok bool) {
		if ok {
			score++
		} else {
			score--
		}
	}
	vote(c.Season == 0 || c.Season == 1)
	vote(c.Weather == records.Sunny.Code() || c.Weather == records.Cloudy.Code())
	vote(c.WaterTemp >= 15 && c.WaterTemp <= 25)
	vote(c.Visitors >= 100 && c.Visitors <= 500)
	vote(predicted >= 50 && predicted <= 500)

	switch {
	case score >= 3:
		return ConfidenceHigh
	case score <= -2:
		return ConfidenceLow
	default:
		return ConfidenceMedium
	}
}

// Recommendations returns angler advice for the conditions.
func Recommendations(c features.Conditions, predicted float64) []string {
	var out []string

	switch {
	case c.WaterTemp < 15:
		out = append(out, "水温が低いです。朝夕の時間帯が狙い目です。")
	case c.WaterTemp > 25:
		out = append(out, "水温が高いです。朝夕の時間帯がお勧めです。")
	default:
		out = append(out, "水温が適温です。アジの活性が期待できます。")
	}

	switch c.Tide {
	case records.NeapTide.Code():
		out = append(out, "小潮で潮の動きが少ない日です。静かなポイントを狙いましょう。")
	case records.SpringTide.Code():
		out = append(out, "大潮で潮の動きが活発です。潮目を意識した釣りを心がけましょう。")
	}

	switch {
	case c.Visitors > 400:
		out = append(out, "混雑が予想されます。早めの到着をお勧めします。")
	case c.Visitors < 100:
		out = append(out, "比較的空いている日です。ゆっくり釣りを楽しめそうです。")
	}

	switch {
	case predicted > 300:
		out = append(out, "好釣果が期待できます。十分な仕掛けの準備をお勧めします。")
	case predicted < 100:
		out = append(out, "厳しい条件です。丁寧な釣りを心がけましょう。")
	}
	return out
}

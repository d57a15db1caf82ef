package service

import (
	"context"
	"sync"
	"time"

	"catch-forecast/internal/features"
	"catch-forecast/internal/ml"
	"catch-forecast/internal/records"
)

type memSource struct {
	raws []records.RawRecord
	err  error
}

func (m *memSource) LoadRaw(ctx context.Context) ([]records.RawRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.raws, ctx.Err()
}

type fakePredictor struct {
	value float64
	err   error
	info  ml.ModelInfo
	last  features.Conditions
}

func (f *fakePredictor) PredictSingle(c features.Conditions) (float64, error) {
	f.last = c
	return f.value, f.err
}

func (f *fakePredictor) Info() ml.ModelInfo { return f.info }

func trainedInfo(degraded bool) ml.ModelInfo {
	at := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	return ml.ModelInfo{
		Kind:         ml.RandomForest,
		State:        "loaded",
		FeatureNames: features.Names,
		TrainedAt:    &at,
		Degraded:     degraded,
	}
}

type mockMetrics struct {
	mu        sync.Mutex
	requests  map[string]int
	predicted []float64
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{requests: make(map[string]int)}
}

func (m *mockMetrics) RequestInc(operation, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[operation+"/"+outcome]++
}

func (m *mockMetrics) PredictedCatchObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predicted = append(m.predicted, v)
}
